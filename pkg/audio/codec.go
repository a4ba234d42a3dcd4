package audio

import (
	"encoding/base64"
	"fmt"

	"github.com/parlo-app/parlo/pkg/errorsx"
)

// Capture runs at 16 kHz mono; the remote model answers at 24 kHz mono.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
	InputMimeType    = "audio/pcm;rate=16000"
)

// OutboundChunk is one capture block encoded for the wire. Ephemeral: it is
// discarded after the send attempt, the next chunk supersedes it.
type OutboundChunk struct {
	Data     string
	MimeType string
}

// EncodeFrame converts a float32 capture block in [-1, 1] to the base64
// int16 little-endian envelope. Lossless up to 16-bit quantization.
func EncodeFrame(samples []float32) OutboundChunk {
	raw := make([]byte, len(samples)*2)
	for i, v := range samples {
		s := int32(v * 32768)
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(s >> 8)
	}
	return OutboundChunk{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MimeType: InputMimeType,
	}
}

// DecodePayload reverses the base64 envelope; binary pass-through otherwise.
func DecodePayload(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}

// DecodePCM reinterprets int16 little-endian bytes as a playback buffer,
// de-interleaving by channel and normalizing by 1/32768.
func DecodePCM(data []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		channels = 1
	}
	if len(data)%(2*channels) != 0 {
		return nil, errorsx.Wrap(
			fmt.Errorf("pcm payload length %d not a multiple of %d", len(data), 2*channels),
			errorsx.ReasonMalformedAudio)
	}
	frameCount := len(data) / (2 * channels)
	buf := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for ch := 0; ch < channels; ch++ {
		buf.Channels[ch] = make([]float32, frameCount)
	}
	for i := 0; i < frameCount; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			s := int16(uint16(data[off]) | uint16(data[off+1])<<8)
			buf.Channels[ch][i] = float32(s) / 32768.0
		}
	}
	return buf, nil
}

// Package local synthesizes speech with an on-machine TTS binary. It is
// the zero-credential fallback for the simulated-live loop: espeak-ng on
// Linux, say on macOS.
package local

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/parlo-app/parlo/pkg/adapters/synth"
	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/errorsx"
)

type Synthesizer struct {
	cfg    synth.Config
	path   string
	logger *slog.Logger
}

func NewSynthesizer(cfg synth.Config, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	path := "espeak-ng"
	if runtime.GOOS == "darwin" {
		path = "say"
	}
	return &Synthesizer{
		cfg:    cfg,
		path:   path,
		logger: logger.With(slog.String("component", "local_tts")),
	}
}

func (s *Synthesizer) Name() string { return "local" }

func (s *Synthesizer) Supported() bool {
	_, err := exec.LookPath(s.path)
	return err == nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	var cmd *exec.Cmd
	if s.path == "say" {
		cmd = exec.CommandContext(ctx, s.path, "--data-format=LEI16@22050", "-o", "/dev/stdout", text)
	} else {
		args := []string{"--stdout"}
		if s.cfg.VoiceID != "" {
			args = append(args, "-v", s.cfg.VoiceID)
		}
		args = append(args, text)
		cmd = exec.CommandContext(ctx, s.path, args...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSynthesize)
	}
	pcm, rate, err := stripWAVHeader(out.Bytes(), s.cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return audio.DecodePCM(pcm, rate, 1)
}

// stripWAVHeader peels a RIFF container if present and returns the PCM
// payload with its declared sample rate. Raw input passes through with
// the fallback rate.
func stripWAVHeader(data []byte, fallbackRate int) ([]byte, int, error) {
	if len(data) < 44 || !bytes.Equal(data[:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return data, fallbackRate, nil
	}
	rate := fallbackRate
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if body+8 <= len(data) {
				rate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			}
		case "data":
			end := body + size
			if size <= 0 || end > len(data) {
				// espeak streams with an unknown-length data chunk.
				end = len(data)
			}
			return data[body:end], rate, nil
		}
		off = body + size
		if size%2 == 1 {
			off++
		}
	}
	return nil, 0, errorsx.New(errorsx.ReasonMalformedAudio, "wav container without data chunk")
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

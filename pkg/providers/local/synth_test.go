package local

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/parlo-app/parlo/pkg/errorsx"
)

func wavFile(rate int, pcm []byte) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // pcm
	binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

func TestStripWAVHeader(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	got, rate, err := stripWAVHeader(wavFile(22050, pcm), 16000)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 22050 {
		t.Fatalf("rate = %d", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm = %v", got)
	}
}

func TestStripWAVHeaderRawPassthrough(t *testing.T) {
	raw := []byte{1, 0, 2, 0}
	got, rate, err := stripWAVHeader(raw, 22050)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 22050 || !bytes.Equal(got, raw) {
		t.Fatalf("got %v at %d Hz", got, rate)
	}
}

func TestStripWAVHeaderUnknownLengthData(t *testing.T) {
	// espeak pipes a data chunk with length 0xFFFFFFFF when streaming.
	pcm := []byte{9, 0, 8, 0}
	file := wavFile(22050, pcm)
	off := bytes.Index(file, []byte("data"))
	binary.LittleEndian.PutUint32(file[off+4:off+8], 0xFFFFFFFF)

	got, rate, err := stripWAVHeader(file, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 22050 || !bytes.Equal(got, pcm) {
		t.Fatalf("got %v at %d Hz", got, rate)
	}
}

func TestStripWAVHeaderMissingData(t *testing.T) {
	// A container with fmt and LIST chunks but no data chunk.
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(40))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	b.Write(make([]byte, 16))
	b.WriteString("LIST")
	binary.Write(&b, binary.LittleEndian, uint32(4))
	b.Write(make([]byte, 4))

	_, _, err := stripWAVHeader(b.Bytes(), 16000)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonMalformedAudio) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
}

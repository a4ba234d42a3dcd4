package mock

import (
	"context"
	"sync"

	"github.com/parlo-app/parlo/pkg/adapters/synth"
	"github.com/parlo-app/parlo/pkg/audio"
)

type Synthesizer struct {
	// Err, when set, fails every call.
	Err error
	// Samples is the frame count of the returned buffer.
	Samples int

	mu    sync.Mutex
	texts []string
}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{Samples: 2400}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Supported() bool { return true }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.texts = append(s.texts, text)
	return &audio.Buffer{
		Channels:   [][]float32{make([]float32, s.Samples)},
		SampleRate: audio.OutputSampleRate,
	}, nil
}

// Texts returns every synthesized utterance in call order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

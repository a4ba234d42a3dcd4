package synth

import (
	"context"

	"github.com/parlo-app/parlo/pkg/audio"
)

// Synthesizer turns text into a decoded playback buffer. One blocking call
// per utterance; callers schedule the result themselves.
type Synthesizer interface {
	// Name returns adapter name for logging.
	Name() string
	// Supported reports whether the provider is usable as configured.
	Supported() bool
	// Synthesize renders text with the configured voice.
	Synthesize(ctx context.Context, text string) (*audio.Buffer, error)
}

// Config contains vendor-agnostic synthesis configuration.
type Config struct {
	VoiceID    string
	Model      string
	SampleRate int
}

package recognizer

import "context"

// Result is one recognition event. Interim results may repeat with growing
// text; Final closes the utterance.
type Result struct {
	Text  string
	Final bool
}

// Recognizer is the speech-recognition capability used by the
// simulated-live loop. Supported must be checked before Start; an
// unsupported recognizer degrades the app to text-only conversation.
type Recognizer interface {
	// Name returns adapter name for logging.
	Name() string
	// Supported reports whether the capability is usable as configured.
	Supported() bool
	// Start arms recognition until the next final result or Stop.
	Start(ctx context.Context) error
	// Stop cancels recognition; idempotent.
	Stop() error
	// Results returns the recognition event channel.
	Results() <-chan Result
}

// Config contains vendor-agnostic recognizer configuration.
type Config struct {
	Language   string
	SampleRate int
}

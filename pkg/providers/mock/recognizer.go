package mock

import (
	"context"
	"sync"

	"github.com/parlo-app/parlo/pkg/adapters/recognizer"
)

type Recognizer struct {
	// StartErr, when set, fails Start.
	StartErr error
	// Unsupported makes Supported report false.
	Unsupported bool

	mu      sync.Mutex
	results chan recognizer.Result
	started bool
	starts  int
}

func NewRecognizer() *Recognizer {
	return &Recognizer{results: make(chan recognizer.Result, 16)}
}

func (r *Recognizer) Name() string { return "mock_recognizer" }

func (r *Recognizer) Supported() bool { return !r.Unsupported }

func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.started = true
	r.starts++
	return nil
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	return nil
}

func (r *Recognizer) Results() <-chan recognizer.Result { return r.results }

// Emit injects a recognition result as if speech had been heard.
func (r *Recognizer) Emit(text string, final bool) {
	r.results <- recognizer.Result{Text: text, Final: final}
}

// Starts returns how many times recognition was armed.
func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Started reports whether recognition is currently armed.
func (r *Recognizer) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

var _ recognizer.Recognizer = (*Recognizer)(nil)

// Package transcript accumulates interleaved partial text into
// display-ready conversation turns.
package transcript

import (
	"sync"
	"time"
)

// Turn is one contiguous span of text attributed to a single speaker.
// Text carries the spoken portion; Annotation carries the inline
// translation when the provider supplies one. Sealed turns are immutable.
type Turn struct {
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	Annotation string    `json:"annotation,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Tracker folds transcript fragments into turns. A speaker change seals
// the open turn; consecutive same-speaker fragments coalesce.
type Tracker struct {
	mu     sync.Mutex
	sealed []Turn
	open   *Turn
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Append folds one fragment into the transcript. isFinal seals the
// current turn regardless of who speaks next.
func (t *Tracker) Append(speaker, fragment string, isFinal bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open != nil && t.open.Speaker != speaker {
		t.sealLocked()
	}
	if t.open == nil {
		t.open = &Turn{Speaker: speaker, Timestamp: t.now()}
	}
	t.open.Text += fragment
	if isFinal {
		t.sealLocked()
	}
}

// AppendTurn records one complete turn, sealing anything open first.
// Used by the simulated loop, which produces whole utterances.
func (t *Tracker) AppendTurn(speaker, text, annotation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealLocked()
	t.sealed = append(t.sealed, Turn{
		Speaker:    speaker,
		Text:       text,
		Annotation: annotation,
		Timestamp:  t.now(),
	})
}

// CurrentDisplayText returns the open turn's accumulated text for live
// subtitle rendering. Empty when no turn is open.
func (t *Tracker) CurrentDisplayText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open == nil {
		return ""
	}
	return t.open.Text
}

// CurrentSpeaker returns the open turn's speaker, empty when no turn is
// open.
func (t *Tracker) CurrentSpeaker() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open == nil {
		return ""
	}
	return t.open.Speaker
}

// Seal closes the open turn, if any. Called on session teardown so a
// trailing partial is not lost.
func (t *Tracker) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealLocked()
}

// Turns returns the sealed turns in order.
func (t *Tracker) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Turn, len(t.sealed))
	copy(out, t.sealed)
	return out
}

// Reset drops all state for a fresh conversation.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = nil
	t.open = nil
}

func (t *Tracker) sealLocked() {
	if t.open == nil {
		return
	}
	t.sealed = append(t.sealed, *t.open)
	t.open = nil
}

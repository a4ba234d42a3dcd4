package transcript

import "testing"

func TestAppendCoalescesAndSealsOnSpeakerChange(t *testing.T) {
	tr := NewTracker()
	tr.Append("user", "He", false)
	tr.Append("user", "llo", false)
	if got := tr.CurrentDisplayText(); got != "Hello" {
		t.Fatalf("display = %q", got)
	}
	if got := tr.CurrentSpeaker(); got != "user" {
		t.Fatalf("speaker = %q", got)
	}
	tr.Append("assistant", "Hi", true)

	turns := tr.Turns()
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Speaker != "user" || turns[0].Text != "Hello" {
		t.Fatalf("turn 0 = %+v", turns[0])
	}
	if turns[1].Speaker != "assistant" || turns[1].Text != "Hi" {
		t.Fatalf("turn 1 = %+v", turns[1])
	}
	if got := tr.CurrentDisplayText(); got != "" {
		t.Fatalf("display after final = %q", got)
	}
}

func TestAppendFinalSealsImmediately(t *testing.T) {
	tr := NewTracker()
	tr.Append("user", "done", true)
	if got := len(tr.Turns()); got != 1 {
		t.Fatalf("turns = %d", got)
	}
	if got := tr.CurrentSpeaker(); got != "" {
		t.Fatalf("open speaker = %q", got)
	}
}

func TestAppendTurnSealsOpenFirst(t *testing.T) {
	tr := NewTracker()
	tr.Append("user", "partial", false)
	tr.AppendTurn("assistant", "Sure thing", "没问题")

	turns := tr.Turns()
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Text != "partial" {
		t.Fatalf("turn 0 = %+v", turns[0])
	}
	if turns[1].Annotation != "没问题" {
		t.Fatalf("annotation = %q", turns[1].Annotation)
	}
}

func TestSealTrailingPartial(t *testing.T) {
	tr := NewTracker()
	tr.Append("assistant", "cut of", false)
	tr.Seal()
	turns := tr.Turns()
	if len(turns) != 1 || turns[0].Text != "cut of" {
		t.Fatalf("turns = %+v", turns)
	}
	// Seal with nothing open is a no-op.
	tr.Seal()
	if got := len(tr.Turns()); got != 1 {
		t.Fatalf("turns = %d", got)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.AppendTurn("user", "bye", "")
	tr.Append("assistant", "see", false)
	tr.Reset()
	if got := len(tr.Turns()); got != 0 {
		t.Fatalf("turns = %d", got)
	}
	if got := tr.CurrentDisplayText(); got != "" {
		t.Fatalf("display = %q", got)
	}
}

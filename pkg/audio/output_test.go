package audio

import (
	"testing"

	"github.com/parlo-app/parlo/pkg/errorsx"
)

func TestOutputManagerLivePreemptsChat(t *testing.T) {
	sink := &fakeSink{}
	m := NewOutputManager(sink, nil)

	sched, err := m.Acquire(ConsumerChatTTS)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.Enqueue(testBuffer(24000)); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Acquire(ConsumerLive); err != nil {
		t.Fatal(err)
	}
	if !sink.handles[0].stopped {
		t.Fatal("live acquisition must flush chat playback")
	}
	if got := m.Holder(); got != ConsumerLive {
		t.Fatalf("holder = %q", got)
	}
}

func TestOutputManagerChatUnderLiveFails(t *testing.T) {
	m := NewOutputManager(&fakeSink{}, nil)
	if _, err := m.Acquire(ConsumerLive); err != nil {
		t.Fatal(err)
	}
	_, err := m.Acquire(ConsumerChatTTS)
	if err == nil {
		t.Fatal("expected busy error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonPlaybackBusy) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
	if got := m.Holder(); got != ConsumerLive {
		t.Fatalf("holder = %q", got)
	}
}

func TestOutputManagerReleaseFreesHolder(t *testing.T) {
	m := NewOutputManager(&fakeSink{}, nil)
	if _, err := m.Acquire(ConsumerLive); err != nil {
		t.Fatal(err)
	}
	// Release by a non-holder is a no-op.
	m.Release(ConsumerChatTTS)
	if got := m.Holder(); got != ConsumerLive {
		t.Fatalf("holder = %q", got)
	}
	m.Release(ConsumerLive)
	if got := m.Holder(); got != "" {
		t.Fatalf("holder = %q, want free", got)
	}
	if _, err := m.Acquire(ConsumerChatTTS); err != nil {
		t.Fatal(err)
	}
}

func TestOutputManagerMicExclusive(t *testing.T) {
	m := NewOutputManager(&fakeSink{}, nil)
	if err := m.AcquireMic(); err != nil {
		t.Fatal(err)
	}
	err := m.AcquireMic()
	if err == nil {
		t.Fatal("expected mic busy")
	}
	if !errorsx.HasReason(err, errorsx.ReasonMicBusy) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
	m.ReleaseMic()
	if err := m.AcquireMic(); err != nil {
		t.Fatal(err)
	}
}

package audio

import (
	"sync"
	"testing"
	"time"
)

type fakeHandle struct {
	once    sync.Once
	done    chan struct{}
	stopped bool
}

func newFakeHandle() *fakeHandle { return &fakeHandle{done: make(chan struct{})} }

func (h *fakeHandle) Stop() {
	h.stopped = true
	h.complete()
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) complete() { h.once.Do(func() { close(h.done) }) }

type fakeSink struct {
	mu      sync.Mutex
	now     float64
	plays   []float64
	handles []*fakeHandle
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSink) advance(d float64) {
	s.mu.Lock()
	s.now += d
	s.mu.Unlock()
}

func (s *fakeSink) Play(buf *Buffer, when float64) (PlaybackHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := newFakeHandle()
	s.plays = append(s.plays, when)
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSink) Close() error { return nil }

func testBuffer(frames int) *Buffer {
	return &Buffer{Channels: [][]float32{make([]float32, frames)}, SampleRate: OutputSampleRate}
}

func TestSchedulerBackToBack(t *testing.T) {
	sink := &fakeSink{now: 10}
	sched := NewScheduler(sink, nil)

	// Two 0.5s buffers enqueued in a burst must not overlap.
	if err := sched.Enqueue(testBuffer(12000)); err != nil {
		t.Fatal(err)
	}
	if err := sched.Enqueue(testBuffer(12000)); err != nil {
		t.Fatal(err)
	}
	if sink.plays[0] != 10 {
		t.Fatalf("first start = %v", sink.plays[0])
	}
	if sink.plays[1] != 10.5 {
		t.Fatalf("second start = %v", sink.plays[1])
	}
	if got := sched.Cursor(); got != 11 {
		t.Fatalf("cursor = %v", got)
	}
}

func TestSchedulerCursorNeverBehindClock(t *testing.T) {
	sink := &fakeSink{now: 0}
	sched := NewScheduler(sink, nil)
	if err := sched.Enqueue(testBuffer(2400)); err != nil {
		t.Fatal(err)
	}
	// Clock runs past the queued audio before the next buffer arrives.
	sink.advance(5)
	if err := sched.Enqueue(testBuffer(2400)); err != nil {
		t.Fatal(err)
	}
	if sink.plays[1] != 5 {
		t.Fatalf("late start = %v, want 5", sink.plays[1])
	}
}

func TestSchedulerIdleOnNaturalDrain(t *testing.T) {
	sink := &fakeSink{}
	sched := NewScheduler(sink, nil)
	idle := make(chan struct{}, 1)
	sched.SetIdleFunc(func() { idle <- struct{}{} })

	if err := sched.Enqueue(testBuffer(2400)); err != nil {
		t.Fatal(err)
	}
	if err := sched.Enqueue(testBuffer(2400)); err != nil {
		t.Fatal(err)
	}
	sink.handles[0].complete()
	select {
	case <-idle:
		t.Fatal("idle fired with a source still active")
	case <-time.After(20 * time.Millisecond):
	}
	sink.handles[1].complete()
	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("idle never fired after drain")
	}
}

func TestSchedulerFlushAll(t *testing.T) {
	sink := &fakeSink{now: 3}
	sched := NewScheduler(sink, nil)
	idle := make(chan struct{}, 1)
	sched.SetIdleFunc(func() { idle <- struct{}{} })

	if err := sched.Enqueue(testBuffer(24000)); err != nil {
		t.Fatal(err)
	}
	sink.advance(1)
	sched.FlushAll()

	if !sink.handles[0].stopped {
		t.Fatal("flush did not stop the in-flight source")
	}
	if got := sched.ActiveCount(); got != 0 {
		t.Fatalf("active = %d", got)
	}
	if got := sched.Cursor(); got != 4 {
		t.Fatalf("cursor = %v, want reset to clock", got)
	}
	select {
	case <-idle:
		t.Fatal("flush must not fire the idle callback")
	case <-time.After(20 * time.Millisecond):
	}
}

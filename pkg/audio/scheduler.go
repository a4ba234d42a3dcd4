package audio

import (
	"log/slog"
	"sync"
)

// PlaybackHandle tracks one in-flight buffer. Done fires exactly once,
// whether playback completes naturally or Stop halts it.
type PlaybackHandle interface {
	Stop()
	Done() <-chan struct{}
}

// Sink plays decoded buffers at explicit times on a monotonic clock.
// Implementations hold the platform output resource for the process
// lifetime; callers never allocate one per buffer.
type Sink interface {
	Name() string
	Now() float64
	Play(buf *Buffer, when float64) (PlaybackHandle, error)
	Close() error
}

// Scheduler plays buffers back-to-back with no gaps and no overlap, even
// though they arrive at irregular intervals. The cursor never moves behind
// the sink clock, so a buffer is never scheduled in the past.
type Scheduler struct {
	mu     sync.Mutex
	sink   Sink
	next   float64
	active map[int]PlaybackHandle
	seq    int
	onIdle func()
	logger *slog.Logger
}

func NewScheduler(sink Sink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sink:   sink,
		active: make(map[int]PlaybackHandle),
		logger: logger,
	}
}

// SetIdleFunc registers the callback fired when the active set drains
// through natural completion. FlushAll does not fire it.
func (s *Scheduler) SetIdleFunc(fn func()) {
	s.mu.Lock()
	s.onIdle = fn
	s.mu.Unlock()
}

func (s *Scheduler) Enqueue(buf *Buffer) error {
	s.mu.Lock()
	now := s.sink.Now()
	if s.next < now {
		s.next = now
	}
	start := s.next
	handle, err := s.sink.Play(buf, start)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.next = start + buf.Duration()
	id := s.seq
	s.seq++
	s.active[id] = handle
	s.mu.Unlock()

	go s.watch(id, handle)
	return nil
}

func (s *Scheduler) watch(id int, handle PlaybackHandle) {
	<-handle.Done()
	s.mu.Lock()
	_, tracked := s.active[id]
	delete(s.active, id)
	idle := tracked && len(s.active) == 0
	fn := s.onIdle
	s.mu.Unlock()
	if idle && fn != nil {
		fn()
	}
}

// FlushAll stops every in-flight source and resets the cursor to the
// current clock time. Called on teardown and barge-in so stale audio from a
// cancelled turn never sounds.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	handles := make([]PlaybackHandle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.active = make(map[int]PlaybackHandle)
	s.next = s.sink.Now()
	s.mu.Unlock()

	if len(handles) > 0 {
		s.logger.Debug("playback flushed", slog.Int("stopped", len(handles)))
	}
	for _, h := range handles {
		h.Stop()
	}
}

// ActiveCount returns the number of in-flight sources.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the next scheduled start time.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

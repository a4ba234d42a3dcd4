package audio

import (
	"log/slog"
	"sync"

	"github.com/parlo-app/parlo/pkg/errorsx"
)

// Consumer identifies who holds the output path.
type Consumer string

const (
	ConsumerChatTTS Consumer = "chat_tts"
	ConsumerLive    Consumer = "live"
)

// OutputManager owns the process-wide output sink and its scheduler.
// Platform audio contexts are scarce, so exactly one sink exists per
// direction and holders hand it off explicitly: a live session preempts
// in-flight chat TTS, while chat TTS may not start under an active live
// session. Microphone exclusivity is tracked here for the same reason.
type OutputManager struct {
	mu      sync.Mutex
	sched   *Scheduler
	holder  Consumer
	micHeld bool
	logger  *slog.Logger
}

func NewOutputManager(sink Sink, logger *slog.Logger) *OutputManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutputManager{
		sched:  NewScheduler(sink, logger),
		logger: logger.With(slog.String("component", "output_manager")),
	}
}

// Acquire hands the shared scheduler to a consumer. Live preempts chat TTS
// by flushing whatever is playing; chat TTS under live fails instead.
func (m *OutputManager) Acquire(c Consumer) (*Scheduler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.holder == "":
	case m.holder == c:
		m.sched.FlushAll()
	case c == ConsumerLive:
		m.logger.Info("preempting output holder",
			slog.String("holder", string(m.holder)),
			slog.String("consumer", string(c)))
		m.sched.FlushAll()
	default:
		return nil, errorsx.New(errorsx.ReasonPlaybackBusy, "output held by live session")
	}
	m.holder = c
	return m.sched, nil
}

// Release returns the output path; flushes anything the holder left queued.
func (m *OutputManager) Release(c Consumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder != c {
		return
	}
	m.sched.FlushAll()
	m.sched.SetIdleFunc(nil)
	m.holder = ""
}

// Holder returns the current output consumer, empty when free.
func (m *OutputManager) Holder() Consumer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

// AcquireMic marks the capture device as owned. A second acquisition while
// one is active fails rather than silently duplicating capture.
func (m *OutputManager) AcquireMic() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.micHeld {
		return errorsx.New(errorsx.ReasonMicBusy, "microphone already in use")
	}
	m.micHeld = true
	return nil
}

func (m *OutputManager) ReleaseMic() {
	m.mu.Lock()
	m.micHeld = false
	m.mu.Unlock()
}

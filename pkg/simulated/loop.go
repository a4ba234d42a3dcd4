// Package simulated emulates a live voice conversation for providers
// without native duplex audio: a strictly sequential listen, infer, speak
// cycle over a recognizer, a completion adapter, and a synthesizer.
package simulated

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parlo-app/parlo/pkg/adapters/recognizer"
	"github.com/parlo-app/parlo/pkg/adapters/synth"
	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/frames"
	"github.com/parlo-app/parlo/pkg/live"
	"github.com/parlo-app/parlo/pkg/llm"
	"github.com/parlo-app/parlo/pkg/logging"
	"github.com/parlo-app/parlo/pkg/resilience"
	"github.com/parlo-app/parlo/pkg/transcript"
)

// connectionErrorText is shown as an assistant turn when a cycle fails,
// so the learner sees the loop is alive and will retry.
const connectionErrorText = "Connection Error"

const defaultRetryDelay = 2 * time.Second

type Phase string

const (
	PhaseListening Phase = "listening"
	PhaseThinking  Phase = "thinking"
	PhaseSpeaking  Phase = "speaking"
)

// Loop implements the same external contract as live.Session over the
// sequential cycle. Exactly one phase is active at a time.
type Loop struct {
	rec     recognizer.Recognizer
	synther synth.Synthesizer
	adapter llm.Adapter
	output  *audio.OutputManager
	tracker *transcript.Tracker
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger

	// RetryDelay is the re-arm delay after a failed cycle.
	RetryDelay time.Duration

	mu           sync.Mutex
	running      bool
	phase        Phase
	userSpeaking bool
	lastError    string
	systemPrompt string
	history      []llm.Message
	sched        *audio.Scheduler
	cancel       context.CancelFunc
	onStatus     live.StatusFunc
	done         chan struct{}
}

func NewLoop(rec recognizer.Recognizer, synther synth.Synthesizer, adapter llm.Adapter, output *audio.OutputManager, tracker *transcript.Tracker, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		rec:        rec,
		synther:    synther,
		adapter:    adapter,
		output:     output,
		tracker:    tracker,
		breaker:    resilience.NewCircuitBreaker(3, 30*time.Second),
		logger:     logging.NewComponentLogger(logger, "simulated_loop"),
		RetryDelay: defaultRetryDelay,
	}
}

func (l *Loop) OnStatus(fn live.StatusFunc) {
	l.mu.Lock()
	l.onStatus = fn
	l.mu.Unlock()
}

func (l *Loop) Status() live.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

func (l *Loop) statusLocked() live.Status {
	st := live.Status{
		State:             live.StateIdle,
		LastError:         l.lastError,
		CurrentTranscript: l.tracker.CurrentDisplayText(),
		TranscriptSource:  l.tracker.CurrentSpeaker(),
	}
	if l.running {
		st.State = live.StateActive
		st.UserSpeaking = l.userSpeaking
		st.AssistantSpeaking = l.phase == PhaseSpeaking
	}
	return st
}

func (l *Loop) notify() {
	l.mu.Lock()
	fn := l.onStatus
	st := l.statusLocked()
	l.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Start arms the cycle. An unsupported recognizer fails up front so the
// caller can fall back to text-only conversation.
func (l *Loop) Start(ctx context.Context, systemPrompt string) error {
	if !l.rec.Supported() {
		return errorsx.New(errorsx.ReasonRecognizerUnsupported, "speech recognition unavailable")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errorsx.New(errorsx.ReasonRecognizerStart, "loop already running")
	}

	sched, err := l.output.Acquire(audio.ConsumerLive)
	if err != nil {
		l.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.running = true
	l.phase = PhaseListening
	l.lastError = ""
	l.systemPrompt = systemPrompt
	l.history = nil
	l.sched = sched
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(loopCtx)
	l.notify()
	l.logger.Info("simulated live started", slog.String("adapter", l.adapter.Name()))
	return nil
}

// Stop cancels the in-flight turn from any phase. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	cancel()
	<-done

	l.mu.Lock()
	l.running = false
	l.userSpeaking = false
	l.cancel = nil
	l.sched = nil
	l.mu.Unlock()

	_ = l.rec.Stop()
	l.output.Release(audio.ConsumerLive)
	l.tracker.Seal()
	l.notify()
	l.logger.Info("simulated live stopped")
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		if ctx.Err() != nil {
			return
		}
		userText, ok := l.listen(ctx)
		if !ok {
			return
		}
		reply, err := l.think(ctx, userText)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !l.reportCycleError(ctx, err) {
				return
			}
			continue
		}
		if !l.speak(ctx, reply) {
			return
		}
	}
}

// listen arms recognition and blocks until a finalized utterance.
func (l *Loop) listen(ctx context.Context) (string, bool) {
	l.setPhase(PhaseListening)
	if err := l.rec.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		if !l.reportCycleError(ctx, err) {
			return "", false
		}
		return l.listen(ctx)
	}
	defer func() { _ = l.rec.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return "", false
		case res, ok := <-l.rec.Results():
			if !ok {
				return "", false
			}
			l.mu.Lock()
			l.userSpeaking = !res.Final
			l.mu.Unlock()
			l.notify()
			if res.Final && res.Text != "" {
				l.tracker.AppendTurn(frames.SpeakerUser, res.Text, "")
				return res.Text, true
			}
		}
	}
}

type reply struct {
	spoken     string
	annotation string
}

// think runs one blocking completion and splits the trailing annotation.
func (l *Loop) think(ctx context.Context, userText string) (reply, error) {
	l.setPhase(PhaseThinking)

	l.mu.Lock()
	req := llm.Request{
		System:  l.systemPrompt,
		History: append([]llm.Message(nil), l.history...),
		User:    userText,
	}
	l.mu.Unlock()

	text, err := l.adapter.Complete(ctx, req)
	if err != nil {
		l.breaker.OnError(err)
		return reply{}, err
	}
	l.breaker.OnSuccess()

	spoken, annotation := SplitAnnotation(text)
	l.mu.Lock()
	l.history = append(l.history,
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: text},
	)
	l.mu.Unlock()
	l.tracker.AppendTurn(frames.SpeakerAssistant, spoken, annotation)
	return reply{spoken: spoken, annotation: annotation}, nil
}

// speak synthesizes and plays the spoken portion, then re-arms listening
// once playback drains. Synthesis failures fall back to a text-only turn.
func (l *Loop) speak(ctx context.Context, r reply) bool {
	l.setPhase(PhaseSpeaking)

	if l.synther == nil || !l.synther.Supported() {
		return true
	}
	if !l.breaker.Allow() {
		l.logger.Warn("synthesis skipped, breaker open")
		return true
	}

	buf, err := l.synther.Synthesize(ctx, r.spoken)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		l.breaker.OnError(err)
		l.logger.Warn("synthesis failed, turn stays text-only",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return true
	}
	l.breaker.OnSuccess()

	idle := make(chan struct{}, 1)
	l.mu.Lock()
	sched := l.sched
	l.mu.Unlock()
	if sched == nil {
		return false
	}
	sched.SetIdleFunc(func() {
		select {
		case idle <- struct{}{}:
		default:
		}
	})
	defer sched.SetIdleFunc(nil)

	if err := sched.Enqueue(buf); err != nil {
		l.logger.Warn("playback enqueue failed", slog.String("error", err.Error()))
		return true
	}

	// Re-arm on the playback-drained callback, never on a timer.
	select {
	case <-ctx.Done():
		return false
	case <-idle:
		return true
	}
}

// reportCycleError surfaces a failure as an assistant turn and waits out
// the retry delay. Availability over silent failure.
func (l *Loop) reportCycleError(ctx context.Context, err error) bool {
	l.logger.Warn("cycle failed, re-arming",
		slog.String("reason", string(errorsx.Reason(err))),
		slog.String("error", err.Error()),
		slog.Duration("retry_delay", l.RetryDelay))
	l.mu.Lock()
	l.lastError = err.Error()
	l.mu.Unlock()
	l.tracker.AppendTurn(frames.SpeakerAssistant, connectionErrorText, "")
	l.notify()

	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.RetryDelay):
		return true
	}
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	l.phase = p
	if p != PhaseListening {
		l.userSpeaking = false
	}
	l.mu.Unlock()
	l.notify()
}

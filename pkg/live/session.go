// Package live orchestrates one duplex voice session: microphone capture
// flowing out through a transport, provider audio and transcripts flowing
// back into the playback scheduler and the turn tracker.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parlo-app/parlo/pkg/adapters/capture"
	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/frames"
	"github.com/parlo-app/parlo/pkg/logging"
	"github.com/parlo-app/parlo/pkg/transcript"
	"github.com/parlo-app/parlo/pkg/transports"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosing    State = "closing"
)

// Status is the snapshot surfaced to the UI shell on every change.
type Status struct {
	State             State
	UserSpeaking      bool
	AssistantSpeaking bool
	CurrentTranscript string
	TranscriptSource  string
	LastError         string
}

// StatusFunc receives status snapshots. Called outside the session lock.
type StatusFunc func(Status)

// Session drives the idle/connecting/active/closing lifecycle. One
// Session per conversation; Start after Stop begins a fresh transport
// session over the same collaborators.
type Session struct {
	transport transports.Transport
	device    capture.Device
	output    *audio.OutputManager
	tracker   *transcript.Tracker
	logger    *slog.Logger

	mu                sync.Mutex
	state             State
	userSpeaking      bool
	assistantSpeaking bool
	lastError         string
	conn              transports.Conn
	sched             *audio.Scheduler
	cancel            context.CancelFunc
	onStatus          StatusFunc
}

func NewSession(t transports.Transport, device capture.Device, output *audio.OutputManager, tracker *transcript.Tracker, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		transport: t,
		device:    device,
		output:    output,
		tracker:   tracker,
		logger:    logging.NewComponentLogger(logger, "live_session"),
		state:     StateIdle,
	}
}

// OnStatus registers the status listener. One listener; the controller
// fans out.
func (s *Session) OnStatus(fn StatusFunc) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// Status returns the current snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	return Status{
		State:             s.state,
		UserSpeaking:      s.userSpeaking,
		AssistantSpeaking: s.assistantSpeaking,
		CurrentTranscript: s.tracker.CurrentDisplayText(),
		TranscriptSource:  s.tracker.CurrentSpeaker(),
		LastError:         s.lastError,
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onStatus
	st := s.statusLocked()
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Start opens the session. A missing credential fails before any state
// transition so the caller can prompt for configuration. Connect-phase
// failures surface whether credentials or the network are at fault, then
// the session returns to idle. No automatic reconnect.
func (s *Session) Start(ctx context.Context, conv config.Conversation) error {
	if !conv.HasCredential() {
		return errorsx.New(errorsx.ReasonMissingCredential, "live session requires a credential")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sessCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		cancel()
		return errorsx.New(errorsx.ReasonLiveConnect, "session already started")
	}
	s.state = StateConnecting
	s.lastError = ""
	s.cancel = cancel
	s.mu.Unlock()
	s.notify()

	if err := s.output.AcquireMic(); err != nil {
		s.failStart(err)
		return err
	}
	sched, err := s.output.Acquire(audio.ConsumerLive)
	if err != nil {
		s.output.ReleaseMic()
		s.failStart(err)
		return err
	}
	sched.SetIdleFunc(s.onPlaybackIdle)

	if err := s.device.Start(sessCtx); err != nil {
		cancel()
		s.output.Release(audio.ConsumerLive)
		s.output.ReleaseMic()
		s.failStart(err)
		return err
	}

	conn, err := s.transport.Connect(sessCtx, conv)
	if err != nil {
		cancel()
		_ = s.device.Close()
		s.output.Release(audio.ConsumerLive)
		s.output.ReleaseMic()
		s.failStart(err)
		s.logger.Warn("live connect failed",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Stop raced the handshake; the session never goes active.
		s.mu.Unlock()
		_ = conn.Close()
		_ = s.device.Close()
		s.output.Release(audio.ConsumerLive)
		s.output.ReleaseMic()
		return nil
	}
	s.state = StateActive
	s.conn = conn
	s.sched = sched
	s.mu.Unlock()
	s.notify()
	s.logger.Info("live session active", slog.String("transport", s.transport.Name()))

	go s.sendLoop(sessCtx, conn)
	go s.recvLoop(conn)
	return nil
}

func (s *Session) failStart(err error) {
	s.mu.Lock()
	s.state = StateIdle
	s.lastError = err.Error()
	s.cancel = nil
	s.mu.Unlock()
	s.notify()
}

// sendLoop forwards capture blocks in order. Send failures are logged and
// the chunk is dropped; stale audio is worse than a lost frame.
func (s *Session) sendLoop(ctx context.Context, conn transports.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-s.device.Frames():
			if !ok {
				return
			}
			chunk := audio.EncodeFrame(block)
			if err := conn.Send(chunk); err != nil {
				s.logger.Warn("outbound chunk dropped", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Session) recvLoop(conn transports.Conn) {
	for f := range conn.Recv() {
		switch ev := f.(type) {
		case frames.AudioFrame:
			s.handleAudio(ev)
		case frames.TextFrame:
			s.handleTranscript(ev)
		case frames.ControlFrame:
			s.handleControl(ev)
		case frames.SystemFrame:
			switch ev.Name() {
			case frames.SystemSessionClosed:
				s.teardown("")
				return
			case frames.SystemSessionError:
				s.teardown(ev.Meta()[frames.MetaError])
				return
			}
		}
	}
	s.teardown("")
}

func (s *Session) handleAudio(f frames.AudioFrame) {
	buf, err := audio.DecodePCM(f.RawPayload(), f.Rate(), f.Channels())
	if err != nil {
		// Per-unit failure: drop the frame, keep the session.
		s.logger.Warn("inbound audio dropped",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.Int("size_bytes", len(f.RawPayload())))
		return
	}
	s.mu.Lock()
	sched := s.sched
	s.assistantSpeaking = true
	s.mu.Unlock()
	if sched == nil {
		return
	}
	if err := sched.Enqueue(buf); err != nil {
		s.logger.Warn("playback enqueue failed", slog.String("error", err.Error()))
		return
	}
	s.notify()
}

func (s *Session) handleTranscript(f frames.TextFrame) {
	speaker := f.Speaker()
	s.tracker.Append(speaker, f.Text(), f.Final())
	s.mu.Lock()
	if speaker == frames.SpeakerUser {
		s.userSpeaking = !f.Final()
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) handleControl(f frames.ControlFrame) {
	switch f.Code() {
	case frames.ControlStartInterruption:
		// Barge-in: cancel queued assistant audio immediately.
		s.mu.Lock()
		sched := s.sched
		s.assistantSpeaking = false
		s.userSpeaking = true
		s.mu.Unlock()
		if sched != nil {
			sched.FlushAll()
		}
		s.logger.Info("barge-in, playback flushed")
		s.notify()
	case frames.ControlFlush:
		s.tracker.Seal()
		s.notify()
	}
}

func (s *Session) onPlaybackIdle() {
	s.mu.Lock()
	s.assistantSpeaking = false
	s.mu.Unlock()
	s.notify()
}

// Stop tears the session down. Safe to call from any state, idempotent.
func (s *Session) Stop() {
	s.teardown("")
}

func (s *Session) teardown(errMsg string) {
	s.mu.Lock()
	if s.state == StateIdle {
		if errMsg != "" {
			s.lastError = errMsg
		}
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.sched = nil
	s.cancel = nil
	s.mu.Unlock()
	s.notify()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	_ = s.device.Close()
	s.output.Release(audio.ConsumerLive)
	s.output.ReleaseMic()
	s.tracker.Seal()

	s.mu.Lock()
	s.state = StateIdle
	s.userSpeaking = false
	s.assistantSpeaking = false
	if errMsg != "" {
		s.lastError = errMsg
	}
	s.mu.Unlock()
	s.notify()
	if errMsg != "" {
		s.logger.Warn("live session ended with error", slog.String("error", errMsg))
	} else {
		s.logger.Info("live session closed")
	}
}

// Package conversation is the UI-facing coordination layer: it selects
// the live mechanism for the configured provider, relays status, runs
// plain text turns, and persists finished transcripts.
package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parlo-app/parlo/pkg/adapters/capture"
	"github.com/parlo-app/parlo/pkg/adapters/synth"
	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/frames"
	"github.com/parlo-app/parlo/pkg/history"
	"github.com/parlo-app/parlo/pkg/live"
	"github.com/parlo-app/parlo/pkg/llm"
	"github.com/parlo-app/parlo/pkg/logging"
	"github.com/parlo-app/parlo/pkg/resilience"
	"github.com/parlo-app/parlo/pkg/simulated"
	"github.com/parlo-app/parlo/pkg/transcript"
	"github.com/parlo-app/parlo/pkg/transports"
)

// liveMode is the common surface of the native session and the simulated
// loop.
type liveMode interface {
	Stop()
	Status() live.Status
	OnStatus(live.StatusFunc)
}

// Deps carries the controller's collaborators. Native and Realtime may be
// nil when the configuration never selects them.
type Deps struct {
	Config      config.Config
	Output      *audio.OutputManager
	Device      capture.Device
	Tracker     *transcript.Tracker
	Store       *history.Store
	Native      transports.Transport
	Realtime    transports.Transport
	Loop        *simulated.Loop
	Adapter     llm.Adapter
	Synthesizer synth.Synthesizer
	Logger      *slog.Logger
}

type Controller struct {
	deps   Deps
	logger *slog.Logger
	retry  resilience.RetryPolicy

	mu        sync.Mutex
	mode      liveMode
	listeners []live.StatusFunc
}

func NewController(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "conversation"),
		retry:  resilience.RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond},
	}
}

// OnStatus adds a status listener; all live mechanisms report through it.
func (c *Controller) OnStatus(fn live.StatusFunc) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Controller) fanOut(st live.Status) {
	c.mu.Lock()
	listeners := append([]live.StatusFunc(nil), c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}

// Status returns the active mechanism's snapshot, idle when none runs.
func (c *Controller) Status() live.Status {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()
	if mode == nil {
		return live.Status{State: live.StateIdle}
	}
	return mode.Status()
}

// Conversation builds the immutable session snapshot from configuration.
func (c *Controller) Conversation() (config.Conversation, error) {
	var settings struct {
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		BaseURL string `mapstructure:"base_url"`
	}
	if err := config.DecodeSettings(c.deps.Config.Chat.Settings, &settings); err != nil {
		return config.Conversation{}, err
	}
	model := c.deps.Config.Live.Model
	if model == "" {
		model = settings.Model
	}
	return config.Conversation{
		Provider:     c.deps.Config.Chat.Provider,
		Model:        model,
		Voice:        c.deps.Config.Speech.VoiceID,
		Credential:   settings.APIKey,
		SystemPrompt: BuildSystemPrompt(c.deps.Config.Persona, c.deps.Config.Topic, c.deps.Config.Language),
		Topic:        c.deps.Config.Topic.Title,
		RealtimeURL:  c.deps.Config.Live.RealtimeURL,
	}, nil
}

// StartLive begins a voice conversation. Providers with native duplex
// audio get a transport session; everything else runs the simulated loop.
// A second call while one is active fails.
func (c *Controller) StartLive(ctx context.Context) error {
	c.mu.Lock()
	if c.mode != nil {
		c.mu.Unlock()
		return errorsx.New(errorsx.ReasonLiveConnect, "live conversation already active")
	}
	c.mu.Unlock()

	conv, err := c.Conversation()
	if err != nil {
		return err
	}

	transport := c.selectTransport(conv)
	var mode liveMode
	if transport != nil {
		session := live.NewSession(transport, c.deps.Device, c.deps.Output, c.deps.Tracker, c.logger)
		session.OnStatus(c.fanOut)
		if err := session.Start(ctx, conv); err != nil {
			return err
		}
		mode = session
		c.logger.Info("live conversation started",
			slog.String("mechanism", "native"),
			slog.String("transport", transport.Name()))
	} else {
		if c.deps.Loop == nil {
			return errorsx.New(errorsx.ReasonRecognizerUnsupported, "no live mechanism for this provider")
		}
		c.deps.Loop.OnStatus(c.fanOut)
		if err := c.deps.Loop.Start(ctx, conv.SystemPrompt); err != nil {
			return err
		}
		mode = c.deps.Loop
		c.logger.Info("live conversation started", slog.String("mechanism", "simulated"))
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	return nil
}

func (c *Controller) selectTransport(conv config.Conversation) transports.Transport {
	switch {
	case conv.Provider == "gemini" && c.deps.Native != nil:
		return c.deps.Native
	case conv.RealtimeURL != "" && c.deps.Realtime != nil:
		return c.deps.Realtime
	default:
		return nil
	}
}

// StopLive ends the voice conversation and returns the sealed turns,
// persisting them when a store is configured. Idempotent; a stop with no
// active conversation returns the transcript accumulated so far.
func (c *Controller) StopLive() []transcript.Turn {
	c.mu.Lock()
	mode := c.mode
	c.mode = nil
	c.mu.Unlock()

	if mode != nil {
		mode.Stop()
	}
	turns := c.deps.Tracker.Turns()
	c.deps.Tracker.Reset()

	if c.deps.Store != nil && len(turns) > 0 {
		id, err := c.deps.Store.Save(c.deps.Config.Persona.Name, c.deps.Config.Topic.Title, turns)
		if err != nil {
			c.logger.Error("transcript persist failed", slog.String("error", err.Error()))
		} else {
			c.logger.Info("transcript persisted",
				slog.String("session_id", id),
				slog.Int("turns", len(turns)))
		}
	}
	return turns
}

// SendText runs one non-voice chat turn: completion, transcript append,
// and spoken playback when a synthesizer is available and the output path
// is free.
func (c *Controller) SendText(ctx context.Context, text string) (transcript.Turn, error) {
	conv, err := c.Conversation()
	if err != nil {
		return transcript.Turn{}, err
	}

	turns := c.deps.Tracker.Turns()
	hist := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Speaker == frames.SpeakerAssistant {
			role = llm.RoleAssistant
		}
		hist = append(hist, llm.Message{Role: role, Content: t.Text})
	}

	reply, err := c.deps.Adapter.Complete(ctx, llm.Request{
		System:  conv.SystemPrompt,
		History: hist,
		User:    text,
	})
	if err != nil {
		return transcript.Turn{}, err
	}

	c.deps.Tracker.AppendTurn(frames.SpeakerUser, text, "")
	spoken, annotation := simulated.SplitAnnotation(reply)
	c.deps.Tracker.AppendTurn(frames.SpeakerAssistant, spoken, annotation)

	turn := transcript.Turn{Speaker: frames.SpeakerAssistant, Text: spoken, Annotation: annotation}
	c.playTurn(ctx, spoken)
	return turn, nil
}

// playTurn voices a chat reply. Best effort: a busy output path (an
// active live session) or a failed synthesis leaves the turn text-only.
func (c *Controller) playTurn(ctx context.Context, text string) {
	if c.deps.Synthesizer == nil || !c.deps.Synthesizer.Supported() {
		return
	}
	buf, err := c.deps.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		c.logger.Warn("chat synthesis failed",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return
	}
	sched, err := c.deps.Output.Acquire(audio.ConsumerChatTTS)
	if err != nil {
		c.logger.Debug("chat playback skipped", slog.String("reason", string(errorsx.Reason(err))))
		return
	}
	sched.SetIdleFunc(func() { c.deps.Output.Release(audio.ConsumerChatTTS) })
	if err := sched.Enqueue(buf); err != nil {
		c.logger.Warn("chat playback failed", slog.String("error", err.Error()))
		c.deps.Output.Release(audio.ConsumerChatTTS)
	}
}

// Ping verifies the chat provider with retries; used at configuration
// time, never inside the audio path.
func (c *Controller) Ping(ctx context.Context) error {
	return c.retry.Do(ctx, func() error {
		return c.deps.Adapter.Ping(ctx)
	})
}

// ListModels fetches the provider's model catalogue with retries.
func (c *Controller) ListModels(ctx context.Context) ([]llm.Model, error) {
	var models []llm.Model
	err := c.retry.Do(ctx, func() error {
		var inner error
		models, inner = c.deps.Adapter.ListModels(ctx)
		return inner
	})
	return models, err
}

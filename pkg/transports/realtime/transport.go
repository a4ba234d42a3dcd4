// Package realtime connects live sessions to a JSON-over-websocket voice
// gateway. It is the vendor-neutral counterpart to the native Gemini
// transport and speaks a small event protocol: base64 audio both ways,
// transcript fragments, barge-in and turn boundaries.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/frames"
	"github.com/parlo-app/parlo/pkg/transports"
)

const (
	handshakeTimeout = 10 * time.Second
	writeQueueSize   = 256
)

// Event is one websocket message in either direction.
type Event struct {
	Type   string       `json:"type"`
	Setup  *SetupEvent  `json:"setup,omitempty"`
	Audio  *AudioEvent  `json:"audio,omitempty"`
	Text   *TextEvent   `json:"text,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

type SetupEvent struct {
	Model        string `json:"model,omitempty"`
	Voice        string `json:"voice,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type AudioEvent struct {
	Payload    string `json:"payload"`
	MimeType   string `json:"mime_type,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

type TextEvent struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`
}

type ErrorDetail struct {
	Message string `json:"message"`
}

// Transport dials a realtime gateway endpoint.
type Transport struct {
	dialer *websocket.Dialer
	logger *slog.Logger
}

func New(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		logger: logger.With(slog.String("component", "realtime_transport")),
	}
}

func (t *Transport) Name() string { return "realtime" }

func (t *Transport) Connect(ctx context.Context, conv config.Conversation) (transports.Conn, error) {
	if conv.RealtimeURL == "" {
		return nil, errorsx.New(errorsx.ReasonLiveConnect, "realtime url not configured")
	}
	if !conv.HasCredential() {
		return nil, errorsx.New(errorsx.ReasonMissingCredential, "realtime gateway requires a credential")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+conv.Credential)
	ws, resp, err := t.dialer.DialContext(ctx, conv.RealtimeURL, header)
	if err != nil {
		reason := errorsx.ReasonNetwork
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				reason = errorsx.ReasonAuth
			case http.StatusTooManyRequests:
				reason = errorsx.ReasonRateLimit
			}
		}
		return nil, errorsx.Wrap(err, reason)
	}

	conn := &wsConn{
		ws:        ws,
		sessionID: uuid.NewString(),
		recv:      make(chan frames.Frame, 64),
		writeCh:   make(chan Event, writeQueueSize),
		logger:    t.logger,
		pts:       frames.NewPTSGen(),
	}
	conn.enqueue(Event{Type: "setup", Setup: &SetupEvent{
		Model:        conv.Model,
		Voice:        conv.Voice,
		SystemPrompt: conv.SystemPrompt,
	}})
	go conn.writeLoop()
	go conn.readLoop()
	t.logger.Info("realtime session connected",
		slog.String("url", conv.RealtimeURL),
		slog.String("session_id", conn.sessionID))
	return conn, nil
}

type wsConn struct {
	ws        *websocket.Conn
	sessionID string
	recv      chan frames.Frame
	writeCh   chan Event
	logger    *slog.Logger
	pts       *frames.PTSGen

	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *wsConn) Recv() <-chan frames.Frame { return c.recv }

func (c *wsConn) Send(chunk audio.OutboundChunk) error {
	if c.closed.Load() {
		return errorsx.New(errorsx.ReasonLiveSend, "send on closed realtime session")
	}
	c.enqueue(Event{Type: "audio", Audio: &AudioEvent{
		Payload:  chunk.Data,
		MimeType: chunk.MimeType,
	}})
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.writeCh)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) enqueue(evt Event) {
	select {
	case c.writeCh <- evt:
	default:
		// A stalled socket must not back-pressure the capture path.
		c.logger.Warn("outbound event dropped", slog.String("type", evt.Type))
	}
}

func (c *wsConn) writeLoop() {
	for evt := range c.writeCh {
		b, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
			c.logger.Warn("realtime write failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (c *wsConn) readLoop() {
	defer close(c.recv)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				c.emit(frames.NewSystemFrame(c.sessionID, c.pts.Next(c.sessionID), frames.SystemSessionClosed, nil))
				return
			}
			c.emit(frames.NewSystemFrame(c.sessionID, c.pts.Next(c.sessionID), frames.SystemSessionError, map[string]string{
				frames.MetaError: err.Error(),
			}))
			return
		}
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "audio":
			if evt.Audio == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(evt.Audio.Payload)
			if err != nil {
				continue
			}
			rate := evt.Audio.SampleRate
			if rate == 0 {
				rate = audio.OutputSampleRate
			}
			meta := map[string]string{}
			if evt.Audio.MimeType != "" {
				meta[frames.MetaMime] = evt.Audio.MimeType
			}
			c.emit(frames.NewAudioFrame(c.sessionID, c.pts.Next(c.sessionID), data, rate, 1, meta))
		case "transcript":
			if evt.Text == nil || evt.Text.Text == "" {
				continue
			}
			speaker := evt.Text.Speaker
			if speaker == "" {
				speaker = frames.SpeakerAssistant
			}
			meta := map[string]string{frames.MetaSpeaker: speaker}
			if evt.Text.IsFinal {
				meta[frames.MetaIsFinal] = "true"
			}
			c.emit(frames.NewTextFrame(c.sessionID, c.pts.Next(c.sessionID), evt.Text.Text, meta))
		case "interrupted":
			c.emit(frames.NewControlFrame(c.sessionID, c.pts.Next(c.sessionID), frames.ControlStartInterruption, nil))
		case "turn_complete":
			c.emit(frames.NewControlFrame(c.sessionID, c.pts.Next(c.sessionID), frames.ControlFlush, map[string]string{
				frames.MetaReason: "turn_complete",
			}))
		case "error":
			meta := map[string]string{}
			if evt.Error != nil {
				meta[frames.MetaError] = evt.Error.Message
			}
			c.emit(frames.NewSystemFrame(c.sessionID, c.pts.Next(c.sessionID), frames.SystemSessionError, meta))
			return
		case "closed":
			c.emit(frames.NewSystemFrame(c.sessionID, c.pts.Next(c.sessionID), frames.SystemSessionClosed, map[string]string{
				frames.MetaReason: evt.Reason,
			}))
			return
		}
	}
}

func (c *wsConn) emit(f frames.Frame) {
	select {
	case c.recv <- f:
	default:
		c.logger.Warn("inbound frame dropped", slog.String("kind", string(f.Kind())))
	}
}

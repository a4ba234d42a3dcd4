// Package geminilive connects native Gemini Live sessions. It translates
// server messages into the frame vocabulary the session layer consumes.
package geminilive

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/frames"
	"github.com/parlo-app/parlo/pkg/transports"
)

const defaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Transport dials the Gemini Live API over the official SDK.
type Transport struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{logger: logger.With(slog.String("component", "gemini_live"))}
}

func (t *Transport) Name() string { return "gemini_live" }

func (t *Transport) Connect(ctx context.Context, conv config.Conversation) (transports.Conn, error) {
	if !conv.HasCredential() {
		return nil, errorsx.New(errorsx.ReasonMissingCredential, "gemini live requires an api key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conv.Credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonLiveConnect)
	}

	model := conv.Model
	if model == "" {
		model = defaultModel
	}
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if conv.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: conv.SystemPrompt}},
		}
	}
	if conv.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: conv.Voice},
			},
		}
	}

	session, err := client.Live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, errorsx.Wrap(err, classifyConnectErr(err))
	}

	conn := &liveConn{
		session:   session,
		sessionID: uuid.NewString(),
		recv:      make(chan frames.Frame, 64),
		logger:    t.logger,
		pts:       frames.NewPTSGen(),
	}
	go conn.receiveLoop()
	t.logger.Info("live session connected",
		slog.String("model", model),
		slog.String("session_id", conn.sessionID))
	return conn, nil
}

func classifyConnectErr(err error) errorsx.ReasonCode {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "permission"):
		return errorsx.ReasonAuth
	case strings.Contains(msg, "429"), strings.Contains(msg, "quota"),
		strings.Contains(msg, "resource exhausted"):
		return errorsx.ReasonRateLimit
	default:
		return errorsx.ReasonNetwork
	}
}

type liveConn struct {
	session   *genai.Session
	sessionID string
	recv      chan frames.Frame
	logger    *slog.Logger
	pts       *frames.PTSGen

	mu     sync.Mutex
	closed bool
}

func (c *liveConn) Recv() <-chan frames.Frame { return c.recv }

func (c *liveConn) Send(chunk audio.OutboundChunk) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errorsx.New(errorsx.ReasonLiveSend, "send on closed live session")
	}
	c.mu.Unlock()

	raw, err := audio.DecodePayload(chunk.Data)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonMalformedAudio)
	}
	err = c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     raw,
			MIMEType: chunk.MimeType,
		},
	})
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonLiveSend)
	}
	return nil
}

func (c *liveConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.session.Close()
}

// receiveLoop drains server messages until the session ends. The last
// frame emitted on an abnormal end is a session_error system frame.
func (c *liveConn) receiveLoop() {
	defer close(c.recv)
	for {
		msg, err := c.session.Receive()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				c.emit(frames.NewSystemFrame(c.sessionID, c.pts.Next(c.sessionID), frames.SystemSessionClosed, nil))
				return
			}
			c.logger.Warn("live receive failed", slog.String("error", err.Error()))
			c.emit(frames.NewSystemFrame(c.sessionID, c.pts.Next(c.sessionID), frames.SystemSessionError, map[string]string{
				frames.MetaError: err.Error(),
			}))
			return
		}
		if msg == nil {
			c.emit(frames.NewSystemFrame(c.sessionID, c.pts.Next(c.sessionID), frames.SystemSessionClosed, nil))
			return
		}
		c.dispatch(msg)
	}
}

func (c *liveConn) dispatch(msg *genai.LiveServerMessage) {
	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted {
		c.emit(frames.NewControlFrame(c.sessionID, c.pts.Next(c.sessionID), frames.ControlStartInterruption, nil))
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			c.emit(frames.NewAudioFrame(
				c.sessionID,
				c.pts.Next(c.sessionID),
				part.InlineData.Data,
				audio.OutputSampleRate,
				1,
				map[string]string{frames.MetaMime: part.InlineData.MIMEType},
			))
		}
	}

	if tr := sc.InputTranscription; tr != nil && tr.Text != "" {
		c.emitTranscript(frames.SpeakerUser, tr.Text, tr.Finished)
	}
	if tr := sc.OutputTranscription; tr != nil && tr.Text != "" {
		c.emitTranscript(frames.SpeakerAssistant, tr.Text, tr.Finished)
	}

	if sc.TurnComplete {
		c.emit(frames.NewControlFrame(c.sessionID, c.pts.Next(c.sessionID), frames.ControlFlush, map[string]string{
			frames.MetaReason: "turn_complete",
		}))
	}
}

func (c *liveConn) emitTranscript(speaker, text string, final bool) {
	meta := map[string]string{frames.MetaSpeaker: speaker}
	if final {
		meta[frames.MetaIsFinal] = "true"
	}
	c.emit(frames.NewTextFrame(c.sessionID, c.pts.Next(c.sessionID), text, meta))
}

func (c *liveConn) emit(f frames.Frame) {
	select {
	case c.recv <- f:
	default:
		// Session layer is wedged; dropping beats blocking the SDK reader.
		c.logger.Warn("inbound frame dropped", slog.String("kind", string(f.Kind())))
	}
}

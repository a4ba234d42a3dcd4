// Package deepgram provides speech recognition for the simulated-live
// loop over the Deepgram streaming websocket.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/parlo-app/parlo/pkg/adapters/capture"
	"github.com/parlo-app/parlo/pkg/adapters/recognizer"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/logging"
)

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Interim    bool
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-3"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	return c
}

// Recognizer streams microphone blocks to Deepgram and emits interim and
// final transcripts. One Start covers one utterance; the loop re-arms it
// per listening phase.
type Recognizer struct {
	cfg    Config
	device capture.Device
	logger *slog.Logger

	mu         sync.Mutex
	dgClient   *client.WSCallback
	cancel     context.CancelFunc
	pipeWriter *io.PipeWriter
	results    chan recognizer.Result
	started    bool
}

func New(cfg Config, device capture.Device, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		cfg:     cfg.withDefaults(),
		device:  device,
		logger:  logging.NewComponentLogger(logger, "deepgram_recognizer"),
		results: make(chan recognizer.Result, 32),
	}
}

func (r *Recognizer) Name() string { return "deepgram" }

func (r *Recognizer) Supported() bool { return r.cfg.APIKey != "" && r.device != nil }

func (r *Recognizer) Start(ctx context.Context) error {
	if !r.Supported() {
		return errorsx.New(errorsx.ReasonRecognizerUnsupported, "deepgram recognizer not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errorsx.New(errorsx.ReasonRecognizerStart, "recognition already armed")
	}

	ctx, cancel := context.WithCancel(ctx)
	pipeReader, pipeWriter := io.Pipe()

	clientOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.cfg.Model,
		Language:       r.cfg.Language,
		Encoding:       "linear16",
		SampleRate:     r.cfg.SampleRate,
		InterimResults: r.cfg.Interim,
		SmartFormat:    true,
	}

	dgClient, err := client.NewWSUsingCallback(ctx, r.cfg.APIKey, clientOptions, transcriptOptions, &callback{parent: r})
	if err != nil {
		cancel()
		return errorsx.Wrap(err, errorsx.ReasonRecognizerStart)
	}
	if connected := dgClient.Connect(); !connected {
		cancel()
		return errorsx.New(errorsx.ReasonRecognizerStart, "deepgram connection failed")
	}

	if err := r.device.Start(ctx); err != nil {
		dgClient.Stop()
		cancel()
		return err
	}

	r.dgClient = dgClient
	r.cancel = cancel
	r.pipeWriter = pipeWriter
	r.started = true

	go func() {
		if err := dgClient.Stream(pipeReader); err != nil && ctx.Err() == nil {
			r.logger.Error("deepgram stream error", slog.String("error", err.Error()))
		}
	}()
	go r.pump(ctx, pipeWriter)

	r.logger.Info("recognition armed",
		slog.String("model", r.cfg.Model),
		slog.String("language", r.cfg.Language))
	return nil
}

// pump converts capture blocks to linear16 and feeds the Deepgram pipe.
func (r *Recognizer) pump(ctx context.Context, w *io.PipeWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-r.device.Frames():
			if !ok {
				return
			}
			raw := make([]byte, len(block)*2)
			for i, v := range block {
				s := int32(v * 32768)
				if s > 32767 {
					s = 32767
				} else if s < -32768 {
					s = -32768
				}
				raw[i*2] = byte(s)
				raw[i*2+1] = byte(s >> 8)
			}
			if _, err := w.Write(raw); err != nil {
				return
			}
		}
	}
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	if r.cancel != nil {
		r.cancel()
	}
	if r.pipeWriter != nil {
		_ = r.pipeWriter.Close()
	}
	if r.dgClient != nil {
		r.dgClient.Stop()
		r.dgClient = nil
	}
	_ = r.device.Close()
	return nil
}

func (r *Recognizer) Results() <-chan recognizer.Result { return r.results }

type callback struct {
	parent *Recognizer
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Debug("deepgram connection opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	res := recognizer.Result{
		Text:  transcript,
		Final: mr.IsFinal || mr.SpeechFinal,
	}
	select {
	case c.parent.results <- res:
	default:
		c.parent.logger.Warn("recognition result dropped")
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.parent.logger.Debug("deepgram metadata", slog.String("request_id", md.RequestID))
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Debug("deepgram connection closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram error",
		slog.String("code", er.ErrCode),
		slog.String("message", er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram unhandled event", slog.String("data", fmt.Sprintf("%.120s", byData)))
	return nil
}

var _ recognizer.Recognizer = (*Recognizer)(nil)

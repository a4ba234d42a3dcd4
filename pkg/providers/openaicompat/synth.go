package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/parlo-app/parlo/pkg/adapters/synth"
	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/errorsx"
)

// Synthesizer renders speech through an OpenAI-compatible /audio/speech
// endpoint, requesting raw PCM so no container parsing is needed.
type Synthesizer struct {
	adapter *Adapter
	cfg     synth.Config
}

func NewSynthesizer(adapter *Adapter, cfg synth.Config) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "alloy"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.OutputSampleRate
	}
	return &Synthesizer{adapter: adapter, cfg: cfg}
}

func (s *Synthesizer) Name() string { return "openai_compat_tts" }

func (s *Synthesizer) Supported() bool { return s.adapter != nil && s.adapter.APIKey != "" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	body, err := json.Marshal(map[string]any{
		"model":           s.cfg.Model,
		"voice":           s.cfg.VoiceID,
		"input":           text,
		"response_format": "pcm",
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.adapter.BaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	s.adapter.applyHeaders(httpReq)
	resp, err := s.adapter.client().Do(httpReq)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonNetwork)
	}
	defer resp.Body.Close()
	if err := s.adapter.checkStatus(resp); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSynthesize)
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSynthesize)
	}
	return audio.DecodePCM(pcm, s.cfg.SampleRate, 1)
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

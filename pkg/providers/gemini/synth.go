package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/parlo-app/parlo/pkg/adapters/synth"
	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/errorsx"
)

const defaultTTSModel = "gemini-2.5-flash-preview-tts"

// Synthesizer renders speech with the Gemini TTS models. Output is raw
// 24 kHz mono PCM, matching the live transport's playback rate.
type Synthesizer struct {
	adapter *Adapter
	cfg     synth.Config
}

func NewSynthesizer(adapter *Adapter, cfg synth.Config) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = defaultTTSModel
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "Puck"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.OutputSampleRate
	}
	return &Synthesizer{adapter: adapter, cfg: cfg}
}

func (s *Synthesizer) Name() string { return "gemini_tts" }

func (s *Synthesizer) Supported() bool { return s.adapter != nil && s.adapter.APIKey != "" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	client, err := s.adapter.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.cfg.VoiceID},
			},
		},
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: text}},
	}}

	resp, err := client.Models.GenerateContent(ctx, s.cfg.Model, contents, cfg)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSynthesize)
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return audio.DecodePCM(part.InlineData.Data, s.cfg.SampleRate, 1)
			}
		}
	}
	return nil, errorsx.New(errorsx.ReasonSynthesize, "no audio in synthesis response")
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

// Package gemini adapts the Google GenAI SDK to the chat and synthesis
// boundaries. The native live transport lives in transports/geminilive;
// this package covers the non-live paths.
package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/llm"
)

const defaultChatModel = "gemini-2.5-flash"

type Adapter struct {
	APIKey string
	Model  string

	client *genai.Client
}

func NewAdapter(apiKey, model string) *Adapter {
	if model == "" {
		model = defaultChatModel
	}
	return &Adapter{APIKey: apiKey, Model: model}
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) ensureClient(ctx context.Context) (*genai.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if a.APIKey == "" {
		return nil, errorsx.New(errorsx.ReasonMissingCredential, "gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  a.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonProvider)
	}
	a.client = client
	return client, nil
}

func (a *Adapter) Complete(ctx context.Context, req llm.Request) (string, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.User}},
	})

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := client.Models.GenerateContent(ctx, a.Model, contents, cfg)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonCompletion)
	}
	text := resp.Text()
	if text == "" {
		return "", errorsx.New(errorsx.ReasonCompletion, "empty completion response")
	}
	return text, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.Complete(ctx, llm.Request{User: "ping"})
	return err
}

// ListModels returns the models this adapter is known to work with. The
// GenAI models endpoint lists hundreds of entries, most of them unusable
// for conversation, so a curated set is more honest here.
func (a *Adapter) ListModels(ctx context.Context) ([]llm.Model, error) {
	if _, err := a.ensureClient(ctx); err != nil {
		return nil, err
	}
	return []llm.Model{
		{ID: "gemini-2.5-flash", OwnedBy: "google"},
		{ID: "gemini-2.5-pro", OwnedBy: "google"},
		{ID: "gemini-2.5-flash-native-audio-preview-09-2025", OwnedBy: "google"},
		{ID: "gemini-2.5-flash-preview-tts", OwnedBy: "google"},
	}, nil
}

var _ llm.Adapter = (*Adapter)(nil)

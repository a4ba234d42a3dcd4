// Package openaicompat talks to OpenAI-compatible chat endpoints. Any
// vendor exposing /chat/completions and /models works through this
// adapter, which is what the conversation layer uses for non-Gemini
// providers.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/llm"
	"github.com/parlo-app/parlo/pkg/resilience"
)

type Adapter struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

func NewAdapter(apiKey, model, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Adapter{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *Adapter) Name() string { return "openai_compat" }

func (a *Adapter) Complete(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]map[string]any, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": llm.RoleSystem, "content": req.System})
	}
	for _, m := range req.History {
		messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
	}
	messages = append(messages, map[string]any{"role": llm.RoleUser, "content": req.User})

	body, err := json.Marshal(map[string]any{
		"model":    a.Model,
		"messages": messages,
	})
	if err != nil {
		return "", err
	}
	payload, err := a.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonCompletion)
	}
	if len(parsed.Choices) == 0 {
		return "", errorsx.New(errorsx.ReasonCompletion, "no choices in completion response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Ping issues a minimal completion to verify credentials and
// connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.Complete(ctx, llm.Request{User: "ping"})
	return err
}

func (a *Adapter) ListModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	a.applyHeaders(httpReq)
	resp, err := a.client().Do(httpReq)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonNetwork)
	}
	defer resp.Body.Close()
	if err := a.checkStatus(resp); err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonProvider)
	}
	models := make([]llm.Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, llm.Model{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

func (a *Adapter) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	a.applyHeaders(httpReq)
	resp, err := a.client().Do(httpReq)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonNetwork)
	}
	defer resp.Body.Close()
	if err := a.checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (a *Adapter) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(resp.Body)
		return resilience.RateLimitError{Provider: a.Name(), Message: string(body)}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(resp.Body)
		return errorsx.New(errorsx.ReasonAuth, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return errorsx.New(errorsx.ReasonProvider, string(body))
	}
	return nil
}

func (a *Adapter) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

var _ llm.Adapter = (*Adapter)(nil)

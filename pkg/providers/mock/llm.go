// Package mock provides scripted providers for tests and offline
// development.
package mock

import (
	"context"
	"sync"

	"github.com/parlo-app/parlo/pkg/llm"
)

type LLMAdapter struct {
	// Responses are returned in order; the last one repeats.
	Responses []string
	// Err, when set, fails every call.
	Err error

	mu       sync.Mutex
	requests []llm.Request
	calls    int
}

func NewLLMAdapter(responses ...string) *LLMAdapter {
	if len(responses) == 0 {
		responses = []string{"mock response"}
	}
	return &LLMAdapter{Responses: responses}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Complete(ctx context.Context, req llm.Request) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return "", a.Err
	}
	a.requests = append(a.requests, req)
	idx := a.calls
	if idx >= len(a.Responses) {
		idx = len(a.Responses) - 1
	}
	a.calls++
	return a.Responses[idx], nil
}

func (a *LLMAdapter) Ping(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Err
}

func (a *LLMAdapter) ListModels(ctx context.Context) ([]llm.Model, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	return []llm.Model{{ID: "mock-model", OwnedBy: "mock"}}, nil
}

// Requests returns every completion request seen so far.
func (a *LLMAdapter) Requests() []llm.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Request, len(a.requests))
	copy(out, a.requests)
	return out
}

var _ llm.Adapter = (*LLMAdapter)(nil)

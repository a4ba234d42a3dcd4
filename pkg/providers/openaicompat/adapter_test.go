package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parlo-app/parlo/pkg/adapters/synth"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/llm"
	"github.com/parlo-app/parlo/pkg/resilience"
)

func newTestAdapter(srv *httptest.Server) *Adapter {
	return NewAdapter("test-key", "gpt-4o-mini", srv.URL)
}

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Sure! (好的！)"}},
			},
		})
	}))
	defer srv.Close()

	reply, err := newTestAdapter(srv).Complete(context.Background(), llm.Request{
		System:  "be brief",
		History: []llm.Message{{Role: llm.RoleUser, Content: "hi"}, {Role: llm.RoleAssistant, Content: "hello"}},
		User:    "how are you?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Sure! (好的！)" {
		t.Fatalf("reply = %q", reply)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	messages := gotBody["messages"].([]any)
	if len(messages) != 4 {
		t.Fatalf("messages = %d", len(messages))
	}
	first := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Fatalf("system message = %v", first)
	}
	last := messages[3].(map[string]any)
	if last["role"] != "user" || last["content"] != "how are you?" {
		t.Fatalf("user message = %v", last)
	}
}

func TestCompleteStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"rate limited", http.StatusTooManyRequests, func(t *testing.T, err error) {
			if !resilience.IsRateLimit(err) {
				t.Fatalf("err = %v", err)
			}
		}},
		{"unauthorized", http.StatusUnauthorized, func(t *testing.T, err error) {
			if !errorsx.HasReason(err, errorsx.ReasonAuth) {
				t.Fatalf("reason = %v", errorsx.Reason(err))
			}
		}},
		{"server error", http.StatusInternalServerError, func(t *testing.T, err error) {
			if !errorsx.HasReason(err, errorsx.ReasonProvider) {
				t.Fatalf("reason = %v", errorsx.Reason(err))
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			_, err := newTestAdapter(srv).Complete(context.Background(), llm.Request{User: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()
	_, err := newTestAdapter(srv).Complete(context.Background(), llm.Request{User: "hi"})
	if !errorsx.HasReason(err, errorsx.ReasonCompletion) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "gpt-4o", "owned_by": "openai"},
				{"id": "gpt-4o-mini", "owned_by": "openai"},
			},
		})
	}))
	defer srv.Close()

	models, err := newTestAdapter(srv).ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].ID != "gpt-4o" {
		t.Fatalf("models = %+v", models)
	}
}

func TestSynthesizeDecodesPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["response_format"] != "pcm" {
			t.Errorf("format = %v", body["response_format"])
		}
		// Four s16le samples.
		_, _ = w.Write([]byte{0x00, 0x40, 0x00, 0xC0, 0x00, 0x00, 0xFF, 0x7F})
	}))
	defer srv.Close()

	s := NewSynthesizer(newTestAdapter(srv), synth.Config{})
	if !s.Supported() {
		t.Fatal("supported should be true with an api key")
	}
	buf, err := s.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if buf.FrameCount() != 4 || buf.SampleRate != 24000 {
		t.Fatalf("buf = %d frames at %d Hz", buf.FrameCount(), buf.SampleRate)
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[0][1] != -0.5 {
		t.Fatalf("samples = %v", buf.Channels[0][:2])
	}
}

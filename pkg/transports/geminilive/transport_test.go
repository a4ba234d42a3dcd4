package geminilive

import (
	"context"
	"errors"
	"testing"

	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/errorsx"
)

func TestConnectRequiresCredential(t *testing.T) {
	_, err := New(nil).Connect(context.Background(), config.Conversation{Provider: "gemini"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonMissingCredential) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
}

func TestClassifyConnectErr(t *testing.T) {
	tests := []struct {
		msg    string
		reason errorsx.ReasonCode
	}{
		{"server returned 401 Unauthorized", errorsx.ReasonAuth},
		{"API key not valid", errorsx.ReasonAuth},
		{"PERMISSION_DENIED: caller lacks access", errorsx.ReasonAuth},
		{"received 429 from upstream", errorsx.ReasonRateLimit},
		{"quota exceeded for project", errorsx.ReasonRateLimit},
		{"RESOURCE EXHAUSTED", errorsx.ReasonRateLimit},
		{"dial tcp: connection refused", errorsx.ReasonNetwork},
		{"context deadline exceeded", errorsx.ReasonNetwork},
	}
	for _, tt := range tests {
		if got := classifyConnectErr(errors.New(tt.msg)); got != tt.reason {
			t.Errorf("classifyConnectErr(%q) = %v, want %v", tt.msg, got, tt.reason)
		}
	}
}

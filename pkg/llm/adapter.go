// Package llm defines the chat-completion boundary used by the
// simulated-live loop and the text conversation path.
package llm

import "context"

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is one completion call. History is ordered oldest first and
// excludes the system prompt.
type Request struct {
	System  string
	History []Message
	User    string
}

// Model describes one entry from a provider's model listing.
type Model struct {
	ID      string
	OwnedBy string
}

// Adapter is a chat-completion provider.
type Adapter interface {
	// Name returns adapter name for logging.
	Name() string
	// Complete returns the assistant reply for one request.
	Complete(ctx context.Context, req Request) (string, error)
	// Ping verifies connectivity and credentials with a minimal call.
	Ping(ctx context.Context) error
	// ListModels returns the models available to the configured credential.
	ListModels(ctx context.Context) ([]Model, error)
}

package config

import "strings"

// Conversation is the immutable snapshot taken when a session starts.
// Changing any field requires a new session.
type Conversation struct {
	Provider     string
	Model        string
	Voice        string
	Credential   string
	SystemPrompt string
	Topic        string

	// RealtimeURL selects the websocket duplex endpoint for providers that
	// expose an OpenAI-realtime-style interface. Empty for Gemini.
	RealtimeURL string
}

// HasCredential reports whether the snapshot carries a usable key.
func (c Conversation) HasCredential() bool {
	return strings.TrimSpace(c.Credential) != ""
}

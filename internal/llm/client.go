// Package llm provides model backend client implementations.
package llm

import (
	"context"
	"time"
)

// Message represents a chat message for the model.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Options are sampling parameters passed through to the backend.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
}

// ChatResponse is the unified response from a model backend.
// Wire format conversion happens at provider boundaries (ollama.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Timing (populated when available)
	TotalDuration time.Duration
}

// Client is the interface every model backend must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// An empty Message.Content in a nil-error response is a valid
	// outcome; callers decide whether that is acceptable.
	Chat(ctx context.Context, model string, messages []Message, opts *Options) (*ChatResponse, error)

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}

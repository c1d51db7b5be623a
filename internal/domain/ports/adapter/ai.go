package adapter

import (
	"context"
	"fmt"
	"strings"

	"chat-assistant/internal/domain"
)

// Message represents a chat message in the provider's wire shape.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Model is the set of chat models the session can ask for.
type Model int

const (
	ModelV35 Model = iota
	ModelV4
)

func (m Model) String() string {
	switch m {
	case ModelV4:
		return "gpt-4"
	default:
		return "gpt-3.5-turbo"
	}
}

// ParseModel accepts the provider name ("gpt-4") or the short form ("v4", "v3.5").
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gpt-3.5-turbo", "v3.5", "v3_5":
		return ModelV35, nil
	case "gpt-4", "v4":
		return ModelV4, nil
	default:
		return ModelV35, fmt.Errorf("unknown model %q: %w", s, domain.ErrInvalidArgument)
	}
}

// CompletionRequest carries one transcript plus the per-call configuration.
type CompletionRequest struct {
	Messages    []Message
	APIKey      string
	Model       Model
	Temperature float64
}

// CompletionClient turns a transcript into a single assistant reply.
// Failures are *domain.CompletionError values; an empty success is never returned
// in place of a failure.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

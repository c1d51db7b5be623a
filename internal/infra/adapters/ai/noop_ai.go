package ai

import (
	"context"
	"time"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/adapter"
)

var _ adapter.CompletionClient = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers locally for dev runs: it echoes the last user turn
// after a short delay, so the page can be exercised without a provider key.
type NoopAIAdapter struct {
	delay time.Duration
}

func NewNoopAIAdapter(delay time.Duration) *NoopAIAdapter {
	return &NoopAIAdapter{delay: delay}
}

func (a *NoopAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (string, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", domain.NewCompletionError("noop.Complete", domain.ErrNetwork, 0, ctx.Err())
	}
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	return "You said: " + last, nil
}

package ai

import (
	"context"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.CompletionClient = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.CompletionClient
	sem   chan struct{}
}

// NewLimitedAI caps concurrent provider calls across all sessions.
func NewLimitedAI(inner adapter.CompletionClient, maxConcurrent int) adapter.CompletionClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", domain.NewCompletionError("ai.limit", domain.ErrNetwork, 0, ctx.Err())
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, req)
}

package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/adapter"
	"chat-assistant/internal/infra/logging"
	"chat-assistant/internal/infra/metrics"
)

var _ adapter.CompletionClient = (*Instrumented)(nil)

// Instrumented records latency, failure kinds and prompt size around inner.
type Instrumented struct {
	inner   adapter.CompletionClient
	counter TokenCounter
	log     *zerolog.Logger
	dev     bool
}

// NewInstrumented wraps inner. A nil counter disables token metrics.
func NewInstrumented(inner adapter.CompletionClient, counter TokenCounter, logger *zerolog.Logger, dev bool) *Instrumented {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "completion").Logger()
	return &Instrumented{inner: inner, counter: counter, log: &l, dev: dev}
}

func (i *Instrumented) Complete(ctx context.Context, req adapter.CompletionRequest) (string, error) {
	log := logging.With(ctx, i.log)
	defer logging.TraceDuration(log, "CompletionClient.Complete")()

	start := time.Now()
	reply, err := i.inner.Complete(ctx, req)
	elapsed := time.Since(start)

	model := req.Model.String()
	metrics.ObserveCompletion(model, elapsed.Milliseconds(), err == nil)
	if i.counter != nil {
		// counting may have to load an encoding; keep it off the reply path
		go i.countPrompt(log, model, req.Messages)
	}

	if err != nil {
		code := domain.ErrorCode(err)
		metrics.IncAIFailure(code)
		log.Warn().Err(err).
			Str("model", model).
			Str("kind", code).
			Str("api_key", logging.Redact(req.APIKey, i.dev)).
			Dur("latency", elapsed).
			Msg("completion failed")
		return "", err
	}
	log.Debug().
		Str("model", model).
		Int("messages", len(req.Messages)).
		Dur("latency", elapsed).
		Msg("completion ok")
	return reply, nil
}

func (i *Instrumented) countPrompt(log *zerolog.Logger, model string, msgs []adapter.Message) {
	n := i.counter.CountPromptTokens(model, msgs)
	metrics.AddPromptTokens(model, n)
	log.Trace().Str("model", model).Int("prompt_tokens", n).Msg("prompt tokens counted")
}

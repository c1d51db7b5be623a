package kv

import (
	"context"
	"errors"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/repository"
	"chat-assistant/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ repository.KeyValueStore = (*Instrumented)(nil)

// Instrumented counts operations per backend and logs backend failures.
type Instrumented struct {
	inner   repository.KeyValueStore
	backend string
	log     *zerolog.Logger
}

func NewInstrumented(inner repository.KeyValueStore, backend string, logger *zerolog.Logger) *Instrumented {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "kv").Str("backend", backend).Logger()
	return &Instrumented{inner: inner, backend: backend, log: &l}
}

func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.inner.Get(ctx, key)
	s.observe("get", key, err)
	return v, err
}

func (s *Instrumented) Set(ctx context.Context, key string, value []byte) error {
	err := s.inner.Set(ctx, key, value)
	s.observe("set", key, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	err := s.inner.Delete(ctx, key)
	s.observe("delete", key, err)
	return err
}

func (s *Instrumented) observe(op, key string, err error) {
	switch {
	case err == nil:
		metrics.IncKVOp(s.backend, op, "ok")
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncKVOp(s.backend, op, "not_found")
	default:
		metrics.IncKVOp(s.backend, op, "error")
		s.log.Warn().Err(err).Str("op", op).Str("key", key).Msg("kv operation failed")
	}
}

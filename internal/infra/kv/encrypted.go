package kv

import (
	"context"
	"fmt"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/repository"
)

// Sealer is satisfied by *security.EncryptionService.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

var _ repository.KeyValueStore = (*Encrypted)(nil)

// Encrypted seals values at rest. The logical key is the associated data.
type Encrypted struct {
	inner  repository.KeyValueStore
	sealer Sealer
}

func NewEncrypted(inner repository.KeyValueStore, sealer Sealer) *Encrypted {
	return &Encrypted{inner: inner, sealer: sealer}
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	pt, err := e.sealer.Open(sealed, []byte(key))
	if err != nil {
		return nil, domain.NewStorageError("encrypted.Get", key, fmt.Errorf("decrypt: %w", err))
	}
	return pt, nil
}

func (e *Encrypted) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := e.sealer.Seal(value, []byte(key))
	if err != nil {
		return domain.NewStorageError("encrypted.Set", key, fmt.Errorf("encrypt: %w", err))
	}
	return e.inner.Set(ctx, key, sealed)
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

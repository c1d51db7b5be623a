package repository

import (
	"context"
)

// -----------------------------
// Key-Value storage
// -----------------------------

// KeyValueStore is the port for the client's persistent local storage.
// Values are opaque JSON payloads. Last write wins; there are no transactions.
//
// Get returns domain.ErrNotFound for an absent key. Backend failures are
// *domain.StorageError values (errors.Is(err, domain.ErrStorageUnavailable)).
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

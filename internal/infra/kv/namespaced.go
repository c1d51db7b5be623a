package kv

import (
	"context"

	"chat-assistant/internal/domain/ports/repository"
)

var _ repository.KeyValueStore = (*Namespaced)(nil)

// Namespaced scopes every key of inner under a prefix, giving each web client
// its own view of a shared backend.
type Namespaced struct {
	inner  repository.KeyValueStore
	prefix string
}

func NewNamespaced(inner repository.KeyValueStore, prefix string) *Namespaced {
	return &Namespaced{inner: inner, prefix: prefix}
}

// ClientPrefix is the namespace used for one browser client.
func ClientPrefix(clientID string) string {
	return "client:" + clientID + ":"
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

// Package kvtest holds the behaviour every KeyValueStore backend must share.
package kvtest

import (
	"context"
	"testing"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store with keys under a unique prefix so backends that share
// state between tests do not collide.
func Run(t *testing.T, store repository.KeyValueStore, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := func(k string) string { return prefix + k }

	t.Run("absent key", func(t *testing.T) {
		_, err := store.Get(ctx, key("missing"))
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key("api_key"), []byte(`"sk-1"`)))
		got, err := store.Get(ctx, key("api_key"))
		require.NoError(t, err)
		assert.Equal(t, `"sk-1"`, string(got))
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key("k"), []byte(`1`)))
		require.NoError(t, store.Set(ctx, key("k"), []byte(`2`)))
		got, err := store.Get(ctx, key("k"))
		require.NoError(t, err)
		assert.Equal(t, `2`, string(got))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key("gone"), []byte(`[]`)))
		require.NoError(t, store.Delete(ctx, key("gone")))
		_, err := store.Get(ctx, key("gone"))
		require.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, store.Delete(ctx, key("never-there")))
	})

	t.Run("keys with spaces and punctuation", func(t *testing.T) {
		k := key("chat-Hello, world?")
		require.NoError(t, store.Set(ctx, k, []byte(`[{"text":"Hello, world?","role":"user"}]`)))
		got, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"text":"Hello, world?","role":"user"}]`, string(got))
	})
}

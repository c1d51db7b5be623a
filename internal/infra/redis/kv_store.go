package redis

import (
	"context"
	"errors"
	"time"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.KeyValueStore = (*KVStore)(nil)

// KVStore keeps values under "kv:<key>". A non-zero ttl makes every write
// expire, so abandoned browser clients eventually vanish.
type KVStore struct {
	client *Client
	ttl    time.Duration
}

func NewKVStore(client *Client, ttl time.Duration) *KVStore {
	return &KVStore{client: client, ttl: ttl}
}

func kvKey(key string) string { return "kv:" + key }

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, kvKey(key))
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("redis.Get", key, err)
	}
	return v, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, kvKey(key), value, s.ttl); err != nil {
		return domain.NewStorageError("redis.Set", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, kvKey(key)); err != nil {
		return domain.NewStorageError("redis.Delete", key, err)
	}
	return nil
}

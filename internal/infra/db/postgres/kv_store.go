package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/repository"
)

var _ repository.KeyValueStore = (*KVStore)(nil)

type KVStore struct {
	pool *pgxpool.Pool
}

func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value FROM kv_entries WHERE key = $1`
	var v []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("postgres.Get", key, err)
	}
	return v, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	const q = `
INSERT INTO kv_entries (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET
  value = EXCLUDED.value,
  updated_at = EXCLUDED.updated_at;`
	if value == nil {
		value = []byte{}
	}
	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return domain.NewStorageError("postgres.Set", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM kv_entries WHERE key = $1`
	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return domain.NewStorageError("postgres.Delete", key, err)
	}
	return nil
}

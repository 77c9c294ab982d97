package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"retrycache/internal/settings"
	"retrycache/internal/shared"
)

// KVStore хранит записи настроек в таблице kv.
// Mutate берёт advisory lock на ключ внутри транзакции, поэтому параллельные
// read-modify-write по одному ключу выполняются по очереди, включая первую вставку.
type KVStore struct {
	pool *pgxpool.Pool
}

// Querier - общие методы пула и транзакции.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ settings.Store = (*KVStore)(nil)
	_ Querier        = (*pgxpool.Pool)(nil)
	_ Querier        = (pgx.Tx)(nil)
)

// NewKVStore создает KVStore. Схема должна быть применена через ApplyMigrations.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Pool возвращает пул (для health-check).
func (s *KVStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Load implements settings.Store.
func (s *KVStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	v, found, err := load(ctx, s.pool, key, false)
	if err != nil {
		return nil, false, shared.Dependency("postgres", err)
	}
	return v, found, nil
}

// Save implements settings.Store.
func (s *KVStore) Save(ctx context.Context, key string, value []byte) error {
	if err := upsert(ctx, s.pool, key, value); err != nil {
		return shared.Dependency("postgres", err)
	}
	return nil
}

// Delete implements settings.Store.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return shared.Dependency("postgres", fmt.Errorf("delete %s: %w", key, err))
	}
	return nil
}

// Mutate implements settings.Store.
func (s *KVStore) Mutate(ctx context.Context, key string, fn settings.MutateFunc) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, s.pool, func(q pgx.Tx) error {
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		cur, found, err := load(ctx, q, key, true)
		if err != nil {
			return err
		}
		next, err := fn(cur, found)
		if err != nil {
			fnErr = err
			return err
		}
		return upsert(ctx, q, key, next)
	})
	if err != nil && !errors.Is(err, fnErr) {
		return shared.Dependency("postgres", err)
	}
	return err
}

func load(ctx context.Context, q Querier, key string, forUpdate bool) ([]byte, bool, error) {
	query := `SELECT value FROM kv WHERE key = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var v []byte
	err := q.QueryRow(ctx, query, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	return v, true, nil
}

func upsert(ctx context.Context, q Querier, key string, value []byte) error {
	_, err := q.Exec(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

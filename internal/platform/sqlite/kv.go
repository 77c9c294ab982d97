package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retrycache/internal/settings"
	"retrycache/internal/shared"
)

// KVStore хранит записи настроек в таблице kv.
// Mutate выполняется в IMMEDIATE транзакции, параллельные обновления не теряются.
type KVStore struct {
	db     *sql.DB
	runner *TxRunner
	now    func() time.Time
}

var _ settings.Store = (*KVStore)(nil)

// NewKVStore создает KVStore поверх открытой БД с применённой схемой.
func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db, runner: NewTxRunner(db), now: time.Now}
}

// OpenKVStore применяет миграции, открывает БД по пути dbPath и создает KVStore.
func OpenKVStore(ctx context.Context, dbPath string) (*KVStore, error) {
	if err := ApplyMigrations(dbPath); err != nil {
		return nil, err
	}
	db, err := NewDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	return NewKVStore(db), nil
}

// Close закрывает подключение к БД.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// DB возвращает подключение (для health-check).
func (s *KVStore) DB() *sql.DB {
	return s.db
}

// Load implements settings.Store.
func (s *KVStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	v, found, err := s.load(ctx, s.db, key)
	if err != nil {
		return nil, false, shared.Dependency("sqlite", err)
	}
	return v, found, nil
}

// Save implements settings.Store.
func (s *KVStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.upsert(ctx, s.db, key, value); err != nil {
		return shared.Dependency("sqlite", err)
	}
	return nil
}

// Delete implements settings.Store.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return shared.Dependency("sqlite", fmt.Errorf("delete %s: %w", key, err))
	}
	return nil
}

// Mutate implements settings.Store.
func (s *KVStore) Mutate(ctx context.Context, key string, fn settings.MutateFunc) error {
	var fnErr error
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		q := s.runner.GetQuerier(ctx)
		cur, found, err := s.load(ctx, q, key)
		if err != nil {
			return err
		}
		next, err := fn(cur, found)
		if err != nil {
			fnErr = err
			return err
		}
		return s.upsert(ctx, q, key, next)
	})
	if err != nil && !errors.Is(err, fnErr) {
		return shared.Dependency("sqlite", err)
	}
	return err
}

func (s *KVStore) load(ctx context.Context, q Querier, key string) ([]byte, bool, error) {
	var v []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	return v, true, nil
}

func (s *KVStore) upsert(ctx context.Context, q Querier, key string, value []byte) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

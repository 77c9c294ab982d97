package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"retrycache/internal/settings"
	"retrycache/internal/shared"
)

// maxMutateRetries bounds optimistic retries on WATCH conflicts.
const maxMutateRetries = 1000

// ErrTooManyConflicts is returned when Mutate keeps losing the WATCH race.
var ErrTooManyConflicts = errors.New("redis: too many concurrent updates")

// KVStore implements settings.Store on plain string keys.
// Mutate uses WATCH/MULTI and retries when another writer wins.
type KVStore struct {
	c          *Client
	maxRetries int
}

var _ settings.Store = (*KVStore)(nil)

// NewKVStore creates a KVStore.
func NewKVStore(c *Client) *KVStore {
	return &KVStore{c: c, maxRetries: maxMutateRetries}
}

// Load implements settings.Store.
func (s *KVStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.c.rdb.Get(ctx, s.c.settingsKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, shared.Dependency("redis", fmt.Errorf("get %s: %w", key, err))
	}
	return v, true, nil
}

// Save implements settings.Store.
func (s *KVStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.c.rdb.Set(ctx, s.c.settingsKey(key), value, 0).Err(); err != nil {
		return shared.Dependency("redis", fmt.Errorf("set %s: %w", key, err))
	}
	return nil
}

// Delete implements settings.Store.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.c.rdb.Del(ctx, s.c.settingsKey(key)).Err(); err != nil {
		return shared.Dependency("redis", fmt.Errorf("del %s: %w", key, err))
	}
	return nil
}

// Mutate implements settings.Store.
func (s *KVStore) Mutate(ctx context.Context, key string, fn settings.MutateFunc) error {
	k := s.c.settingsKey(key)

	var fnErr error
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		found := true
		switch {
		case errors.Is(err, redis.Nil):
			cur, found = nil, false
		case err != nil:
			return err
		}

		next, err := fn(cur, found)
		if err != nil {
			fnErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for range s.maxRetries {
		fnErr = nil
		err := s.c.rdb.Watch(ctx, txf, k)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case fnErr != nil:
			return err
		default:
			return shared.Dependency("redis", fmt.Errorf("mutate %s: %w", key, err))
		}
	}
	return shared.MarkKind(fmt.Errorf("mutate %s: %w", key, ErrTooManyConflicts), shared.KindConflict)
}

// Package settings is the process-wide key/value configuration store that
// holds retry settings, per-context profile overrides, learning records,
// stats counters and the cache buster.
//
// Values are stored as JSON documents under well-known keys. All shared
// counters are updated through Store.Mutate, which every backend implements
// as an atomic read-modify-write, so concurrent recorders never lose updates.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Well-known keys.
const (
	KeyConfig        = "config"
	KeyLearning      = "retry_ai"
	KeyStats         = "stats"
	KeyCacheBuster   = "cache_buster"
	KeyLastHeartbeat = "last_heartbeat"
)

// MutateFunc receives the current raw value (nil when absent) and returns
// the value to store. Returning an error aborts the update.
type MutateFunc func(current []byte, found bool) ([]byte, error)

// Store is a key/value store with an atomic read-modify-write primitive.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Mutate(ctx context.Context, key string, fn MutateFunc) error
}

// Get decodes the JSON value stored under key, returning def when the key is absent.
func Get[T any](ctx context.Context, s Store, key string, def T) (T, error) {
	raw, found, err := s.Load(ctx, key)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	v := def
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// Put encodes v as JSON and stores it under key.
func Put[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Save(ctx, key, raw)
}

// Update atomically applies fn to the decoded value under key (def when absent)
// and stores the result. It returns the value that was written.
func Update[T any](ctx context.Context, s Store, key string, def T, fn func(v *T) error) (T, error) {
	var out T
	err := s.Mutate(ctx, key, func(current []byte, found bool) ([]byte, error) {
		v := def
		if found {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out = v
		return raw, nil
	})
	return out, err
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Mutate implements Store. The whole read-modify-write runs under the lock.
func (m *MemoryStore) Mutate(_ context.Context, key string, fn MutateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	next, err := fn(cur, ok)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}

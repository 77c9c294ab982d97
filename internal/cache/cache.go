// Package cache is a namespaced TTL cache with a global buster version for
// bulk logical invalidation.
//
// Keys that embed the buster (see VersionedKey) become unreachable after
// BumpBuster without enumerating or deleting anything. Old entries expire
// on their own TTL.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"retrycache/internal/metrics"
	"retrycache/internal/settings"
	"retrycache/internal/shared"
)

// DefaultNamespace prefixes every physical key.
const DefaultNamespace = "rc"

// Backend stores raw values with a TTL.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache maps logical keys to backend entries and owns the buster.
type Cache struct {
	backend   Backend
	store     settings.Store
	namespace string
	log       *slog.Logger
}

// Option configures Cache.
type Option func(*Cache)

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(c *Cache) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithLogger sets the logger for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Cache. The buster lives in store under settings.KeyCacheBuster.
func New(backend Backend, store settings.Store, opts ...Option) *Cache {
	c := &Cache{
		backend:   backend,
		store:     store,
		namespace: DefaultNamespace,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key returns the fixed-width physical key for a logical key.
func (c *Cache) Key(key string) string {
	sum := md5.Sum([]byte(key))
	return c.namespace + "_" + hex.EncodeToString(sum[:])
}

// Get returns the value for key. Backend errors count as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok, err := c.backend.Get(ctx, c.Key(key))
	if err != nil {
		c.log.Warn("cache get failed", slog.String("key", key), slog.Any("error", shared.Dependency("cache", err)))
		ok = false
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	metrics.CacheRequestsTotal.WithLabelValues(c.namespace, result).Inc()
	return v, ok
}

// Set stores value for ttlSeconds. A ttl of zero or less means "do not
// cache" and is a no-op.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		return nil
	}
	if err := c.backend.Set(ctx, c.Key(key), value, time.Duration(ttlSeconds)*time.Second); err != nil {
		return shared.Dependency("cache", err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, c.Key(key)); err != nil {
		return shared.Dependency("cache", err)
	}
	return nil
}

// BusterVersion returns the current buster, 1 when none is stored or the
// store is unavailable.
func (c *Cache) BusterVersion(ctx context.Context) int {
	v, err := settings.Get(ctx, c.store, settings.KeyCacheBuster, 1)
	if err != nil {
		c.log.Warn("failed to read cache buster", slog.Any("error", err))
		return 1
	}
	return max(1, v)
}

// BumpBuster atomically increments the buster and returns the new version.
func (c *Cache) BumpBuster(ctx context.Context) (int, error) {
	v, err := settings.Update(ctx, c.store, settings.KeyCacheBuster, 1, func(v *int) error {
		*v = max(1, *v) + 1
		return nil
	})
	if err != nil {
		return 0, shared.Dependency("cache buster", err)
	}
	metrics.CacheBuster.Set(float64(v))
	return v, nil
}

// VersionedKey joins parts and appends the current buster.
func (c *Cache) VersionedKey(ctx context.Context, parts ...string) string {
	version := "v" + strconv.Itoa(c.BusterVersion(ctx))
	if len(parts) == 0 {
		return version
	}
	return strings.Join(parts, ":") + ":" + version
}

// GetJSON decodes the cached value for key into dst. Undecodable entries
// count as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("cache entry is not valid json", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// SetJSON encodes v and stores it for ttlSeconds.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttlSeconds)
}

// Remember returns the cached value for key or computes it with fn and
// stores it for ttlSeconds. Errors from fn are returned and nothing is
// cached. A failed write is logged, the computed value is still returned.
func Remember[T any](ctx context.Context, c *Cache, key string, ttlSeconds int, fn func(ctx context.Context) (T, error)) (T, error) {
	var v T
	if ttlSeconds > 0 && c.GetJSON(ctx, key, &v) {
		return v, nil
	}
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	if err := c.SetJSON(ctx, key, v, ttlSeconds); err != nil {
		c.log.Warn("cache set failed", slog.String("key", key), slog.Any("error", err))
	}
	return v, nil
}

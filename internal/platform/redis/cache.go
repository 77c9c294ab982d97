package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"retrycache/internal/cache"
)

// CacheBackend implements cache.Backend with SET ... EX.
// Expiry is handled by Redis.
type CacheBackend struct {
	c *Client
}

var _ cache.Backend = (*CacheBackend)(nil)

// NewCacheBackend creates a CacheBackend.
func NewCacheBackend(c *Client) *CacheBackend {
	return &CacheBackend{c: c}
}

// Get implements cache.Backend.
func (b *CacheBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.c.rdb.Get(ctx, b.c.cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set implements cache.Backend.
func (b *CacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.c.rdb.Set(ctx, b.c.cacheKey(key), value, ttl).Err()
}

// Delete implements cache.Backend.
func (b *CacheBackend) Delete(ctx context.Context, key string) error {
	return b.c.rdb.Del(ctx, b.c.cacheKey(key)).Err()
}

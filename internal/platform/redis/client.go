// Package redis provides Redis-backed implementations of the settings store
// and the cache backend.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"retrycache/internal/shared"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "retrycache"

// Config holds Redis connection configuration.
type Config struct {
	URL      string
	Password string
	Prefix   string
}

// Client wraps a go-redis client with key helpers.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient creates a Redis client and checks the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("failed to parse redis URL: %w", err), shared.KindValidation)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, shared.Dependency("redis", fmt.Errorf("failed to connect: %w", err))
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *Client) settingsKey(key string) string {
	return c.key("settings", key)
}

func (c *Client) cacheKey(key string) string {
	return c.key("cache", key)
}

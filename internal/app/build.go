package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"retrycache/internal/adapter/admin"
	"retrycache/internal/cache"
	"retrycache/internal/config"
	"retrycache/internal/learning"
	"retrycache/internal/metrics"
	"retrycache/internal/platform/pg"
	"retrycache/internal/platform/redis"
	"retrycache/internal/platform/sqlite"
	"retrycache/internal/profile"
	"retrycache/internal/settings"
	"retrycache/internal/snapshot"
	"retrycache/internal/stats"
	"retrycache/pkg/retry"
)

// Components is the wired object graph shared by the admin server and the
// scheduler.
type Components struct {
	Store     settings.Store
	Resolver  *profile.Resolver
	Learning  *learning.Store
	Stats     *stats.Counter
	Executor  *retry.Executor
	Cache     *cache.Cache
	Snapshots *snapshot.Service
	// Memory is set when the in-process cache backend is used
	Memory *cache.MemoryBackend
	Checks map[string]admin.Check

	closers []func() error
}

// Close releases every opened connection in reverse order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Build opens the configured backends and wires the domain services.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Components, error) {
	c := &Components{Checks: map[string]admin.Check{}}

	var rc *redis.Client
	if cfg.NeedsRedis() {
		client, err := redis.NewClient(ctx, redis.Config{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		rc = client
		c.closers = append(c.closers, client.Close)
		c.Checks["redis"] = client.Ping
	}

	store, err := c.openStore(ctx, cfg, rc, log)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Store = store

	if cfg.SettingsFile != "" {
		if err := seedSettings(ctx, store, cfg.SettingsFile, log); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	var backend cache.Backend
	switch cfg.Cache.Driver {
	case config.DriverRedis:
		backend = redis.NewCacheBackend(rc)
	default:
		c.Memory = cache.NewMemoryBackend(nil)
		backend = c.Memory
	}

	c.Resolver = profile.NewResolver(store, log)
	c.Learning = learning.New(store,
		learning.WithEnabled(c.Resolver.LearningEnabled),
		learning.WithLogger(log),
	)
	c.Stats = stats.New(store, log)
	c.Executor = retry.New(c.Resolver,
		retry.WithLearner(c.Learning),
		retry.WithLogger(log),
		retry.WithHooks(metrics.RetryHooks(c.Stats.Hooks(retry.Hooks{}), profile.BuiltinSlugs()...)),
	)
	c.Cache = cache.New(backend, store,
		cache.WithNamespace(cfg.Cache.Namespace),
		cache.WithLogger(log),
	)
	c.Snapshots = snapshot.New(snapshot.Deps{
		Config:   c.Resolver,
		Stats:    c.Stats,
		Learning: c.Learning,
		Cache:    c.Cache,
		Executor: c.Executor,
		Store:    store,
		Logger:   log,
	})
	return c, nil
}

func (c *Components) openStore(ctx context.Context, cfg config.Config, rc *redis.Client, log *slog.Logger) (settings.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		kv, err := sqlite.OpenKVStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, kv.Close)
		c.Checks["sqlite"] = kv.DB().PingContext
		log.Info("settings store opened", slog.String("driver", "sqlite"), slog.String("path", cfg.Store.SQLitePath))
		return kv, nil

	case config.DriverPostgres:
		dsn, err := pg.WithApplicationName(cfg.Store.PGDSN, "retryd")
		if err != nil {
			return nil, err
		}
		wait := pg.DefaultWaitOptions()
		wait.Logger = log
		if err := pg.WaitForDB(ctx, dsn, wait); err != nil {
			return nil, err
		}
		if _, err := pg.ApplyMigrations(dsn); err != nil {
			return nil, err
		}
		pool, err := pg.NewPool(ctx, dsn, pg.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
		c.Checks["postgres"] = func(ctx context.Context) error { return pg.HealthCheckPool(ctx, pool) }
		log.Info("settings store opened", slog.String("driver", "postgres"), slog.String("target", pg.RedactDSN(dsn)))
		return pg.NewKVStore(pool), nil

	case config.DriverRedis:
		log.Info("settings store opened", slog.String("driver", "redis"))
		return redis.NewKVStore(rc), nil

	default:
		log.Warn("using in-memory settings store, state is lost on restart")
		return settings.NewMemoryStore(), nil
	}
}

func seedSettings(ctx context.Context, store settings.Store, path string, log *slog.Logger) error {
	seed, err := settings.ReadSeedFile(path)
	if err != nil {
		return err
	}
	written, err := settings.Seed(ctx, store, seed)
	if err != nil {
		return err
	}
	if written {
		log.Info("settings seeded", slog.String("file", path))
	}
	return nil
}

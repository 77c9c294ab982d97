package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrycache/internal/config"
	"retrycache/internal/shared"
	"retrycache/internal/snapshot"
	"retrycache/internal/stats"
	"retrycache/pkg/retry"
)

func testConfig() config.Config {
	var c config.Config
	c.Env = "dev"
	c.Store.Driver = config.DriverMemory
	c.Cache.Driver = config.DriverMemory
	c.Cache.Namespace = "rc"
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_Memory(t *testing.T) {
	ctx := context.Background()
	c, err := Build(ctx, testConfig(), discardLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, c.Close()) }()

	require.NotNil(t, c.Memory)
	assert.Empty(t, c.Checks)

	zero := 0
	calls := 0
	err = c.Executor.Do(ctx, "Auto API", func(context.Context, int) error {
		calls++
		return errors.New("upstream down")
	}, retry.WithOverride(retry.Override{MaxAttempts: &zero}))
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	counters, err := c.Stats.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counters[stats.RetryFail])

	records, err := c.Learning.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, records["auto_api"].Fail)

	snap, err := c.Snapshots.Snapshot(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Cache.Buster)
	assert.Equal(t, 1, snap.Stats[stats.RetryFail])
}

func TestBuild_SQLiteAndRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	seed := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("dashboard_cache_ttl: 30\nauto_bot_adaptive_mode: fast\n"), 0o600))

	cfg := testConfig()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.SQLitePath = filepath.Join(dir, "db", "retryd.db")
	cfg.Cache.Driver = config.DriverRedis
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.Prefix = "t"
	cfg.SettingsFile = seed

	c, err := Build(ctx, cfg, discardLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, c.Close()) }()

	assert.Nil(t, c.Memory)
	require.Contains(t, c.Checks, "sqlite")
	require.Contains(t, c.Checks, "redis")
	for name, check := range c.Checks {
		assert.NoError(t, check(ctx), name)
	}

	s := c.Resolver.Settings(ctx)
	assert.Equal(t, 30, s.DashboardCacheTTL, "seed file applied")

	_, err = c.Snapshots.Snapshot(ctx, false)
	require.NoError(t, err)
	keys := mr.Keys()
	assert.Contains(t, keys, "t:cache:"+c.Cache.Key(snapshot.CacheKey))

	v, err := c.Snapshots.Prime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, c.Cache.BusterVersion(ctx))
}

func TestBuild_RedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = config.DriverRedis
	cfg.Redis.URL = "redis://127.0.0.1:1"

	_, err := Build(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Equal(t, shared.KindDependencyFailure, shared.KindOf(err))
}

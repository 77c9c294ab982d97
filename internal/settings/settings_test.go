package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrycache/internal/shared"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 500, cfg.RetryInitialDelayMs)
	assert.Equal(t, 1.7, cfg.RetryBackoffFactor)
	assert.Equal(t, 0, cfg.RetryJitterMs)
	assert.True(t, cfg.LearningEnabled)
	assert.Equal(t, AutoBotOff, cfg.AutoBotMode)
	assert.Equal(t, 60, cfg.CacheTTL)
	assert.Equal(t, 45, cfg.DashboardCacheTTL)
}

func TestLoad_PartialRecordKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, KeyConfig, []byte(`{"retry_max_attempts":7,"retry_queue_ai_enabled":false}`)))

	cfg, err := Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RetryMaxAttempts)
	assert.False(t, cfg.LearningEnabled)
	assert.Equal(t, 500, cfg.RetryInitialDelayMs)
	assert.Equal(t, 45, cfg.DashboardCacheTTL)
}

func TestLoad_CorruptRecordFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, KeyConfig, []byte(`{not json`)))

	cfg, err := Load(ctx, s)
	assert.Error(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestMode(t *testing.T) {
	assert.Equal(t, AutoBotSafe, Settings{AutoBotMode: AutoBotSafe}.Mode())
	assert.Equal(t, AutoBotOff, Settings{AutoBotMode: "turbo"}.Mode())
	assert.Equal(t, AutoBotOff, Settings{}.Mode())
}

func TestUpdate_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Update(ctx, s, "counter", 0, func(v *int) error {
				*v++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := Get(ctx, s, "counter", 0)
	require.NoError(t, err)
	assert.Equal(t, 50, got)
}

func TestUpdate_ErrorAbortsWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, Put(ctx, s, "k", 1))

	boom := errors.New("boom")
	_, err := Update(ctx, s, "k", 0, func(v *int) error {
		*v = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := Get(ctx, s, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, found, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := `
retry_max_attempts: 3
auto_bot_adaptive_mode: safe
retry_profiles:
  Auto API:
    max_attempts: 4
  dashboard:
    jitter_ms: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := ReadSeedFile(path)
	require.NoError(t, err)
	assert.Equal(t, AutoBotSafe, cfg.AutoBotMode)
	assert.Equal(t, 500, cfg.RetryInitialDelayMs, "absent fields keep defaults")
	require.Contains(t, cfg.RetryProfiles, "Auto API")
	require.NotNil(t, cfg.RetryProfiles["Auto API"].MaxAttempts)
	assert.Equal(t, 4, *cfg.RetryProfiles["Auto API"].MaxAttempts)
	assert.Nil(t, cfg.RetryProfiles["Auto API"].DelayMs)
	require.NotNil(t, cfg.RetryProfiles["dashboard"].JitterMs)
	assert.Equal(t, 0, *cfg.RetryProfiles["dashboard"].JitterMs)
}

func TestReadSeedFile_InvalidMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auto_bot_adaptive_mode: turbo\n"), 0o600))

	_, err := ReadSeedFile(path)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestSeed_OnlyWhenMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := Defaults()
	first.CacheTTL = 10
	written, err := Seed(ctx, s, first)
	require.NoError(t, err)
	assert.True(t, written)

	second := Defaults()
	second.CacheTTL = 99
	written, err = Seed(ctx, s, second)
	require.NoError(t, err)
	assert.False(t, written)

	cfg, err := Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.CacheTTL)
}

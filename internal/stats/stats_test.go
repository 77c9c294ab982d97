package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrycache/internal/settings"
	"retrycache/pkg/retry"
)

func newCounter() (*Counter, settings.Store) {
	s := settings.NewMemoryStore()
	return New(s, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestLoad_MergesOverZero(t *testing.T) {
	ctx := context.Background()
	c, s := newCounter()
	require.NoError(t, s.Save(ctx, settings.KeyStats, []byte(`{"posted":4,"custom":1}`)))

	got, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got[Posted])
	assert.Equal(t, 0, got[RetryFail])
	assert.Equal(t, 1, got["custom"])
	assert.Len(t, got, len(Keys)+1)
}

func TestIncr_Concurrent(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Incr(ctx, WebhookOK)
		}()
	}
	wg.Wait()

	got, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, got[WebhookOK])
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter()

	c.Observe(ctx, &retry.Report{Attempts: 1}, nil)
	c.Observe(ctx, &retry.Report{Attempts: 3}, nil)
	c.Observe(ctx, &retry.Report{Attempts: 4}, errors.New("exhausted"))

	got, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got[RetryOK])
	assert.Equal(t, 1, got[RetryFail])
}

func TestHooks_ChainsNext(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter()

	called := false
	h := c.Hooks(retry.Hooks{OnFinish: func(context.Context, *retry.Report, error) { called = true }})
	h.OnFinish(ctx, &retry.Report{Attempts: 2}, nil)

	assert.True(t, called)
	got, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got[RetryOK])
}

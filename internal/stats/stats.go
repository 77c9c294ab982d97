// Package stats keeps the operational counters shown on the snapshot.
package stats

import (
	"context"
	"log/slog"

	"retrycache/internal/settings"
	"retrycache/internal/shared"
	"retrycache/pkg/retry"
)

// Counter keys.
const (
	Posted      = "posted"
	Failed      = "failed"
	WebhookOK   = "webhook_ok"
	WebhookFail = "webhook_fail"
	RetryOK     = "retry_ok"
	RetryFail   = "retry_fail"
)

// Keys lists every known counter.
var Keys = []string{Posted, Failed, WebhookOK, WebhookFail, RetryOK, RetryFail}

// Zero returns every known counter set to 0.
func Zero() map[string]int {
	out := make(map[string]int, len(Keys))
	for _, k := range Keys {
		out[k] = 0
	}
	return out
}

// Counter increments counters stored under settings.KeyStats.
type Counter struct {
	store settings.Store
	log   *slog.Logger
}

// New creates a Counter.
func New(store settings.Store, log *slog.Logger) *Counter {
	if log == nil {
		log = slog.Default()
	}
	return &Counter{store: store, log: log}
}

// Incr atomically adds 1 to key. Failures are logged and swallowed.
func (c *Counter) Incr(ctx context.Context, key string) {
	c.Add(ctx, key, 1)
}

// Add atomically adds delta to key. Failures are logged and swallowed.
func (c *Counter) Add(ctx context.Context, key string, delta int) {
	_, err := settings.Update(ctx, c.store, settings.KeyStats, map[string]int(nil), func(m *map[string]int) error {
		if *m == nil {
			*m = map[string]int{}
		}
		(*m)[key] += delta
		return nil
	})
	if err != nil {
		c.log.Warn("failed to update stats counter",
			slog.String("key", key),
			slog.Any("error", shared.Dependency("stats", err)),
		)
	}
}

// Load returns the stored counters merged over Zero.
func (c *Counter) Load(ctx context.Context) (map[string]int, error) {
	stored, err := settings.Get(ctx, c.store, settings.KeyStats, map[string]int(nil))
	if err != nil {
		return Zero(), shared.Dependency("stats", err)
	}
	out := Zero()
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// Observe records the result of one executor run: retry_ok when a success
// needed more than one attempt, retry_fail when attempts were exhausted.
// First-try successes are not counted here.
func (c *Counter) Observe(ctx context.Context, r *retry.Report, err error) {
	switch {
	case err != nil:
		c.Incr(ctx, RetryFail)
	case r != nil && r.Attempts > 1:
		c.Incr(ctx, RetryOK)
	}
}

// Hooks returns executor hooks that feed Observe. next is chained after it.
func (c *Counter) Hooks(next retry.Hooks) retry.Hooks {
	return retry.Hooks{
		OnRetry: next.OnRetry,
		OnFinish: func(ctx context.Context, r *retry.Report, err error) {
			c.Observe(ctx, r, err)
			if next.OnFinish != nil {
				next.OnFinish(ctx, r, err)
			}
		},
	}
}

// Package learning keeps per-context success and failure counters and turns
// them into an adaptive backoff multiplier.
package learning

import (
	"context"
	"log/slog"
	"math"

	"retrycache/internal/settings"
	"retrycache/internal/shared"
	"retrycache/pkg/retry"
)

const (
	// MinMultiplier and MaxMultiplier bound MultiplierFor.
	MinMultiplier = 0.5
	MaxMultiplier = 2.5

	damping = 0.3
)

// Record is the persisted state for one slug.
type Record struct {
	Success     int     `json:"success"`
	Fail        int     `json:"fail"`
	AvgAttempts float64 `json:"avg_attempts"`
}

// Multiplier computes the Laplace-smoothed delay multiplier for r.
func (r Record) Multiplier() float64 {
	if r.Success == 0 && r.Fail == 0 {
		return 1
	}
	ratio := float64(r.Fail+1) / float64(r.Success+1)
	m := 1 + (ratio-1)*damping
	return math.Max(MinMultiplier, math.Min(MaxMultiplier, m))
}

// observe applies one outcome and updates the running mean of attempts.
func (r *Record) observe(attemptNumber int, success bool) {
	if success {
		r.Success++
	} else {
		r.Fail++
	}
	events := max(1, r.Success+r.Fail)
	mean := (r.AvgAttempts*float64(events-1) + float64(max(1, attemptNumber))) / float64(events)
	r.AvgAttempts = math.Round(mean*100) / 100
}

// Store persists learning records under settings.KeyLearning.
type Store struct {
	store   settings.Store
	log     *slog.Logger
	enabled func(ctx context.Context) bool
}

var _ retry.Learner = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithEnabled gates learning on a runtime flag. When fn reports false the
// multiplier is 1 and outcomes are not recorded.
func WithEnabled(fn func(ctx context.Context) bool) Option {
	return func(s *Store) { s.enabled = fn }
}

// WithLogger sets the logger for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Store on top of store.
func New(store settings.Store, opts ...Option) *Store {
	s := &Store{
		store:   store,
		log:     slog.Default(),
		enabled: func(context.Context) bool { return true },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RecordOutcome implements retry.Learner. Failures are logged and swallowed.
func (s *Store) RecordOutcome(ctx context.Context, slug string, attemptNumber int, success bool) {
	if !s.enabled(ctx) {
		return
	}
	_, err := settings.Update(ctx, s.store, settings.KeyLearning, map[string]Record(nil), func(m *map[string]Record) error {
		if *m == nil {
			*m = map[string]Record{}
		}
		rec := (*m)[slug]
		rec.observe(attemptNumber, success)
		(*m)[slug] = rec
		return nil
	})
	if err != nil {
		s.log.Warn("failed to record retry outcome",
			slog.String("slug", slug),
			slog.Int("attempt", attemptNumber),
			slog.Bool("success", success),
			slog.Any("error", shared.Dependency("learning", err)),
		)
	}
}

// MultiplierFor implements retry.Learner.
func (s *Store) MultiplierFor(ctx context.Context, slug string) float64 {
	if !s.enabled(ctx) {
		return 1
	}
	recs, err := s.Records(ctx)
	if err != nil {
		s.log.Warn("failed to read learning records", slog.String("slug", slug), slog.Any("error", err))
		return 1
	}
	rec, ok := recs[slug]
	if !ok {
		return 1
	}
	return rec.Multiplier()
}

// Records returns all learning records keyed by slug.
func (s *Store) Records(ctx context.Context) (map[string]Record, error) {
	recs, err := settings.Get(ctx, s.store, settings.KeyLearning, map[string]Record(nil))
	if err != nil {
		return map[string]Record{}, shared.Dependency("learning", err)
	}
	if recs == nil {
		recs = map[string]Record{}
	}
	return recs, nil
}

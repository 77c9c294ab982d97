// Package profile resolves per-context retry policies from built-in profiles,
// global settings and persisted per-context overrides.
package profile

import (
	"context"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"retrycache/internal/settings"
	"retrycache/pkg/retry"
)

// DefaultSlug is the bucket used for unknown contexts.
const DefaultSlug = "default"

// Profile is a fully populated per-context policy as shown to operators.
type Profile struct {
	MaxAttempts   int     `json:"max_attempts"`
	DelayMs       int     `json:"delay_ms"`
	BackoffFactor float64 `json:"backoff_factor"`
	JitterMs      int     `json:"jitter_ms"`
}

// Policy converts p into a normalized executor policy.
func (p Profile) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   p.MaxAttempts,
		InitialDelay:  time.Duration(p.DelayMs) * time.Millisecond,
		BackoffFactor: p.BackoffFactor,
		Jitter:        time.Duration(p.JitterMs) * time.Millisecond,
	}.Normalize()
}

func (p Profile) merge(o settings.ProfileOverride) Profile {
	if o.MaxAttempts != nil {
		p.MaxAttempts = *o.MaxAttempts
	}
	if o.DelayMs != nil {
		p.DelayMs = *o.DelayMs
	}
	if o.BackoffFactor != nil {
		p.BackoffFactor = *o.BackoffFactor
	}
	if o.JitterMs != nil {
		p.JitterMs = *o.JitterMs
	}
	return p
}

// Builtins returns the shipped profiles. Global settings feed the default
// bucket only.
func Builtins(cfg settings.Settings) map[string]Profile {
	return map[string]Profile{
		DefaultSlug: {
			MaxAttempts:   cfg.RetryMaxAttempts,
			DelayMs:       cfg.RetryInitialDelayMs,
			BackoffFactor: cfg.RetryBackoffFactor,
			JitterMs:      cfg.RetryJitterMs,
		},
		"auto_api":          {MaxAttempts: 4, DelayMs: 600, BackoffFactor: 1.8, JitterMs: 120},
		"auto_report":       {MaxAttempts: 3, DelayMs: 800, BackoffFactor: 1.5, JitterMs: 60},
		"dashboard":         {MaxAttempts: 2, DelayMs: 250, BackoffFactor: 1.2, JitterMs: 25},
		"auto_bot":          {MaxAttempts: 5, DelayMs: 420, BackoffFactor: 1.6, JitterMs: 80},
		"crm_charm_contact": {MaxAttempts: 3, DelayMs: 700, BackoffFactor: 1.8, JitterMs: 75},
	}
}

// BuiltinSlugs lists the slugs of the shipped profiles in sorted order.
func BuiltinSlugs() []string {
	return slices.Sorted(maps.Keys(Builtins(settings.Settings{})))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a context name: lowercase, runs of other characters
// collapsed to "_", trimmed. Empty names map to "default".
func Slug(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return DefaultSlug
	}
	return s
}

// Build merges persisted overrides over the built-in profiles. Override
// keys are slugged; unknown slugs start from the default bucket.
func Build(cfg settings.Settings) map[string]Profile {
	out := Builtins(cfg)
	for key, o := range cfg.RetryProfiles {
		slug := Slug(key)
		base, ok := out[slug]
		if !ok {
			base = out[DefaultSlug]
		}
		out[slug] = base.merge(o)
	}
	return out
}

type snapshot struct {
	cfg      settings.Settings
	profiles map[string]Profile
}

// Resolver maps context names to policies. The settings record is read once
// and the merged profile table is reused until Reset.
type Resolver struct {
	store settings.Store
	log   *slog.Logger

	mu    sync.Mutex
	cache *snapshot
}

var _ retry.Resolver = (*Resolver)(nil)

// NewResolver creates a Resolver backed by store.
func NewResolver(store settings.Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, log: log}
}

func (r *Resolver) load(ctx context.Context) *snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		return r.cache
	}

	cfg, err := settings.Load(ctx, r.store)
	if err != nil {
		// defaults are used for this call, next call reads again
		r.log.Warn("failed to load settings, using defaults", slog.Any("error", err))
		return &snapshot{cfg: cfg, profiles: Build(cfg)}
	}
	r.cache = &snapshot{cfg: cfg, profiles: Build(cfg)}
	return r.cache
}

// Resolve implements retry.Resolver.
func (r *Resolver) Resolve(ctx context.Context, name string) retry.Resolution {
	s := r.load(ctx)
	slug := Slug(name)
	p, ok := s.profiles[slug]
	if !ok {
		p = s.profiles[DefaultSlug]
	}
	return retry.Resolution{
		Slug:   slug,
		Policy: p.Policy(),
		Mode:   retry.Mode(s.cfg.Mode()),
	}
}

// Policy is a shortcut for Resolve(ctx, name).Policy.
func (r *Resolver) Policy(ctx context.Context, name string) retry.Policy {
	return r.Resolve(ctx, name).Policy
}

// Profiles returns a copy of the merged profile table.
func (r *Resolver) Profiles(ctx context.Context) map[string]Profile {
	return maps.Clone(r.load(ctx).profiles)
}

// Settings returns the settings record the table was built from.
func (r *Resolver) Settings(ctx context.Context) settings.Settings {
	return r.load(ctx).cfg
}

// LearningEnabled reports the retry_queue_ai_enabled flag.
func (r *Resolver) LearningEnabled(ctx context.Context) bool {
	return r.load(ctx).cfg.LearningEnabled
}

// Reset drops the cached settings so the next call reads the store again.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()
}

// Package snapshot builds the cached aggregate view of counters, cache
// metadata, retry profiles and learning records.
package snapshot

import (
	"context"
	"log/slog"
	"time"

	"retrycache/internal/cache"
	"retrycache/internal/learning"
	"retrycache/internal/metrics"
	"retrycache/internal/profile"
	"retrycache/internal/settings"
	"retrycache/internal/shared"
	"retrycache/pkg/retry"
)

const (
	// CacheKey is the logical cache key of the snapshot. It does not embed
	// the buster.
	CacheKey = "dashboard_snapshot"

	// Version is reported in every snapshot.
	Version = "2.0"

	// MinTTL is the shortest lifetime of a stored snapshot, in seconds.
	MinTTL = 5

	// NoHeartbeat is reported until the first heartbeat is written.
	NoHeartbeat = "N/A"

	statsContext = "dashboard"
)

// CacheInfo describes the cache configuration at build time.
type CacheInfo struct {
	SheetTTL     int `json:"sheet_ttl"`
	DashboardTTL int `json:"dashboard_ttl"`
	Buster       int `json:"buster"`
}

// Snapshot is the point-in-time aggregate.
type Snapshot struct {
	GeneratedAt         time.Time                  `json:"generated_at"`
	LastHeartbeat       string                     `json:"last_heartbeat"`
	Stats               map[string]int             `json:"stats"`
	Cache               CacheInfo                  `json:"cache"`
	AutoBotMode         settings.AutoBotMode       `json:"auto_bot_mode"`
	RetryProfiles       map[string]profile.Profile `json:"retry_profiles"`
	RetryAI             map[string]learning.Record `json:"retry_ai"`
	RetryQueueAIEnabled bool                       `json:"retry_queue_ai_enabled"`
	Version             string                     `json:"version"`
}

// ConfigSource supplies settings and the merged profile table.
type ConfigSource interface {
	Settings(ctx context.Context) settings.Settings
	Profiles(ctx context.Context) map[string]profile.Profile
}

// StatsReader loads counters merged over zeroed defaults.
type StatsReader interface {
	Load(ctx context.Context) (map[string]int, error)
}

// LearningReader lists learning records.
type LearningReader interface {
	Records(ctx context.Context) (map[string]learning.Record, error)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Config   ConfigSource
	Stats    StatsReader
	Learning LearningReader
	Cache    *cache.Cache
	Executor *retry.Executor
	Store    settings.Store
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service builds and caches snapshots.
type Service struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

// New creates a Service.
func New(d Deps) *Service {
	s := &Service{deps: d, log: d.Logger, now: d.Now}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.deps.Executor == nil {
		s.deps.Executor = retry.New(nil, retry.WithLogger(s.log))
	}
	return s
}

// Snapshot returns the cached snapshot unless force is set, caching is
// disabled or nothing is cached. A cached snapshot is returned as is, even
// when the underlying counters changed since it was built.
func (s *Service) Snapshot(ctx context.Context, force bool) (Snapshot, error) {
	cfg := s.deps.Config.Settings(ctx)
	ttl := cfg.DashboardCacheTTL

	reason := "force"
	if !force {
		reason = "disabled"
		if ttl > 0 {
			var cached Snapshot
			if s.deps.Cache.GetJSON(ctx, CacheKey, &cached) {
				return cached, nil
			}
			reason = "miss"
		}
	}

	snap, err := s.build(ctx, cfg)
	if err != nil {
		return Snapshot{}, err
	}
	metrics.SnapshotRebuildsTotal.WithLabelValues(reason).Inc()

	if ttl > 0 {
		if err := s.deps.Cache.SetJSON(ctx, CacheKey, snap, max(MinTTL, ttl)); err != nil {
			s.log.Warn("failed to store snapshot", slog.Any("error", err))
		}
	}
	return snap, nil
}

func (s *Service) build(ctx context.Context, cfg settings.Settings) (Snapshot, error) {
	start := time.Now()
	defer func() { metrics.SnapshotBuildSeconds.Observe(time.Since(start).Seconds()) }()

	counters, err := retry.Run(ctx, s.deps.Executor, statsContext, func(ctx context.Context, _ int) (map[string]int, error) {
		return s.deps.Stats.Load(ctx)
	})
	if err != nil {
		return Snapshot{}, shared.Wrap(err, "snapshot stats")
	}

	records, err := s.deps.Learning.Records(ctx)
	if err != nil {
		s.log.Warn("failed to read learning records", slog.Any("error", err))
		records = map[string]learning.Record{}
	}

	return Snapshot{
		GeneratedAt:   s.now().UTC(),
		LastHeartbeat: s.lastHeartbeat(ctx),
		Stats:         counters,
		Cache: CacheInfo{
			SheetTTL:     cfg.CacheTTL,
			DashboardTTL: cfg.DashboardCacheTTL,
			Buster:       s.deps.Cache.BusterVersion(ctx),
		},
		AutoBotMode:         cfg.Mode(),
		RetryProfiles:       s.deps.Config.Profiles(ctx),
		RetryAI:             records,
		RetryQueueAIEnabled: cfg.LearningEnabled,
		Version:             Version,
	}, nil
}

func (s *Service) lastHeartbeat(ctx context.Context) string {
	v, err := settings.Get(ctx, s.deps.Store, settings.KeyLastHeartbeat, NoHeartbeat)
	if err != nil {
		s.log.Warn("failed to read heartbeat", slog.Any("error", err))
		return NoHeartbeat
	}
	return v
}

// Flush drops the cached snapshot so the next call rebuilds it. The buster
// is not touched.
func (s *Service) Flush(ctx context.Context) error {
	return s.deps.Cache.Delete(ctx, CacheKey)
}

// Heartbeat records the current time as the last heartbeat.
func (s *Service) Heartbeat(ctx context.Context) error {
	ts := s.now().UTC().Format(time.RFC3339)
	if err := settings.Put(ctx, s.deps.Store, settings.KeyLastHeartbeat, ts); err != nil {
		return shared.Dependency("heartbeat", err)
	}
	return nil
}

// Prime flushes the snapshot and bumps the cache buster, invalidating every
// versioned entry. It returns the new buster version.
func (s *Service) Prime(ctx context.Context) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	return s.deps.Cache.BumpBuster(ctx)
}

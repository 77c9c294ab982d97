package scheduler

import (
	"context"
	"log/slog"
	"time"

	"retrycache/internal/metrics"
	"retrycache/internal/snapshot"
)

// Имена фоновых задач.
const (
	JobSnapshotRefresh = "snapshot_refresh"
	JobHeartbeat       = "heartbeat"
	JobCachePurge      = "cache_purge"
	JobSettingsReload  = "settings_reload"
)

// SnapshotService - то, что нужно задачам от snapshot.Service.
type SnapshotService interface {
	Snapshot(ctx context.Context, force bool) (snapshot.Snapshot, error)
	Heartbeat(ctx context.Context) error
}

// Purger чистит просроченные записи in-memory кеша.
type Purger interface {
	Purge() int
}

// Reloader сбрасывает закешированные настройки профилей.
type Reloader interface {
	Reset()
}

// Schedules задает расписания задач. Пустая строка отключает задачу.
type Schedules struct {
	Snapshot  string
	Heartbeat string
	Purge     string
	Reload    string
}

// Jobs описывает зависимости фоновых задач. Nil-зависимость отключает задачу.
type Jobs struct {
	Snapshots SnapshotService
	Purger    Purger
	Reloader  Reloader
	Logger    *slog.Logger
}

// Register регистрирует все доступные задачи в планировщике.
func Register(s *Scheduler, sch Schedules, j Jobs) error {
	log := j.Logger
	if log == nil {
		log = slog.Default()
	}

	type entry struct {
		schedule string
		enabled  bool
		fn       JobFunc
		opts     JobOptions
	}
	entries := []entry{
		{
			schedule: sch.Snapshot,
			enabled:  j.Snapshots != nil,
			fn: func(ctx context.Context) error {
				snap, err := j.Snapshots.Snapshot(ctx, true)
				if err != nil {
					return err
				}
				log.Debug("snapshot refreshed", slog.Time("generated_at", snap.GeneratedAt))
				return nil
			},
			opts: JobOptions{Name: JobSnapshotRefresh, Timeout: time.Minute, OverlapPolicy: SkipIfRunning},
		},
		{
			schedule: sch.Heartbeat,
			enabled:  j.Snapshots != nil,
			fn: func(ctx context.Context) error {
				return j.Snapshots.Heartbeat(ctx)
			},
			opts: JobOptions{Name: JobHeartbeat, Timeout: 10 * time.Second, OverlapPolicy: SkipIfRunning},
		},
		{
			schedule: sch.Purge,
			enabled:  j.Purger != nil,
			fn: func(context.Context) error {
				if n := j.Purger.Purge(); n > 0 {
					log.Debug("expired cache entries purged", slog.Int("count", n))
				}
				return nil
			},
			opts: JobOptions{Name: JobCachePurge, OverlapPolicy: SkipIfRunning},
		},
		{
			schedule: sch.Reload,
			enabled:  j.Reloader != nil,
			fn: func(context.Context) error {
				j.Reloader.Reset()
				return nil
			},
			opts: JobOptions{Name: JobSettingsReload, OverlapPolicy: SkipIfRunning},
		},
	}

	for _, e := range entries {
		if !e.enabled || e.schedule == "" {
			continue
		}
		if err := s.Add(e.schedule, e.fn, e.opts); err != nil {
			return err
		}
	}
	return nil
}

// MetricsHooks возвращает хуки, которые пишут прогоны задач в Prometheus.
func MetricsHooks() JobHooks {
	return JobHooks{
		OnJobFinish: func(name string, d time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			metrics.JobRunsTotal.WithLabelValues(name, result).Inc()
			metrics.JobDurationSeconds.WithLabelValues(name).Observe(d.Seconds())
		},
	}
}

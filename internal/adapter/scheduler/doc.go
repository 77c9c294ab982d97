// Package scheduler runs the service's background jobs on cron schedules
// (github.com/robfig/cron/v3).
//
// Jobs registered by Register:
//   - snapshot_refresh: rebuilds the dashboard snapshot and re-caches it
//   - heartbeat: stores the current time as the last heartbeat
//   - cache_purge: sweeps expired entries from the in-memory cache backend
//   - settings_reload: drops cached profiles so external edits are picked up
//
// Every job has a unique name, an optional timeout and an overlap policy.
// Panics are recovered and reported as job errors; errors are logged and
// never stop the scheduler.
//
//	s := scheduler.NewWithContext(ctx, scheduler.Config{Logger: log, JobHooks: scheduler.MetricsHooks()})
//	err := scheduler.Register(s, scheduler.Schedules{Snapshot: "@every 30s"}, scheduler.Jobs{Snapshots: snaps})
//	s.Start()
//	defer s.Stop()
package scheduler

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"retrycache/pkg/retry"
)

var (
	// RetryRunsTotal tracks finished executor runs per slug and outcome
	RetryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrycache_retry_runs_total",
			Help: "Total number of finished retry runs",
		},
		[]string{"slug", "outcome"},
	)

	// RetryAttemptsTotal tracks operation invocations per slug
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrycache_retry_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"slug"},
	)

	// RetryBackoffSeconds tracks the delays slept between attempts
	RetryBackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrycache_retry_backoff_seconds",
			Help:    "Backoff delay before a retry in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"slug"},
	)

	// CacheRequestsTotal tracks cache lookups per namespace and result
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrycache_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"namespace", "result"},
	)

	// CacheBuster tracks the current buster version
	CacheBuster = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "retrycache_cache_buster",
			Help: "Current cache buster version",
		},
	)

	// SnapshotRebuildsTotal tracks snapshot rebuilds
	SnapshotRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrycache_snapshot_rebuilds_total",
			Help: "Total number of snapshot rebuilds",
		},
		[]string{"reason"},
	)

	// SnapshotBuildSeconds tracks how long a rebuild takes
	SnapshotBuildSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrycache_snapshot_build_seconds",
			Help:    "Snapshot rebuild duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// JobRunsTotal tracks background job runs
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrycache_job_runs_total",
			Help: "Total number of background job runs",
		},
		[]string{"job", "result"},
	)

	// JobDurationSeconds tracks background job duration
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrycache_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// OtherSlug labels runs whose slug is outside the known set.
const OtherSlug = "default"

// RetryHooks returns executor hooks that feed the retry metrics. Only slugs
// listed in known get their own label value; every other slug is counted
// under OtherSlug. next, when set, is called after the metrics are updated.
func RetryHooks(next retry.Hooks, known ...string) retry.Hooks {
	labels := make(map[string]struct{}, len(known))
	for _, s := range known {
		labels[s] = struct{}{}
	}
	label := func(slug string) string {
		if _, ok := labels[slug]; ok {
			return slug
		}
		return OtherSlug
	}

	return retry.Hooks{
		OnRetry: func(r *retry.Report, attempt int, err error, delay time.Duration) {
			RetryBackoffSeconds.WithLabelValues(label(r.Slug)).Observe(delay.Seconds())
			if next.OnRetry != nil {
				next.OnRetry(r, attempt, err, delay)
			}
		},
		OnFinish: func(ctx context.Context, r *retry.Report, err error) {
			slug := label(r.Slug)
			RetryAttemptsTotal.WithLabelValues(slug).Add(float64(r.Attempts))
			outcome := "success"
			switch {
			case err != nil:
				outcome = "failure"
			case r.Attempts > 1:
				outcome = "recovered"
			}
			RetryRunsTotal.WithLabelValues(slug, outcome).Inc()
			if next.OnFinish != nil {
				next.OnFinish(ctx, r, err)
			}
		},
	}
}

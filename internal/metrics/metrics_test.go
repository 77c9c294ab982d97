package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"retrycache/pkg/retry"
)

func TestRetryHooks(t *testing.T) {
	var finished, retried int
	h := RetryHooks(retry.Hooks{
		OnRetry:  func(*retry.Report, int, error, time.Duration) { retried++ },
		OnFinish: func(context.Context, *retry.Report, error) { finished++ },
	}, "metrics_test")

	r := &retry.Report{Slug: "metrics_test", Attempts: 3}
	h.OnRetry(r, 1, errors.New("x"), 100*time.Millisecond)
	h.OnFinish(context.Background(), r, nil)
	h.OnFinish(context.Background(), &retry.Report{Slug: "metrics_test", Attempts: 1}, nil)
	h.OnFinish(context.Background(), &retry.Report{Slug: "metrics_test", Attempts: 4}, errors.New("x"))

	assert.Equal(t, 1, retried)
	assert.Equal(t, 3, finished)
	assert.Equal(t, 1.0, testutil.ToFloat64(RetryRunsTotal.WithLabelValues("metrics_test", "recovered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RetryRunsTotal.WithLabelValues("metrics_test", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RetryRunsTotal.WithLabelValues("metrics_test", "failure")))
	assert.Equal(t, 8.0, testutil.ToFloat64(RetryAttemptsTotal.WithLabelValues("metrics_test")))
}

func TestRetryHooks_NilNext(t *testing.T) {
	h := RetryHooks(retry.Hooks{})
	assert.NotPanics(t, func() {
		h.OnRetry(&retry.Report{Slug: "nil_next"}, 1, nil, time.Millisecond)
		h.OnFinish(context.Background(), &retry.Report{Slug: "nil_next", Attempts: 1}, nil)
	})
}

func TestRetryHooks_UnknownSlugsShareOneLabel(t *testing.T) {
	h := RetryHooks(retry.Hooks{}, "bounded_known")
	before := testutil.ToFloat64(RetryRunsTotal.WithLabelValues(OtherSlug, "failure"))

	for _, slug := range []string{"caller_a", "caller_b", "caller_c"} {
		h.OnFinish(context.Background(), &retry.Report{Slug: slug, Attempts: 2}, errors.New("x"))
	}
	h.OnFinish(context.Background(), &retry.Report{Slug: "bounded_known", Attempts: 1}, errors.New("x"))

	assert.Equal(t, before+3, testutil.ToFloat64(RetryRunsTotal.WithLabelValues(OtherSlug, "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RetryRunsTotal.WithLabelValues("bounded_known", "failure")))
}

// Package retry runs unreliable operations under per-context retry policies
// with exponential backoff, jitter and an adaptive delay multiplier.
//
// Key Features:
//   - Policies resolved per context name (see internal/profile)
//   - Call-site overrides through optional fields (Override)
//   - Compounding backoff: the factor is applied to the previous delay
//   - Uniform integer jitter in [-Jitter, +Jitter], floored at zero
//   - Learning multiplier derived from historical success/failure ratios
//   - Auto-bot modes (off, fast, safe, ai) for runs tagged WithAutoBot
//   - Observability hooks (OnRetry, OnFinish) and side-channel Report
//   - Full testability support (sleep and random source injection)
//
// Errors are never classified: every error returned by the operation is
// retried until the policy allows no more tries, and the final error is
// returned unchanged.
//
// Basic Usage:
//
//	exec := retry.New(resolver, retry.WithLearner(learner), retry.WithLogger(log))
//	err := exec.Do(ctx, "auto_api", func(ctx context.Context, attempt int) error {
//	    return pushRow(ctx)
//	})
//
// Returning a value and reading the attempt count:
//
//	var rep retry.Report
//	id, err := retry.Run(ctx, exec, "auto_api", insert, retry.WithReport(&rep))
//	if err == nil && rep.Attempts > 1 {
//	    log.Info("recovered after retries", "attempts", rep.Attempts)
//	}
//
// Call-site overrides:
//
//	attempts := 3
//	delay := 800 * time.Millisecond
//	err := exec.Do(ctx, "social-webhook", send, retry.WithOverride(retry.Override{
//	    MaxAttempts:  &attempts,
//	    InitialDelay: &delay,
//	}))
package retry

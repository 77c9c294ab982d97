package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxDelayMs is the longest backoff that still fits in a time.Duration.
const maxDelayMs = math.MaxInt64 / int64(time.Millisecond)

// Operation is a unit of work that can be retried. attempt starts at 0 for
// the first try.
type Operation func(ctx context.Context, attempt int) error

// Report is side-channel metadata about one run, filled in by the executor
// when requested with WithReport.
type Report struct {
	// RunID identifies the run in log lines
	RunID string
	// Context is the context name passed by the caller
	Context string
	// Slug is the normalized context identifier
	Slug string
	// Policy is the effective policy after call-site overrides
	Policy Policy
	// Attempts is the number of times the operation was invoked
	Attempts int
	// Delays are the backoff sleeps taken between attempts
	Delays []time.Duration
}

// Hooks contains optional callbacks for observability.
type Hooks struct {
	// OnRetry is called before each backoff sleep
	OnRetry func(r *Report, attempt int, err error, delay time.Duration)
	// OnFinish is called once per run with the terminal error (nil on success)
	OnFinish func(ctx context.Context, r *Report, err error)
}

// Executor runs operations under resolved retry policies.
type Executor struct {
	resolver Resolver
	learner  Learner
	log      *slog.Logger
	hooks    Hooks
	sleep    func(ctx context.Context, d time.Duration) error

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures Executor.
type Option func(*Executor)

// WithLogger sets logger used for per-attempt failure entries.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithLearner enables adaptive delays and outcome recording.
func WithLearner(l Learner) Option {
	return func(e *Executor) { e.learner = l }
}

// WithHooks sets observability callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Executor) { e.hooks = h }
}

// WithRand sets the random source used for jitter (for testing).
func WithRand(r *rand.Rand) Option {
	return func(e *Executor) {
		if r != nil {
			e.rand = r
		}
	}
}

// WithSleep replaces the backoff wait (for testing).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// New creates an Executor. A nil resolver falls back to DefaultPolicy for
// every context.
func New(resolver Resolver, opts ...Option) *Executor {
	if resolver == nil {
		resolver = Static(DefaultPolicy())
	}
	e := &Executor{
		resolver: resolver,
		log:      slog.Default(),
		sleep:    sleepContext,
		rand:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type runOptions struct {
	override Override
	autoBot  bool
	report   *Report
	retryIf  func(error) bool
}

// RunOption tunes a single run.
type RunOption func(*runOptions)

// WithOverride applies call-site values on top of the resolved policy.
func WithOverride(o Override) RunOption {
	return func(r *runOptions) { r.override = o }
}

// WithAutoBot tags the run as an auto-bot context so the configured
// auto-bot mode multiplier applies to its delays.
func WithAutoBot() RunOption {
	return func(r *runOptions) { r.autoBot = true }
}

// WithRetryIf limits retries to errors for which fn returns true. Any other
// error ends the run immediately and is returned unchanged. Without this
// option every error is retried.
func WithRetryIf(fn func(error) bool) RunOption {
	return func(r *runOptions) { r.retryIf = fn }
}

// WithReport asks the executor to fill r with run metadata.
func WithReport(r *Report) RunOption {
	return func(o *runOptions) { o.report = r }
}

// Do runs op under the policy resolved for name. It returns nil on the first
// successful attempt. When attempts are exhausted the error from the final
// attempt is returned unchanged.
//
// If ctx ends during a backoff sleep, the returned error wraps both
// ctx.Err() and the last operation error.
func (e *Executor) Do(ctx context.Context, name string, op Operation, opts ...RunOption) error {
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}

	res := e.resolver.Resolve(ctx, name)
	policy := ro.override.Apply(res.Policy).Normalize()

	report := ro.report
	if report == nil {
		report = &Report{}
	}
	*report = Report{
		RunID:   uuid.NewString(),
		Context: name,
		Slug:    res.Slug,
		Policy:  policy,
	}

	log := e.log.With(
		slog.String("context", name),
		slog.String("slug", res.Slug),
		slog.String("run_id", report.RunID),
	)

	currentMs := policy.InitialDelay.Milliseconds()
	attempt := 0
	for {
		report.Attempts = attempt + 1
		err := op(ctx, attempt)
		if err == nil {
			e.record(ctx, res.Slug, attempt+1, true)
			e.finish(ctx, report, nil)
			return nil
		}

		attempt++
		e.record(ctx, res.Slug, attempt, false)
		if attempt > policy.MaxAttempts {
			log.Error("attempt failed, retries exhausted",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", policy.MaxAttempts),
				slog.Any("error", err),
			)
			e.finish(ctx, report, err)
			return err
		}
		if ro.retryIf != nil && !ro.retryIf(err) {
			log.Debug("attempt failed, error not retryable",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			e.finish(ctx, report, err)
			return err
		}

		delay := e.delay(ctx, res, currentMs, policy.Jitter, attempt, ro.autoBot)
		log.Warn("attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
			slog.Duration("next_delay", delay),
		)
		report.Delays = append(report.Delays, delay)
		if e.hooks.OnRetry != nil {
			e.hooks.OnRetry(report, attempt, err, delay)
		}

		if serr := e.sleep(ctx, delay); serr != nil {
			werr := fmt.Errorf("retry: %w (last attempt: %w)", serr, err)
			e.finish(ctx, report, werr)
			return werr
		}

		currentMs = nextBase(currentMs, policy.BackoffFactor)
	}
}

// Run is the value-returning form of Executor.Do.
func Run[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context, attempt int) (T, error), opts ...RunOption) (T, error) {
	var out T
	err := e.Do(ctx, name, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}

// delay computes the sleep before retry number attempt (1-based):
// round(current × learning × mode) plus uniform jitter in [-jitter, +jitter],
// floored at 0.
func (e *Executor) delay(ctx context.Context, res Resolution, currentMs int64, jitter time.Duration, attempt int, autoBot bool) time.Duration {
	base := float64(max(0, currentMs))

	learning := 1.0
	if e.learner != nil {
		learning = e.learner.MultiplierFor(ctx, res.Slug)
	}
	mode := 1.0
	if autoBot {
		mode = modeMultiplier(res.Mode, attempt, learning)
	}

	ms := saturate(math.Round(base * learning * mode))
	if j := jitter.Milliseconds(); j > 0 {
		ms += e.jitter(min(j, maxDelayMs))
	}
	ms = min(max(ms, 0), maxDelayMs)
	return time.Duration(ms) * time.Millisecond
}

// nextBase compounds the base delay by factor, truncating to whole
// milliseconds. The result stays in [1, maxDelayMs].
func nextBase(currentMs int64, factor float64) int64 {
	return max(saturate(float64(currentMs)*factor), 1)
}

// saturate converts ms to int64, clamping to [0, maxDelayMs].
func saturate(ms float64) int64 {
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms >= float64(maxDelayMs):
		return maxDelayMs
	}
	return int64(ms)
}

// jitter returns a uniform integer in [-j, +j].
func (e *Executor) jitter(j int64) int64 {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rand.Int64N(2*j+1) - j
}

func (e *Executor) record(ctx context.Context, slug string, attemptNumber int, success bool) {
	if e.learner != nil {
		e.learner.RecordOutcome(ctx, slug, attemptNumber, success)
	}
}

func (e *Executor) finish(ctx context.Context, r *Report, err error) {
	if e.hooks.OnFinish != nil {
		e.hooks.OnFinish(ctx, r, err)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

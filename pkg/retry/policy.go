package retry

import (
	"context"
	"math"
	"time"
)

// Policy is the effective retry configuration for one invocation.
// Total tries for a policy = MaxAttempts + 1.
type Policy struct {
	// MaxAttempts is the number of retries after the first try
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// BackoffFactor compounds the delay after every retry (>= 1)
	BackoffFactor float64
	// Jitter is the half-width of the uniform random offset added to each delay
	Jitter time.Duration
}

// DefaultPolicy mirrors the built-in global settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 1.7,
		Jitter:        0,
	}
}

// Normalize clamps invalid tunables instead of rejecting them: negative
// attempts and delays become 0, a backoff factor below 1 becomes 1.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.BackoffFactor < 1 || math.IsNaN(p.BackoffFactor) {
		p.BackoffFactor = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Override carries call-site values that win over every resolved layer.
// Nil fields leave the resolved policy untouched.
type Override struct {
	MaxAttempts   *int
	InitialDelay  *time.Duration
	BackoffFactor *float64
	Jitter        *time.Duration
}

// Apply returns p with every non-nil field of o applied.
func (o Override) Apply(p Policy) Policy {
	if o.MaxAttempts != nil {
		p.MaxAttempts = *o.MaxAttempts
	}
	if o.InitialDelay != nil {
		p.InitialDelay = *o.InitialDelay
	}
	if o.BackoffFactor != nil {
		p.BackoffFactor = *o.BackoffFactor
	}
	if o.Jitter != nil {
		p.Jitter = *o.Jitter
	}
	return p
}

// Mode selects the extra multiplier applied to auto-bot contexts.
type Mode string

const (
	ModeOff  Mode = "off"
	ModeFast Mode = "fast"
	ModeSafe Mode = "safe"
	ModeAI   Mode = "ai"
)

// Resolution is what a Resolver produces for a context name.
type Resolution struct {
	// Slug is the normalized context identifier used for learning records
	Slug string
	// Policy is the resolved policy before call-site overrides
	Policy Policy
	// Mode is the configured auto-bot mode
	Mode Mode
}

// Resolver maps a context name to its effective policy.
type Resolver interface {
	Resolve(ctx context.Context, name string) Resolution
}

// Learner records attempt outcomes and supplies the adaptive delay multiplier.
// Implementations must not fail the caller: persistence errors are theirs to absorb.
type Learner interface {
	RecordOutcome(ctx context.Context, slug string, attemptNumber int, success bool)
	MultiplierFor(ctx context.Context, slug string) float64
}

// staticResolver always returns the same policy.
type staticResolver struct {
	policy Policy
}

// Static returns a Resolver that ignores the context name and yields p.
// The slug is the raw context name.
func Static(p Policy) Resolver {
	return staticResolver{policy: p}
}

func (s staticResolver) Resolve(_ context.Context, name string) Resolution {
	return Resolution{Slug: name, Policy: s.policy, Mode: ModeOff}
}

// modeMultiplier is the auto-bot factor for the given retry number (1-based).
func modeMultiplier(mode Mode, attempt int, learning float64) float64 {
	switch mode {
	case ModeFast:
		return 0.8
	case ModeSafe:
		return 1.25 + 0.05*float64(attempt)
	case ModeAI:
		fatigue := 1 + 0.08*float64(attempt)
		return clampFloat(learning*fatigue, 0.7, 2.3)
	default:
		return 1
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

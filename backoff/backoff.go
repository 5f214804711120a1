// Package backoff provides pluggable delay strategies for scheduling
// the next poll of an in-progress operation. All strategies are safe
// for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before poll number n.
type Strategy interface {
	// Delay returns how long to wait before poll n (1-indexed).
	// Poll 1 is the first status check after the bind was accepted.
	Delay(poll int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of poll number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant polling strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the poll number.
// Delay = min(Initial * poll, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear polling strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * poll, capped at Max.
func (l *Linear) Delay(poll int) time.Duration {
	d := l.Initial * time.Duration(poll)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each poll.
// Delay = min(Initial * 2^(poll-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential polling strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(poll-1), capped at Max.
func (e *Exponential) Delay(poll int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(poll-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(poll-1), Max)].
// This prevents thundering herd when many operations poll the same
// broker simultaneously.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(poll-1), Max)].
func (e *ExponentialWithJitter) Delay(poll int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(poll-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default polling delay used by the engine:
// Constant with a 60s interval, matching the default broker polling
// cadence. Brokers that return Retry-After override this per poll.
func DefaultStrategy() Strategy {
	return NewConstant(60 * time.Second)
}

// Clamp bounds a delay to [min, max]. A broker-supplied Retry-After is
// clamped before it becomes the next polling interval so a misbehaving
// broker can neither hammer the scheduler nor park an operation forever.
func Clamp(d, min, max time.Duration) time.Duration {
	if min > 0 && d < min {
		return min
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

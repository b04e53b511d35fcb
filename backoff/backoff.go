// Package backoff provides the delay strategies used between failed posting
// attempts of a recurring obligation. Strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultRetryDelay is the fixed wait of the Retrying state.
const DefaultRetryDelay = 5 * time.Minute

// Strategy computes the wait before the next posting attempt.
type Strategy interface {
	// Delay returns the wait before retry n. Retry 1 follows the first
	// failed attempt. Delay never returns a negative duration.
	Delay(retry int) time.Duration
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(retry int) time.Duration

// Delay calls f.
func (f StrategyFunc) Delay(retry int) time.Duration {
	if d := f(retry); d > 0 {
		return d
	}
	return 0
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant waits the same interval before every retry.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	if c.Interval < 0 {
		return 0
	}
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the wait on each retry, up to Max. With Jitter > 0 a
// random fraction of up to Jitter of the computed delay is subtracted, so a
// burst of failing obligations does not retry in lockstep.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// NewExponential creates an exponential strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns min(Initial * 2^(retry-1), Max) minus jitter.
func (e *Exponential) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	base := float64(e.Initial) * math.Pow(2, float64(retry-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	if j := math.Min(e.Jitter, 1); j > 0 {
		base -= base * j * rand.Float64() //nolint:gosec // jitter does not need crypto rand
	}
	if base < 0 {
		return 0
	}
	return time.Duration(base)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultRetry returns the strategy used by the recurring poster: a constant
// DefaultRetryDelay between attempts.
func DefaultRetry() Strategy {
	return NewConstant(DefaultRetryDelay)
}

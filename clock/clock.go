// Package clock abstracts the current time and the suspension primitive used
// by workflows, so tests can simulate multi-week waits without real delays.
package clock

import (
	"context"
	"time"
)

// Clock reports the current time and suspends the caller.
//
// Sleep is the only primitive in ledgerflow that blocks for an unbounded
// amount of wall time. It returns the context error if ctx is done first.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

// New returns the wall clock.
func New() Clock { return Real{} }

// Now returns the current UTC time.
func (Real) Now() time.Time { return time.Now().UTC() }

// Sleep blocks for d or until ctx is done.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

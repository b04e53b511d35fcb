package middleware

import (
	"context"
	"time"

	"github.com/zeni/ledgerflow/workflow"
)

// Timeout returns middleware that bounds a single step attempt. When the
// deadline is exceeded the step context is canceled and the step should
// return context.DeadlineExceeded, which the runner treats as transient.
// A non-positive d disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *workflow.StepInfo, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}

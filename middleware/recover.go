package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/zeni/ledgerflow/workflow"
)

// Recover returns middleware that recovers from panics in the step chain.
// Panics are converted to errors and logged with a stack trace. The step is
// not checkpointed and runs again on the next attempt.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, step *workflow.StepInfo, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("step panicked",
					slog.String("step", step.Name),
					slog.String("run_id", step.Run.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in step %s: %v", step.Name, r)
			}
		}()
		return next(ctx)
	}
}

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow/workflow"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, step *workflow.StepInfo, next Handler) error {
		logger.Debug("step started",
			slog.String("step", step.Name),
			slog.String("workflow", step.Run.Name),
			slog.String("run_id", step.Run.ID.String()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("step failed",
				slog.String("step", step.Name),
				slog.String("workflow", step.Run.Name),
				slog.String("run_id", step.Run.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("step", step.Name),
				slog.String("workflow", step.Run.Name),
				slog.String("run_id", step.Run.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}

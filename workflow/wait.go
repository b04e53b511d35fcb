package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow/clock"
)

// WaitOutcome is the result of a chunked wait.
type WaitOutcome int

const (
	// WaitCompleted means the deadline was reached without cancellation.
	WaitCompleted WaitOutcome = iota + 1
	// WaitCanceled means the cancel check reported cancellation before the
	// deadline.
	WaitCanceled
)

// String returns the outcome name.
func (o WaitOutcome) String() string {
	switch o {
	case WaitCompleted:
		return "completed"
	case WaitCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("WaitOutcome(%d)", int(o))
	}
}

// CancelCheck reports whether the wait should stop early. An error aborts the
// wait and is treated as transient by the runner.
type CancelCheck func(ctx context.Context) (bool, error)

// NeverCancel is a CancelCheck that never cancels.
func NeverCancel(context.Context) (bool, error) { return false, nil }

// WaitUntilOrCancel suspends until deadline, sleeping at most maxChunk at a
// time and evaluating cancel before each sleep. A deadline at or before now
// completes without evaluating cancel. A maxChunk of zero or less sleeps the
// whole remainder in one chunk.
//
// The remaining time is recomputed from clk after every sleep, so time spent
// in cancel checks counts towards the deadline.
func WaitUntilOrCancel(
	ctx context.Context,
	clk clock.Clock,
	deadline time.Time,
	cancel CancelCheck,
	maxChunk time.Duration,
) (WaitOutcome, error) {
	if cancel == nil {
		cancel = NeverCancel
	}
	for remaining := deadline.Sub(clk.Now()); remaining > 0; remaining = deadline.Sub(clk.Now()) {
		canceled, err := cancel(ctx)
		if err != nil {
			return 0, fmt.Errorf("cancel check: %w", err)
		}
		if canceled {
			return WaitCanceled, nil
		}

		chunk := remaining
		if maxChunk > 0 && chunk > maxChunk {
			chunk = maxChunk
		}
		if err := clk.Sleep(ctx, chunk); err != nil {
			return 0, err
		}
	}
	return WaitCompleted, nil
}

// WaitUntil runs WaitUntilOrCancel on the run's clock and context. Waits are
// not checkpointed: on replay the remaining time is derived from the
// deadline, which callers must therefore obtain from a checkpoint or from
// persisted state.
func (w *Workflow) WaitUntil(deadline time.Time, cancel CancelCheck, maxChunk time.Duration) (WaitOutcome, error) {
	if deadline.After(w.clock.Now()) {
		w.logger.Debug("workflow suspended",
			slog.String("run_id", w.run.ID.String()),
			slog.Time("until", deadline),
		)
		w.emitter.EmitWorkflowSuspended(w.ctx, w.run, deadline)
	}

	outcome, err := WaitUntilOrCancel(w.ctx, w.clock, deadline, cancel, maxChunk)
	if err != nil {
		return 0, fmt.Errorf("workflow %s wait: %w", w.run.Name, err)
	}
	return outcome, nil
}

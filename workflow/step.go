package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// stepDone is the checkpoint payload of a step without a result.
var stepDone = []byte("null")

// Step executes a named step. If a checkpoint exists for the step name the
// function is skipped. Otherwise fn runs and, on success, a checkpoint is
// saved. Errors from fn are returned wrapped and are not checkpointed.
func (w *Workflow) Step(name string, fn func(ctx context.Context) error) error {
	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, name)
	if err != nil {
		return fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		w.logger.Debug("skipping checkpointed step",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return nil
	}

	elapsed, stepErr := w.execute(name, fn)
	if stepErr != nil {
		w.emitter.EmitStepFailed(w.ctx, w.run, name, stepErr)
		return fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, stepErr)
	}

	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, name, stepDone); saveErr != nil {
		return fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	w.emitter.EmitStepCompleted(w.ctx, w.run, name, elapsed)
	return nil
}

// StepWithResult executes a named step that returns a value. The result is
// JSON-encoded into the checkpoint; on replay the decoded checkpoint is
// returned without calling fn.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func StepWithResult[T any](w *Workflow, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, name)
	if err != nil {
		return zero, fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		var result T
		if decErr := json.Unmarshal(data, &result); decErr != nil {
			return zero, fmt.Errorf("workflow %s: decode checkpoint %q: %w", w.run.Name, name, decErr)
		}
		w.logger.Debug("returning checkpointed result",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return result, nil
	}

	var result T
	elapsed, stepErr := w.execute(name, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	if stepErr != nil {
		w.emitter.EmitStepFailed(w.ctx, w.run, name, stepErr)
		return zero, fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, stepErr)
	}

	encoded, encErr := json.Marshal(result)
	if encErr != nil {
		return zero, fmt.Errorf("workflow %s: encode checkpoint %q: %w", w.run.Name, name, encErr)
	}

	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, name, encoded); saveErr != nil {
		return zero, fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	w.emitter.EmitStepCompleted(w.ctx, w.run, name, elapsed)
	return result, nil
}

// execute runs fn through the step middleware chain and reports the time
// spent on the run's clock.
func (w *Workflow) execute(name string, fn StepFunc) (time.Duration, error) {
	start := w.clock.Now()
	var err error
	if w.middleware != nil {
		err = w.middleware(w.ctx, &StepInfo{Run: w.run, Name: name}, fn)
	} else {
		err = fn(w.ctx)
	}
	return w.clock.Now().Sub(start), err
}

// Done reports whether the named step has a checkpoint in this run.
func (w *Workflow) Done(name string) (bool, error) {
	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, name)
	if err != nil {
		return false, fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	return data != nil, nil
}

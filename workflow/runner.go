package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/clock"
	"github.com/zeni/ledgerflow/id"
)

// RunEmitter emits workflow-level lifecycle events.
// It is satisfied by ext.Registry.
type RunEmitter interface {
	StepEmitter
	EmitWorkflowStarted(ctx context.Context, run *Run)
	EmitWorkflowCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitWorkflowFailed(ctx context.Context, run *Run, err error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock sets the clock runs are scheduled against.
func WithClock(c clock.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithStepMiddleware sets the middleware wrapping every executed step.
func WithStepMiddleware(mw StepMiddleware) RunnerOption {
	return func(r *Runner) { r.middleware = mw }
}

// Runner orchestrates workflow execution: creating runs idempotently,
// building the Workflow context, invoking handlers, and classifying their
// errors. A run executes at most once at a time within one Runner.
type Runner struct {
	registry   *Registry
	store      Store
	emitter    RunEmitter
	logger     *slog.Logger
	clock      clock.Clock
	middleware StepMiddleware

	mu     sync.Mutex
	active map[id.RunID]struct{}
}

// NewRunner creates a workflow runner.
func NewRunner(
	registry *Registry,
	store Store,
	emitter RunEmitter,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		registry: registry,
		store:    store,
		emitter:  emitter,
		logger:   logger,
		clock:    clock.New(),
		active:   make(map[id.RunID]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the workflow registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Start starts, or continues, the run of workflow name for instanceKey and
// executes it synchronously. See StartRaw.
func Start[T any](ctx context.Context, runner *Runner, name, instanceKey string, input T) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return runner.StartRaw(ctx, name, instanceKey, data)
}

// StartRaw is the idempotent start. It prepares the run for
// (name, instanceKey) and executes it if it is still running. A finished
// run is returned unchanged and input is ignored.
func (r *Runner) StartRaw(ctx context.Context, name, instanceKey string, input []byte) (*Run, error) {
	run, err := r.Prepare(ctx, name, instanceKey, input)
	if err != nil {
		return nil, err
	}
	if run.Terminal() {
		return run, nil
	}

	runner, ok := r.registry.GetVersion(run.Name, run.Version)
	if !ok {
		return nil, fmt.Errorf("%w: %q version %d", ledgerflow.ErrWorkflowNotFound, run.Name, run.Version)
	}
	r.execute(ctx, run, runner)
	return run, nil
}

// Prepare returns the run for (name, instanceKey), creating it with input
// and the latest registered version if none exists. It does not execute
// the run. An empty instanceKey always creates a new run keyed by its ID.
func (r *Runner) Prepare(ctx context.Context, name, instanceKey string, input []byte) (*Run, error) {
	if _, ok := r.registry.Get(name); !ok {
		return nil, fmt.Errorf("%w: %q", ledgerflow.ErrWorkflowNotFound, name)
	}

	if instanceKey != "" {
		existing, err := r.store.GetRunByKey(ctx, name, instanceKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ledgerflow.ErrRunNotFound) {
			return nil, fmt.Errorf("lookup run %s/%s: %w", name, instanceKey, err)
		}
	}

	runID := id.NewRunID()
	if instanceKey == "" {
		instanceKey = runID.String()
	}

	now := r.clock.Now()
	run := &Run{
		Entity:      ledgerflow.Entity{CreatedAt: now, UpdatedAt: now},
		ID:          runID,
		Name:        name,
		InstanceKey: instanceKey,
		Version:     r.registry.LatestVersion(name),
		State:       RunStateRunning,
		Input:       input,
		StartedAt:   now,
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, ledgerflow.ErrRunAlreadyExists) {
			return r.store.GetRunByKey(ctx, name, instanceKey)
		}
		return nil, fmt.Errorf("create run for workflow %q: %w", name, err)
	}

	r.logger.Info("workflow run created",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", name),
		slog.String("instance_key", instanceKey),
	)
	r.emitter.EmitWorkflowStarted(ctx, run)
	return run, nil
}

// Resume replays a running run from the top on the version it was started
// with. Steps with checkpoints are skipped. Resuming a run that is already
// executing in this Runner is a no-op.
func (r *Runner) Resume(ctx context.Context, runID id.RunID) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State != RunStateRunning {
		return fmt.Errorf("%w: run %s is %q, not running", ledgerflow.ErrInvalidTransition, runID, run.State)
	}

	runner, ok := r.registry.GetVersion(run.Name, run.Version)
	if !ok {
		return fmt.Errorf("%w: %q version %d (run %s)", ledgerflow.ErrWorkflowNotFound, run.Name, run.Version, runID)
	}

	r.execute(ctx, run, runner)
	return nil
}

// Pending returns the runs in running state that are not executing in this
// Runner: runs interrupted by a crash or left for redelivery.
func (r *Runner) Pending(ctx context.Context) ([]*Run, error) {
	runs, err := r.store.ListRuns(ctx, ListOpts{State: RunStateRunning})
	if err != nil {
		return nil, fmt.Errorf("list running workflow runs: %w", err)
	}

	out := runs[:0]
	for _, run := range runs {
		if !r.IsActive(run.ID) {
			out = append(out, run)
		}
	}
	return out, nil
}

// ResumeAll resumes every pending run concurrently and blocks until all of
// them have returned. Resume failures are logged.
func (r *Runner) ResumeAll(ctx context.Context) error {
	runs, err := r.Pending(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, run := range runs {
		r.logger.Info("resuming workflow run",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.Int("attempts", run.Attempts),
		)
		g.Go(func() error {
			if resumeErr := r.Resume(ctx, run.ID); resumeErr != nil {
				r.logger.Error("failed to resume workflow run",
					slog.String("run_id", run.ID.String()),
					slog.String("error", resumeErr.Error()),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// IsActive reports whether the run is executing in this Runner.
func (r *Runner) IsActive(runID id.RunID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[runID]
	return ok
}

func (r *Runner) acquire(runID id.RunID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[runID]; ok {
		return false
	}
	r.active[runID] = struct{}{}
	return true
}

func (r *Runner) release(runID id.RunID) {
	r.mu.Lock()
	delete(r.active, runID)
	r.mu.Unlock()
}

// execute runs the handler once and records the outcome. A nil error
// completes the run and a permanent error fails it. Any other error leaves
// the run in running state for redelivery.
func (r *Runner) execute(ctx context.Context, run *Run, runner RunnerFunc) {
	if !r.acquire(run.ID) {
		r.logger.Debug("workflow run already executing",
			slog.String("run_id", run.ID.String()),
		)
		return
	}
	defer r.release(run.ID)

	// Outcome updates must land even when ctx was canceled by shutdown.
	persistCtx := context.WithoutCancel(ctx)

	run.Attempts++
	run.Touch(r.clock.Now())
	if err := r.store.UpdateRun(ctx, run); err != nil {
		r.logger.Error("failed to record run attempt",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	start := r.clock.Now()
	wf := NewWorkflowContext(ctx, run, r.store, r.clock, r.emitter, r.middleware, r.logger)
	err := runner(wf, run.Input)
	elapsed := r.clock.Now().Sub(start)
	now := r.clock.Now()

	switch {
	case err == nil:
		run.State = RunStateCompleted
		run.Error = ""
		run.CompletedAt = &now
		r.update(persistCtx, run)
		r.emitter.EmitWorkflowCompleted(ctx, run, elapsed)

	case IsPermanent(err):
		run.State = RunStateFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		r.update(persistCtx, run)
		r.logger.Error("workflow run failed permanently",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.String("error", err.Error()),
		)
		r.emitter.EmitWorkflowFailed(ctx, run, err)

	default:
		run.Error = err.Error()
		r.update(persistCtx, run)
		if ctx.Err() != nil {
			r.logger.Info("workflow run interrupted",
				slog.String("run_id", run.ID.String()),
				slog.String("workflow", run.Name),
			)
			return
		}
		r.logger.Warn("workflow run aborted, awaiting redelivery",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.Int("attempts", run.Attempts),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) update(ctx context.Context, run *Run) {
	run.Touch(r.clock.Now())
	if err := r.store.UpdateRun(ctx, run); err != nil {
		r.logger.Error("failed to update run",
			slog.String("run_id", run.ID.String()),
			slog.String("state", string(run.State)),
			slog.String("error", err.Error()),
		)
	}
}

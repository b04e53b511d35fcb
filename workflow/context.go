package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow/clock"
	"github.com/zeni/ledgerflow/id"
)

// StepEmitter is called by the Workflow to emit step lifecycle events.
// It is declared here, and satisfied by ext.Registry, so that workflow does
// not import ext.
type StepEmitter interface {
	EmitStepCompleted(ctx context.Context, run *Run, stepName string, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, run *Run, stepName string, err error)
	EmitWorkflowSuspended(ctx context.Context, run *Run, until time.Time)
}

// StepFunc is the unit of work executed by a step.
type StepFunc func(ctx context.Context) error

// StepInfo describes the step a StepMiddleware is wrapping.
type StepInfo struct {
	Run  *Run
	Name string
}

// StepMiddleware wraps the execution of a step that has no checkpoint yet.
// Memoized steps never reach the middleware chain.
type StepMiddleware func(ctx context.Context, step *StepInfo, next StepFunc) error

// Workflow is the execution context passed to handlers. Every side effect a
// handler performs goes through Step or StepWithResult; every suspension goes
// through WaitUntil.
type Workflow struct {
	ctx        context.Context
	run        *Run
	store      Store
	clock      clock.Clock
	emitter    StepEmitter
	middleware StepMiddleware
	logger     *slog.Logger
}

// NewWorkflowContext creates a Workflow execution context. It is called by
// the Runner; tests may call it directly to drive a handler without a runner.
func NewWorkflowContext(
	ctx context.Context,
	run *Run,
	store Store,
	clk clock.Clock,
	emitter StepEmitter,
	mw StepMiddleware,
	logger *slog.Logger,
) *Workflow {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		ctx:        ctx,
		run:        run,
		store:      store,
		clock:      clk,
		emitter:    emitter,
		middleware: mw,
		logger:     logger,
	}
}

// Context returns the underlying context.Context.
func (w *Workflow) Context() context.Context { return w.ctx }

// RunID returns the workflow run ID.
func (w *Workflow) RunID() id.RunID { return w.run.ID }

// Run returns the workflow run.
func (w *Workflow) Run() *Run { return w.run }

// Clock returns the clock the run is scheduled against.
func (w *Workflow) Clock() clock.Clock { return w.clock }

// Now returns the current time of the run's clock.
func (w *Workflow) Now() time.Time { return w.clock.Now() }

// Logger returns a logger annotated with the run identity.
func (w *Workflow) Logger() *slog.Logger {
	return w.logger.With(
		slog.String("run_id", w.run.ID.String()),
		slog.String("workflow", w.run.Name),
	)
}

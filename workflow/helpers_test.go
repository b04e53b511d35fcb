package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/zeni/ledgerflow/clock"
	"github.com/zeni/ledgerflow/store/memory"
	"github.com/zeni/ledgerflow/workflow"
)

var epoch = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noopEmitter implements workflow.RunEmitter with no-ops.
type noopEmitter struct{}

func (noopEmitter) EmitStepCompleted(context.Context, *workflow.Run, string, time.Duration) {}
func (noopEmitter) EmitStepFailed(context.Context, *workflow.Run, string, error)           {}
func (noopEmitter) EmitWorkflowSuspended(context.Context, *workflow.Run, time.Time)        {}
func (noopEmitter) EmitWorkflowStarted(context.Context, *workflow.Run)                     {}
func (noopEmitter) EmitWorkflowCompleted(context.Context, *workflow.Run, time.Duration)    {}
func (noopEmitter) EmitWorkflowFailed(context.Context, *workflow.Run, error)               {}

// recordingEmitter records every event name it receives.
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) add(name string) {
	e.mu.Lock()
	e.events = append(e.events, name)
	e.mu.Unlock()
}

func (e *recordingEmitter) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *recordingEmitter) EmitStepCompleted(_ context.Context, _ *workflow.Run, step string, _ time.Duration) {
	e.add("step_completed:" + step)
}

func (e *recordingEmitter) EmitStepFailed(_ context.Context, _ *workflow.Run, step string, _ error) {
	e.add("step_failed:" + step)
}

func (e *recordingEmitter) EmitWorkflowSuspended(context.Context, *workflow.Run, time.Time) {
	e.add("suspended")
}

func (e *recordingEmitter) EmitWorkflowStarted(context.Context, *workflow.Run) { e.add("started") }

func (e *recordingEmitter) EmitWorkflowCompleted(context.Context, *workflow.Run, time.Duration) {
	e.add("completed")
}

func (e *recordingEmitter) EmitWorkflowFailed(context.Context, *workflow.Run, error) { e.add("failed") }

// newTestRunner creates a runner over a memory store and a fake clock.
func newTestRunner(opts ...workflow.RunnerOption) (*workflow.Runner, *workflow.Registry, *memory.Store, *clock.Fake) {
	s := memory.New()
	clk := clock.NewFake(epoch)
	reg := workflow.NewRegistry()
	opts = append([]workflow.RunnerOption{workflow.WithClock(clk)}, opts...)
	runner := workflow.NewRunner(reg, s, noopEmitter{}, testLogger(), opts...)
	return runner, reg, s, clk
}

// newWorkflowContext builds a Workflow for run directly, outside a Runner.
func newWorkflowContext(s workflow.Store, clk clock.Clock, run *workflow.Run, mw workflow.StepMiddleware) *workflow.Workflow {
	return workflow.NewWorkflowContext(context.Background(), run, s, clk, noopEmitter{}, mw, testLogger())
}

type orderInput struct {
	OrderID string `json:"order_id"`
	Amount  int    `json:"amount"`
}

package workflow

import (
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means the run is executing, suspended, or awaiting
	// redelivery after a transient error.
	RunStateRunning RunState = "running"
	// RunStateCompleted means the handler returned nil.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the handler returned a permanent error.
	RunStateFailed RunState = "failed"
)

// Run is a single execution of a workflow, identified both by its ID and by
// the (Name, InstanceKey) pair used for idempotent starts.
type Run struct {
	ledgerflow.Entity

	ID          id.RunID   `json:"id"`
	Name        string     `json:"name"`
	InstanceKey string     `json:"instance_key"`
	Version     int        `json:"version"`
	State       RunState   `json:"state"`
	Input       []byte     `json:"input,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the run will never execute again.
func (r *Run) Terminal() bool {
	return r.State == RunStateCompleted || r.State == RunStateFailed
}

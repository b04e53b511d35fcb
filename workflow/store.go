package workflow

import (
	"context"

	"github.com/zeni/ledgerflow/id"
)

// ListOpts controls pagination for workflow run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
	// Name filters by workflow name. Empty means all workflows.
	Name string
}

// Store defines the persistence contract for runs and step checkpoints.
type Store interface {
	// CreateRun persists a new run. It returns ledgerflow.ErrRunAlreadyExists
	// if a run with the same Name and InstanceKey exists.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// GetRunByKey retrieves the run started for (name, instanceKey).
	GetRunByKey(ctx context.Context, name, instanceKey string) (*Run, error)

	// UpdateRun persists changes to an existing run. UpdatedAt is stored as
	// given; the runner stamps it on its clock.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs matching the given options, oldest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// SaveCheckpoint persists the outcome of a step. An existing checkpoint
	// for the same run and step is kept unchanged.
	SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error

	// GetCheckpoint returns the checkpoint data of a step, or nil data if
	// the step has not completed.
	GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error)

	// ListCheckpoints returns all checkpoints of a run in creation order.
	ListCheckpoints(ctx context.Context, runID id.RunID) ([]*Checkpoint, error)
}

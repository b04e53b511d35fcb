package workflow

import (
	"time"

	"github.com/zeni/ledgerflow/id"
)

// Checkpoint is the memoized outcome of a completed step.
type Checkpoint struct {
	ID        id.CheckpointID `json:"id"`
	RunID     id.RunID        `json:"run_id"`
	StepName  string          `json:"step_name"`
	Data      []byte          `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zeni/ledgerflow/id"
)

// TimelineEntry is one completed step in a run's history.
type TimelineEntry struct {
	StepName  string    `json:"step_name"`
	Data      []byte    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetTimeline returns the completed steps of a run in the order they were
// checkpointed. Stores list checkpoints in insertion order, which breaks
// timestamp ties.
func (r *Runner) GetTimeline(ctx context.Context, runID id.RunID) ([]TimelineEntry, error) {
	checkpoints, err := r.store.ListCheckpoints(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for run %s: %w", runID, err)
	}

	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt)
	})

	entries := make([]TimelineEntry, len(checkpoints))
	for i, cp := range checkpoints {
		entries[i] = TimelineEntry{
			StepName:  cp.StepName,
			Data:      cp.Data,
			CreatedAt: cp.CreatedAt,
		}
	}
	return entries, nil
}

// StepNames returns the step names of a timeline, in order.
func StepNames(entries []TimelineEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.StepName
	}
	return names
}

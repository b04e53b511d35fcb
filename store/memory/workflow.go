package memory

import (
	"context"
	"sort"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/workflow"
)

func runKey(name, instanceKey string) string { return name + "\x00" + instanceKey }

func checkpointKey(runID id.RunID, stepName string) string {
	return runID.String() + ":" + stepName
}

func cloneRun(r *workflow.Run) *workflow.Run {
	cp := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Input = append([]byte(nil), r.Input...)
	return &cp
}

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return ledgerflow.ErrRunAlreadyExists
	}
	if _, exists := m.runKeys[runKey(run.Name, run.InstanceKey)]; exists {
		return ledgerflow.ErrRunAlreadyExists
	}
	m.runs[key] = cloneRun(run)
	m.runKeys[runKey(run.Name, run.InstanceKey)] = key
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, ledgerflow.ErrRunNotFound
	}
	return cloneRun(r), nil
}

// GetRunByKey retrieves the run started for (name, instanceKey).
func (m *Store) GetRunByKey(_ context.Context, name, instanceKey string) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runID, ok := m.runKeys[runKey(name, instanceKey)]
	if !ok {
		return nil, ledgerflow.ErrRunNotFound
	}
	return cloneRun(m.runs[runID]), nil
}

// UpdateRun persists changes to an existing workflow run.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return ledgerflow.ErrRunNotFound
	}
	m.runs[key] = cloneRun(run)
	return nil
}

// ListRuns returns workflow runs matching the given options.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Name != "" && r.Name != opts.Name {
			continue
		}
		result = append(result, cloneRun(r))
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].ID.String() < result[k].ID.String()
		}
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return page(result, opts.Offset, opts.Limit), nil
}

// SaveCheckpoint persists checkpoint data for a step. An existing
// checkpoint is kept.
func (m *Store) SaveCheckpoint(_ context.Context, runID id.RunID, stepName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := checkpointKey(runID, stepName)
	if _, ok := m.checkpoints[key]; ok {
		return nil
	}
	m.checkpoints[key] = &workflow.Checkpoint{
		ID:        id.NewCheckpointID(),
		RunID:     runID,
		StepName:  stepName,
		Data:      append([]byte{}, data...),
		CreatedAt: time.Now().UTC(),
	}
	m.cpOrder[runID.String()] = append(m.cpOrder[runID.String()], stepName)
	return nil
}

// GetCheckpoint retrieves checkpoint data for a step, or nil.
func (m *Store) GetCheckpoint(_ context.Context, runID id.RunID, stepName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointKey(runID, stepName)]
	if !ok {
		return nil, nil // no checkpoint is not an error
	}
	return append([]byte{}, cp.Data...), nil
}

// ListCheckpoints returns all checkpoints of a run in save order.
func (m *Store) ListCheckpoints(_ context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	steps := m.cpOrder[runID.String()]
	result := make([]*workflow.Checkpoint, 0, len(steps))
	for _, step := range steps {
		cp := *m.checkpoints[checkpointKey(runID, step)]
		result = append(result, &cp)
	}
	return result, nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/workflow"
)

const runColumns = `id, name, instance_key, version, state, input, error, attempts,
	started_at, completed_at, created_at, updated_at`

func scanRun(row scanner) (*workflow.Run, error) {
	var (
		r           workflow.Run
		state       string
		completedAt *time.Time
	)
	if err := row.Scan(
		&r.ID, &r.Name, &r.InstanceKey, &r.Version, &state, &r.Input, &r.Error, &r.Attempts,
		&r.StartedAt, &completedAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.State = workflow.RunState(state)
	r.StartedAt = r.StartedAt.UTC()
	r.CompletedAt = utcPtr(completedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledgerflow_workflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.Name, run.InstanceKey, run.Version, string(run.State), run.Input, run.Error, run.Attempts,
		run.StartedAt, run.CompletedAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledgerflow.ErrRunAlreadyExists
		}
		return fmt.Errorf("ledgerflow/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM ledgerflow_workflow_runs WHERE id = $1`, runID))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("ledgerflow/postgres: get run: %w", err)
	}
	return r, nil
}

// GetRunByKey retrieves the run started for (name, instanceKey).
func (s *Store) GetRunByKey(ctx context.Context, name, instanceKey string) (*workflow.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM ledgerflow_workflow_runs WHERE name = $1 AND instance_key = $2`,
		name, instanceKey))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("ledgerflow/postgres: get run by key: %w", err)
	}
	return r, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ledgerflow_workflow_runs
		SET version = $1, state = $2, error = $3, attempts = $4, completed_at = $5, updated_at = $6
		WHERE id = $7`,
		run.Version, string(run.State), run.Error, run.Attempts, run.CompletedAt, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledgerflow.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var (
		where []string
		args  []any
	)
	if opts.State != "" {
		args = append(args, string(opts.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if opts.Name != "" {
		args = append(args, opts.Name)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}

	q := `SELECT ` + runColumns + ` FROM ledgerflow_workflow_runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC" + pageClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/postgres: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveCheckpoint persists checkpoint data for a step. An existing
// checkpoint is kept.
func (s *Store) SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledgerflow_checkpoints (id, run_id, step_name, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, step_name) DO NOTHING`,
		id.NewCheckpointID(), runID, stepName, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/postgres: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a step, or nil.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM ledgerflow_checkpoints WHERE run_id = $1 AND step_name = $2`,
		runID, stepName,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledgerflow/postgres: get checkpoint: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// ListCheckpoints returns all checkpoints of a run in save order.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, step_name, data, created_at
		FROM ledgerflow_checkpoints
		WHERE run_id = $1
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*workflow.Checkpoint
	for rows.Next() {
		var cp workflow.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.RunID, &cp.StepName, &cp.Data, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledgerflow/postgres: scan checkpoint: %w", err)
		}
		cp.CreatedAt = cp.CreatedAt.UTC()
		cps = append(cps, &cp)
	}
	return cps, rows.Err()
}

package sqlite

import (
	"context"
	"database/sql"
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
		r                               workflow.Run
		state                           string
		startedAt, createdAt, updatedAt int64
		completedAt                     sql.NullInt64
	)
	if err := row.Scan(
		&r.ID, &r.Name, &r.InstanceKey, &r.Version, &state, &r.Input, &r.Error, &r.Attempts,
		&startedAt, &completedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	r.State = workflow.RunState(state)
	r.StartedAt = fromMillis(startedAt)
	r.CompletedAt = fromNullMillis(completedAt)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledgerflow_workflow_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.InstanceKey, run.Version, string(run.State), run.Input, run.Error, run.Attempts,
		toMillis(run.StartedAt), nullMillis(run.CompletedAt), toMillis(run.CreatedAt), toMillis(run.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledgerflow.ErrRunAlreadyExists
		}
		return fmt.Errorf("ledgerflow/sqlite: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM ledgerflow_workflow_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: get run: %w", err)
	}
	return r, nil
}

// GetRunByKey retrieves the run started for (name, instanceKey).
func (s *Store) GetRunByKey(ctx context.Context, name, instanceKey string) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM ledgerflow_workflow_runs WHERE name = ? AND instance_key = ?`,
		name, instanceKey)
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: get run by key: %w", err)
	}
	return r, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledgerflow_workflow_runs
		SET version = ?, state = ?, error = ?, attempts = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		run.Version, string(run.State), run.Error, run.Attempts,
		nullMillis(run.CompletedAt), toMillis(run.UpdatedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/sqlite: update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
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
		where = append(where, "state = ?")
		args = append(args, string(opts.State))
	}
	if opts.Name != "" {
		where = append(where, "name = ?")
		args = append(args, opts.Name)
	}

	q := `SELECT ` + runColumns + ` FROM ledgerflow_workflow_runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC" + pageClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/sqlite: scan run: %w", err)
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledgerflow_checkpoints (id, run_id, step_name, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step_name) DO NOTHING`,
		id.NewCheckpointID(), runID, stepName, data, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/sqlite: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a step, or nil.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM ledgerflow_checkpoints WHERE run_id = ? AND step_name = ?`,
		runID, stepName,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: get checkpoint: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// ListCheckpoints returns all checkpoints of a run in save order.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_name, data, created_at
		FROM ledgerflow_checkpoints
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*workflow.Checkpoint
	for rows.Next() {
		var (
			cp        workflow.Checkpoint
			createdAt int64
		)
		if err := rows.Scan(&cp.ID, &cp.RunID, &cp.StepName, &cp.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("ledgerflow/sqlite: scan checkpoint: %w", err)
		}
		cp.CreatedAt = fromMillis(createdAt)
		cps = append(cps, &cp)
	}
	return cps, rows.Err()
}

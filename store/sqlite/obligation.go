package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
)

const obligationColumns = `id, owner_id, ledger_id, category_id, amount, kind, note,
	next_occurrence_at, interval_ms, status, created_at, updated_at`

func scanObligation(row scanner) (*obligation.Obligation, error) {
	var (
		o                          obligation.Obligation
		amount, kind, status       string
		nextAt, createdAt, updated int64
	)
	if err := row.Scan(
		&o.ID, &o.OwnerID, &o.LedgerID, &o.CategoryID, &amount, &kind, &o.Note,
		&nextAt, &o.IntervalMs, &status, &createdAt, &updated,
	); err != nil {
		return nil, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	o.Amount = amt
	o.Kind = ledger.Kind(kind)
	o.Status = obligation.Status(status)
	o.NextOccurrenceAt = fromMillis(nextAt)
	o.CreatedAt = fromMillis(createdAt)
	o.UpdatedAt = fromMillis(updated)
	return &o, nil
}

// CreateObligation persists a new obligation.
func (s *Store) CreateObligation(ctx context.Context, o *obligation.Obligation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledgerflow_obligations (`+obligationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OwnerID, o.LedgerID, o.CategoryID, o.Amount.String(), string(o.Kind), o.Note,
		toMillis(o.NextOccurrenceAt), o.IntervalMs, string(o.Status),
		toMillis(o.CreatedAt), toMillis(o.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledgerflow.ErrObligationAlreadyExists
		}
		return fmt.Errorf("ledgerflow/sqlite: create obligation: %w", err)
	}
	return nil
}

// GetObligation retrieves an obligation by ID.
func (s *Store) GetObligation(ctx context.Context, oblID id.ObligationID) (*obligation.Obligation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+obligationColumns+` FROM ledgerflow_obligations WHERE id = ?`, oblID)
	o, err := scanObligation(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrObligationNotFound
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: get obligation: %w", err)
	}
	return o, nil
}

// ListObligations returns obligations ordered by creation time.
func (s *Store) ListObligations(ctx context.Context, opts obligation.ListOpts) ([]*obligation.Obligation, error) {
	q := `SELECT ` + obligationColumns + ` FROM ledgerflow_obligations`
	var args []any
	if opts.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	q += ` ORDER BY created_at ASC, id ASC` + pageClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: list obligations: %w", err)
	}
	defer rows.Close()

	var out []*obligation.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/sqlite: scan obligation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CancelObligation marks an obligation CANCELED.
func (s *Store) CancelObligation(ctx context.Context, oblID id.ObligationID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledgerflow_obligations
		SET status = ?, updated_at = CASE WHEN status = ? THEN updated_at ELSE ? END
		WHERE id = ?`,
		string(obligation.StatusCanceled), string(obligation.StatusCanceled), toMillis(time.Now()), oblID,
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/sqlite: cancel obligation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ledgerflow.ErrObligationNotFound
	}
	return nil
}

// AdvanceOccurrence moves NextOccurrenceAt from from to to.
func (s *Store) AdvanceOccurrence(ctx context.Context, oblID id.ObligationID, from, to time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledgerflow_obligations
		SET next_occurrence_at = ?, updated_at = ?
		WHERE id = ? AND next_occurrence_at = ?`,
		toMillis(to), toMillis(time.Now()), oblID, toMillis(from),
	)
	if err != nil {
		return false, fmt.Errorf("ledgerflow/sqlite: advance occurrence: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports rows affected
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledgerflow_obligations WHERE id = ?`, oblID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledgerflow/sqlite: advance occurrence: %w", err)
	}
	if exists == 0 {
		return false, ledgerflow.ErrObligationNotFound
	}
	return false, nil
}

// DeleteObligation removes an obligation.
func (s *Store) DeleteObligation(ctx context.Context, oblID id.ObligationID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM ledgerflow_obligations WHERE id = ?`, oblID); err != nil {
		return fmt.Errorf("ledgerflow/sqlite: delete obligation: %w", err)
	}
	return nil
}

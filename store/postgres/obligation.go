package postgres

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

const obligationColumns = `id, owner_id, ledger_id, category_id, amount::text, kind, note,
	next_occurrence_at, interval_ms, status, created_at, updated_at`

func scanObligation(row scanner) (*obligation.Obligation, error) {
	var (
		o                    obligation.Obligation
		amount, kind, status string
	)
	if err := row.Scan(
		&o.ID, &o.OwnerID, &o.LedgerID, &o.CategoryID, &amount, &kind, &o.Note,
		&o.NextOccurrenceAt, &o.IntervalMs, &status, &o.CreatedAt, &o.UpdatedAt,
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
	o.NextOccurrenceAt = o.NextOccurrenceAt.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

// CreateObligation persists a new obligation.
func (s *Store) CreateObligation(ctx context.Context, o *obligation.Obligation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledgerflow_obligations (
			id, owner_id, ledger_id, category_id, amount, kind, note,
			next_occurrence_at, interval_ms, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.OwnerID, o.LedgerID, o.CategoryID, o.Amount.String(), string(o.Kind), o.Note,
		ms(o.NextOccurrenceAt), o.IntervalMs, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledgerflow.ErrObligationAlreadyExists
		}
		return fmt.Errorf("ledgerflow/postgres: create obligation: %w", err)
	}
	return nil
}

// GetObligation retrieves an obligation by ID.
func (s *Store) GetObligation(ctx context.Context, oblID id.ObligationID) (*obligation.Obligation, error) {
	o, err := scanObligation(s.pool.QueryRow(ctx,
		`SELECT `+obligationColumns+` FROM ledgerflow_obligations WHERE id = $1`, oblID))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrObligationNotFound
		}
		return nil, fmt.Errorf("ledgerflow/postgres: get obligation: %w", err)
	}
	return o, nil
}

// ListObligations returns obligations ordered by creation time.
func (s *Store) ListObligations(ctx context.Context, opts obligation.ListOpts) ([]*obligation.Obligation, error) {
	q := `SELECT ` + obligationColumns + ` FROM ledgerflow_obligations`
	var args []any
	if opts.Status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(opts.Status))
	}
	q += ` ORDER BY created_at ASC, id ASC` + pageClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/postgres: list obligations: %w", err)
	}
	defer rows.Close()

	var out []*obligation.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/postgres: scan obligation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CancelObligation marks an obligation CANCELED.
func (s *Store) CancelObligation(ctx context.Context, oblID id.ObligationID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ledgerflow_obligations
		SET status = $1,
		    updated_at = CASE WHEN status = $1 THEN updated_at ELSE NOW() END
		WHERE id = $2`,
		string(obligation.StatusCanceled), oblID,
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/postgres: cancel obligation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledgerflow.ErrObligationNotFound
	}
	return nil
}

// AdvanceOccurrence moves NextOccurrenceAt from from to to.
func (s *Store) AdvanceOccurrence(ctx context.Context, oblID id.ObligationID, from, to time.Time) (bool, error) {
	var (
		exists   bool
		advanced bool
	)
	err := s.pool.QueryRow(ctx, `
		WITH upd AS (
			UPDATE ledgerflow_obligations
			SET next_occurrence_at = $3, updated_at = NOW()
			WHERE id = $1 AND next_occurrence_at = $2
			RETURNING id
		)
		SELECT
			EXISTS (SELECT 1 FROM ledgerflow_obligations WHERE id = $1),
			EXISTS (SELECT 1 FROM upd)`,
		oblID, ms(from), ms(to),
	).Scan(&exists, &advanced)
	if err != nil {
		return false, fmt.Errorf("ledgerflow/postgres: advance occurrence: %w", err)
	}
	if !exists {
		return false, ledgerflow.ErrObligationNotFound
	}
	return advanced, nil
}

// DeleteObligation removes an obligation.
func (s *Store) DeleteObligation(ctx context.Context, oblID id.ObligationID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ledgerflow_obligations WHERE id = $1`, oblID); err != nil {
		return fmt.Errorf("ledgerflow/postgres: delete obligation: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/ledger"
)

const txnColumns = `id, ledger_id, category_id, obligation_id, occurrence_at, amount::text, kind, note,
	created_at, updated_at`

func scanTxn(row scanner) (*ledger.TransactionRecord, error) {
	var (
		t            ledger.TransactionRecord
		amount, kind string
	)
	if err := row.Scan(
		&t.ID, &t.LedgerID, &t.CategoryID, &t.ObligationID, &t.OccurrenceAt, &amount, &kind, &t.Note,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Amount = amt
	t.Kind = ledger.Kind(kind)
	t.OccurrenceAt = t.OccurrenceAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// RecordPosting inserts a transaction once per obligation occurrence and
// applies it to the aggregates in the same transaction. A concurrent
// duplicate loses on the (obligation_id, occurrence_at) unique key and reads
// the winner's row.
func (s *Store) RecordPosting(ctx context.Context, rec *ledger.TransactionRecord) (*ledger.TransactionRecord, bool, error) {
	var (
		stored  *ledger.TransactionRecord
		created bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO ledgerflow_transactions (
				id, ledger_id, category_id, obligation_id, occurrence_at, amount, kind, note,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
			ON CONFLICT (obligation_id, occurrence_at) DO NOTHING`,
			rec.ID, rec.LedgerID, rec.CategoryID, rec.ObligationID, ms(rec.OccurrenceAt),
			rec.Amount.String(), string(rec.Kind), rec.Note, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			stored, err = scanTxn(tx.QueryRow(ctx, `
				SELECT `+txnColumns+` FROM ledgerflow_transactions
				WHERE obligation_id = $1 AND occurrence_at = $2`,
				rec.ObligationID, ms(rec.OccurrenceAt)))
			return err
		}

		income, expense := decimal.Zero, decimal.Zero
		if rec.Kind == ledger.KindIncome {
			income = rec.Amount
		} else {
			expense = rec.Amount
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO ledgerflow_balances (ledger_id, income, expense)
			VALUES ($1, $2::numeric, $3::numeric)
			ON CONFLICT (ledger_id) DO UPDATE SET
				income = ledgerflow_balances.income + EXCLUDED.income,
				expense = ledgerflow_balances.expense + EXCLUDED.expense`,
			rec.LedgerID, income.String(), expense.String(),
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO ledgerflow_category_totals (ledger_id, category_id, total)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (ledger_id, category_id) DO UPDATE SET
				total = ledgerflow_category_totals.total + EXCLUDED.total`,
			rec.LedgerID, rec.CategoryID, rec.Signed().String(),
		); err != nil {
			return err
		}

		cp := *rec
		cp.OccurrenceAt = ms(rec.OccurrenceAt)
		stored, created = &cp, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("ledgerflow/postgres: record posting: %w", err)
	}
	return stored, created, nil
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*ledger.TransactionRecord, error) {
	t, err := scanTxn(s.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM ledgerflow_transactions WHERE id = $1`, txnID))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledgerflow/postgres: get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns the transactions of a ledger by occurrence.
func (s *Store) ListTransactions(ctx context.Context, ledgerID string) ([]*ledger.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+txnColumns+` FROM ledgerflow_transactions
		WHERE ledger_id = $1
		ORDER BY occurrence_at ASC, id ASC`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/postgres: list transactions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.TransactionRecord
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/postgres: scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetBalance returns the ledger aggregate.
func (s *Store) GetBalance(ctx context.Context, ledgerID string) (*ledger.Balance, error) {
	var inc, exp string
	err := s.pool.QueryRow(ctx,
		`SELECT income::text, expense::text FROM ledgerflow_balances WHERE ledger_id = $1`, ledgerID,
	).Scan(&inc, &exp)
	if err != nil {
		if isNoRows(err) {
			return &ledger.Balance{LedgerID: ledgerID}, nil
		}
		return nil, fmt.Errorf("ledgerflow/postgres: get balance: %w", err)
	}
	bal := &ledger.Balance{LedgerID: ledgerID}
	if bal.Income, err = decimal.NewFromString(inc); err != nil {
		return nil, fmt.Errorf("ledgerflow/postgres: parse income: %w", err)
	}
	if bal.Expense, err = decimal.NewFromString(exp); err != nil {
		return nil, fmt.Errorf("ledgerflow/postgres: parse expense: %w", err)
	}
	return bal, nil
}

// CategoryTotals returns the signed total per category.
func (s *Store) CategoryTotals(ctx context.Context, ledgerID string) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category_id, total::text FROM ledgerflow_category_totals WHERE ledger_id = $1`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/postgres: category totals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var cat, total string
		if err := rows.Scan(&cat, &total); err != nil {
			return nil, fmt.Errorf("ledgerflow/postgres: scan category total: %w", err)
		}
		d, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/postgres: parse category total: %w", err)
		}
		out[cat] = d
	}
	return out, rows.Err()
}

// SumExpenses totals expenses with occurrence in [from, to).
func (s *Store) SumExpenses(ctx context.Context, ledgerID string, from, to time.Time) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM ledgerflow_transactions
		WHERE ledger_id = $1 AND kind = $2 AND occurrence_at >= $3 AND occurrence_at < $4`,
		ledgerID, string(ledger.KindExpense), ms(from), ms(to),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledgerflow/postgres: sum expenses: %w", err)
	}
	return decimal.NewFromString(total)
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/ledger"
)

const txnColumns = `id, ledger_id, category_id, obligation_id, occurrence_at, amount, kind, note,
	created_at, updated_at`

func scanTxn(row scanner) (*ledger.TransactionRecord, error) {
	var (
		t                               ledger.TransactionRecord
		amount, kind                    string
		occurredAt, createdAt, updateAt int64
	)
	if err := row.Scan(
		&t.ID, &t.LedgerID, &t.CategoryID, &t.ObligationID, &occurredAt, &amount, &kind, &t.Note,
		&createdAt, &updateAt,
	); err != nil {
		return nil, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Amount = amt
	t.Kind = ledger.Kind(kind)
	t.OccurrenceAt = fromMillis(occurredAt)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updateAt)
	return &t, nil
}

// RecordPosting inserts a transaction once per obligation occurrence and
// applies it to the aggregates in the same transaction.
func (s *Store) RecordPosting(ctx context.Context, rec *ledger.TransactionRecord) (*ledger.TransactionRecord, bool, error) {
	var (
		stored  *ledger.TransactionRecord
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanTxn(tx.QueryRowContext(ctx, `
			SELECT `+txnColumns+` FROM ledgerflow_transactions
			WHERE obligation_id = ? AND occurrence_at = ?`,
			rec.ObligationID, toMillis(rec.OccurrenceAt)))
		switch {
		case err == nil:
			stored = existing
			return nil
		case !isNoRows(err):
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledgerflow_transactions (`+txnColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.LedgerID, rec.CategoryID, rec.ObligationID, toMillis(rec.OccurrenceAt),
			rec.Amount.String(), string(rec.Kind), rec.Note, toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
		); err != nil {
			return err
		}
		if err := applyBalance(ctx, tx, rec); err != nil {
			return err
		}
		if err := applyCategory(ctx, tx, rec); err != nil {
			return err
		}
		cp := *rec
		stored, created = &cp, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("ledgerflow/sqlite: record posting: %w", err)
	}
	return stored, created, nil
}

func applyBalance(ctx context.Context, tx *sql.Tx, rec *ledger.TransactionRecord) error {
	income, expense := decimal.Zero, decimal.Zero
	var inc, exp string
	err := tx.QueryRowContext(ctx,
		`SELECT income, expense FROM ledgerflow_balances WHERE ledger_id = ?`, rec.LedgerID,
	).Scan(&inc, &exp)
	switch {
	case err == nil:
		if income, err = decimal.NewFromString(inc); err != nil {
			return err
		}
		if expense, err = decimal.NewFromString(exp); err != nil {
			return err
		}
	case !isNoRows(err):
		return err
	}

	switch rec.Kind {
	case ledger.KindIncome:
		income = income.Add(rec.Amount)
	case ledger.KindExpense:
		expense = expense.Add(rec.Amount)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledgerflow_balances (ledger_id, income, expense) VALUES (?, ?, ?)
		ON CONFLICT (ledger_id) DO UPDATE SET income = excluded.income, expense = excluded.expense`,
		rec.LedgerID, income.String(), expense.String(),
	)
	return err
}

func applyCategory(ctx context.Context, tx *sql.Tx, rec *ledger.TransactionRecord) error {
	total := decimal.Zero
	var cur string
	err := tx.QueryRowContext(ctx,
		`SELECT total FROM ledgerflow_category_totals WHERE ledger_id = ? AND category_id = ?`,
		rec.LedgerID, rec.CategoryID,
	).Scan(&cur)
	switch {
	case err == nil:
		if total, err = decimal.NewFromString(cur); err != nil {
			return err
		}
	case !isNoRows(err):
		return err
	}

	total = total.Add(rec.Signed())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledgerflow_category_totals (ledger_id, category_id, total) VALUES (?, ?, ?)
		ON CONFLICT (ledger_id, category_id) DO UPDATE SET total = excluded.total`,
		rec.LedgerID, rec.CategoryID, total.String(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*ledger.TransactionRecord, error) {
	t, err := scanTxn(s.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM ledgerflow_transactions WHERE id = ?`, txnID))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns the transactions of a ledger by occurrence.
func (s *Store) ListTransactions(ctx context.Context, ledgerID string) ([]*ledger.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txnColumns+` FROM ledgerflow_transactions
		WHERE ledger_id = ?
		ORDER BY occurrence_at ASC, id ASC`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: list transactions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.TransactionRecord
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/sqlite: scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetBalance returns the ledger aggregate.
func (s *Store) GetBalance(ctx context.Context, ledgerID string) (*ledger.Balance, error) {
	bal := &ledger.Balance{LedgerID: ledgerID}
	var inc, exp string
	err := s.db.QueryRowContext(ctx,
		`SELECT income, expense FROM ledgerflow_balances WHERE ledger_id = ?`, ledgerID,
	).Scan(&inc, &exp)
	if err != nil {
		if isNoRows(err) {
			return bal, nil
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: get balance: %w", err)
	}
	if bal.Income, err = decimal.NewFromString(inc); err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: parse income: %w", err)
	}
	if bal.Expense, err = decimal.NewFromString(exp); err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: parse expense: %w", err)
	}
	return bal, nil
}

// CategoryTotals returns the signed total per category.
func (s *Store) CategoryTotals(ctx context.Context, ledgerID string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id, total FROM ledgerflow_category_totals WHERE ledger_id = ?`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: category totals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var cat, total string
		if err := rows.Scan(&cat, &total); err != nil {
			return nil, fmt.Errorf("ledgerflow/sqlite: scan category total: %w", err)
		}
		d, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/sqlite: parse category total: %w", err)
		}
		out[cat] = d
	}
	return out, rows.Err()
}

// SumExpenses totals expenses with occurrence in [from, to). Amounts are
// summed as decimals rather than by SQLite's floating point SUM.
func (s *Store) SumExpenses(ctx context.Context, ledgerID string, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amount FROM ledgerflow_transactions
		WHERE ledger_id = ? AND kind = ? AND occurrence_at >= ? AND occurrence_at < ?`,
		ledgerID, string(ledger.KindExpense), toMillis(from), toMillis(to))
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledgerflow/sqlite: sum expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("ledgerflow/sqlite: scan amount: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("ledgerflow/sqlite: parse amount: %w", err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

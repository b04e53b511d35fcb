package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/ledger"
)

func postingKey(oblID id.ObligationID, occ time.Time) string {
	return fmt.Sprintf("%s\x00%d", oblID, occ.UnixMilli())
}

func cloneTxn(t *ledger.TransactionRecord) *ledger.TransactionRecord {
	cp := *t
	return &cp
}

// RecordPosting inserts a transaction once per obligation occurrence and
// applies it to the aggregates.
func (m *Store) RecordPosting(_ context.Context, rec *ledger.TransactionRecord) (*ledger.TransactionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := postingKey(rec.ObligationID, rec.OccurrenceAt)
	if txnID, ok := m.postings[pk]; ok {
		return cloneTxn(m.txns[txnID]), false, nil
	}

	m.txns[rec.ID.String()] = cloneTxn(rec)
	m.postings[pk] = rec.ID.String()

	bal, ok := m.balances[rec.LedgerID]
	if !ok {
		bal = &ledger.Balance{LedgerID: rec.LedgerID}
		m.balances[rec.LedgerID] = bal
	}
	switch rec.Kind {
	case ledger.KindIncome:
		bal.Income = bal.Income.Add(rec.Amount)
	case ledger.KindExpense:
		bal.Expense = bal.Expense.Add(rec.Amount)
	}

	cats, ok := m.categories[rec.LedgerID]
	if !ok {
		cats = make(map[string]decimal.Decimal)
		m.categories[rec.LedgerID] = cats
	}
	cats[rec.CategoryID] = cats[rec.CategoryID].Add(rec.Signed())

	return cloneTxn(rec), true, nil
}

// GetTransaction retrieves a transaction by ID.
func (m *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*ledger.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.txns[txnID.String()]
	if !ok {
		return nil, ledgerflow.ErrTransactionNotFound
	}
	return cloneTxn(t), nil
}

// ListTransactions returns the transactions of a ledger by occurrence.
func (m *Store) ListTransactions(_ context.Context, ledgerID string) ([]*ledger.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ledger.TransactionRecord
	for _, t := range m.txns {
		if t.LedgerID == ledgerID {
			result = append(result, cloneTxn(t))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].OccurrenceAt.Before(result[k].OccurrenceAt)
	})
	return result, nil
}

// GetBalance returns the ledger aggregate.
func (m *Store) GetBalance(_ context.Context, ledgerID string) (*ledger.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bal, ok := m.balances[ledgerID]
	if !ok {
		return &ledger.Balance{LedgerID: ledgerID}, nil
	}
	cp := *bal
	return &cp, nil
}

// CategoryTotals returns the signed total per category.
func (m *Store) CategoryTotals(_ context.Context, ledgerID string) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(m.categories[ledgerID]))
	for k, v := range m.categories[ledgerID] {
		out[k] = v
	}
	return out, nil
}

// SumExpenses totals expenses with occurrence in [from, to).
func (m *Store) SumExpenses(_ context.Context, ledgerID string, from, to time.Time) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, t := range m.txns {
		if t.LedgerID != ledgerID || t.Kind != ledger.KindExpense {
			continue
		}
		if t.OccurrenceAt.Before(from) || !t.OccurrenceAt.Before(to) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}

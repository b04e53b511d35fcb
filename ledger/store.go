package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow/id"
)

// Store defines the persistence contract for transactions and aggregates.
type Store interface {
	// RecordPosting inserts rec and applies it to the ledger balance and
	// category totals in one unit. If a record for the same
	// (ObligationID, OccurrenceAt) exists, it is returned with created
	// false and nothing is applied.
	RecordPosting(ctx context.Context, rec *TransactionRecord) (stored *TransactionRecord, created bool, err error)

	// GetTransaction retrieves a transaction by ID.
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*TransactionRecord, error)

	// ListTransactions returns the transactions of a ledger ordered by
	// occurrence instant.
	ListTransactions(ctx context.Context, ledgerID string) ([]*TransactionRecord, error)

	// GetBalance returns the ledger aggregate. A ledger without postings
	// has a zero balance.
	GetBalance(ctx context.Context, ledgerID string) (*Balance, error)

	// CategoryTotals returns the signed total per category of a ledger.
	CategoryTotals(ctx context.Context, ledgerID string) (map[string]decimal.Decimal, error)

	// SumExpenses totals expense amounts with occurrence in [from, to).
	SumExpenses(ctx context.Context, ledgerID string, from, to time.Time) (decimal.Decimal, error)
}

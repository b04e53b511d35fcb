// Package ledger is the posting service that applies recurring obligation
// occurrences to a shared ledger. Postings are keyed by
// (obligation ID, occurrence instant), so replaying a posting returns the
// original record instead of applying the amount twice.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
)

// Kind is the direction of a transaction.
type Kind string

const (
	// KindIncome credits the ledger.
	KindIncome Kind = "INCOME"
	// KindExpense debits the ledger.
	KindExpense Kind = "EXPENSE"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// TransactionRecord is a posted ledger transaction.
type TransactionRecord struct {
	ledgerflow.Entity

	ID           id.TransactionID `json:"id"`
	LedgerID     string           `json:"ledger_id"`
	CategoryID   string           `json:"category_id"`
	ObligationID id.ObligationID  `json:"obligation_id"`
	OccurrenceAt time.Time        `json:"occurrence_at"`
	Amount       decimal.Decimal  `json:"amount"`
	Kind         Kind             `json:"kind"`
	Note         string           `json:"note,omitempty"`
}

// Signed returns the amount with expenses negated.
func (t *TransactionRecord) Signed() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// PostRequest asks the ledger to post one occurrence of an obligation.
type PostRequest struct {
	ObligationID id.ObligationID
	OccurrenceAt time.Time
	Amount       decimal.Decimal
	Kind         Kind
	CategoryID   string
	LedgerID     string
	Note         string
}

// Validate checks the request fields.
func (r PostRequest) Validate() error {
	switch {
	case r.ObligationID.IsNil():
		return fmt.Errorf("%w: missing obligation id", ledgerflow.ErrInvalidPosting)
	case r.LedgerID == "":
		return fmt.Errorf("%w: missing ledger id", ledgerflow.ErrInvalidPosting)
	case r.OccurrenceAt.IsZero():
		return fmt.Errorf("%w: missing occurrence instant", ledgerflow.ErrInvalidPosting)
	case !r.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive, got %s", ledgerflow.ErrInvalidPosting, r.Amount)
	case !r.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ledgerflow.ErrInvalidPosting, r.Kind)
	}
	return nil
}

// Poster posts ledger transactions. Implementations must be idempotent per
// (ObligationID, OccurrenceAt) and report whether the call created the
// record.
type Poster interface {
	PostLedgerTransaction(ctx context.Context, req PostRequest) (rec *TransactionRecord, created bool, err error)
}

// Balance is the running aggregate of a ledger.
type Balance struct {
	LedgerID string          `json:"ledger_id"`
	Income   decimal.Decimal `json:"income"`
	Expense  decimal.Decimal `json:"expense"`
}

// Net returns income minus expense.
func (b *Balance) Net() decimal.Decimal {
	return b.Income.Sub(b.Expense)
}

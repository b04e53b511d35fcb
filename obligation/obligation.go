// Package obligation defines recurring obligations and the workflow that
// posts them to the ledger once per interval until the owner cancels.
package obligation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/ledger"
)

// Status is the user-controlled state of an obligation.
type Status string

const (
	// StatusActive means the obligation is being posted.
	StatusActive Status = "ACTIVE"
	// StatusCanceled means the owner canceled it; the workflow deletes the
	// row once it observes this.
	StatusCanceled Status = "CANCELED"
	// StatusNotFound is reported for an obligation without a row.
	StatusNotFound Status = "NOT_FOUND"
)

// Obligation is a recurring income or expense posted to a shared ledger.
type Obligation struct {
	ledgerflow.Entity

	ID               id.ObligationID `json:"id"`
	OwnerID          string          `json:"owner_id"`
	LedgerID         string          `json:"ledger_id"`
	CategoryID       string          `json:"category_id"`
	Amount           decimal.Decimal `json:"amount"`
	Kind             ledger.Kind     `json:"kind"`
	Note             string          `json:"note,omitempty"`
	NextOccurrenceAt time.Time       `json:"next_occurrence_at"`
	IntervalMs       int64           `json:"interval_ms"`
	Status           Status          `json:"status"`
}

// New returns an ACTIVE obligation whose first occurrence is at first.
func New(
	ownerID, ledgerID, categoryID string,
	amount decimal.Decimal,
	kind ledger.Kind,
	first time.Time,
	interval time.Duration,
	note string,
) *Obligation {
	return &Obligation{
		Entity:           ledgerflow.NewEntity(),
		ID:               id.NewObligationID(),
		OwnerID:          ownerID,
		LedgerID:         ledgerID,
		CategoryID:       categoryID,
		Amount:           amount,
		Kind:             kind,
		Note:             note,
		NextOccurrenceAt: first.UTC().Truncate(time.Millisecond),
		IntervalMs:       interval.Milliseconds(),
		Status:           StatusActive,
	}
}

// Interval returns the spacing between occurrences.
func (o *Obligation) Interval() time.Duration {
	return time.Duration(o.IntervalMs) * time.Millisecond
}

// Validate checks the fields a workflow relies on.
func (o *Obligation) Validate() error {
	switch {
	case o.ID.IsNil():
		return fmt.Errorf("%w: missing id", ledgerflow.ErrInvalidObligation)
	case o.LedgerID == "":
		return fmt.Errorf("%w: missing ledger id", ledgerflow.ErrInvalidObligation)
	case o.IntervalMs <= 0:
		return fmt.Errorf("%w: interval must be positive, got %dms", ledgerflow.ErrInvalidObligation, o.IntervalMs)
	case !o.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive, got %s", ledgerflow.ErrInvalidObligation, o.Amount)
	case !o.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ledgerflow.ErrInvalidObligation, o.Kind)
	case o.NextOccurrenceAt.IsZero():
		return fmt.Errorf("%w: missing next occurrence", ledgerflow.ErrInvalidObligation)
	}
	return nil
}

// PostRequest returns the ledger request for the occurrence at occ.
func (o *Obligation) PostRequest(occ time.Time) ledger.PostRequest {
	return ledger.PostRequest{
		ObligationID: o.ID,
		OccurrenceAt: occ,
		Amount:       o.Amount,
		Kind:         o.Kind,
		CategoryID:   o.CategoryID,
		LedgerID:     o.LedgerID,
		Note:         o.Note,
	}
}

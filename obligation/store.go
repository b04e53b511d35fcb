package obligation

import (
	"context"
	"errors"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
)

// ListOpts controls obligation list queries.
type ListOpts struct {
	// Status filters by status. Empty means all.
	Status Status
	// Limit is the maximum number of obligations to return. Zero means no limit.
	Limit int
	// Offset is the number of obligations to skip.
	Offset int
}

// Store defines the persistence contract for obligations.
type Store interface {
	// CreateObligation persists a new obligation.
	CreateObligation(ctx context.Context, o *Obligation) error

	// GetObligation retrieves an obligation by ID.
	GetObligation(ctx context.Context, oblID id.ObligationID) (*Obligation, error)

	// ListObligations returns obligations ordered by creation time.
	ListObligations(ctx context.Context, opts ListOpts) ([]*Obligation, error)

	// CancelObligation moves an ACTIVE obligation to CANCELED. Canceling a
	// canceled obligation is a no-op.
	CancelObligation(ctx context.Context, oblID id.ObligationID) error

	// AdvanceOccurrence sets NextOccurrenceAt to to if it currently equals
	// from, and reports whether the row changed.
	AdvanceOccurrence(ctx context.Context, oblID id.ObligationID, from, to time.Time) (bool, error)

	// DeleteObligation removes the row. Deleting a missing row is a no-op.
	DeleteObligation(ctx context.Context, oblID id.ObligationID) error
}

// ReadStatus returns the status of an obligation, mapping a missing row to
// StatusNotFound.
func ReadStatus(ctx context.Context, s Store, oblID id.ObligationID) (Status, error) {
	o, err := s.GetObligation(ctx, oblID)
	if errors.Is(err, ledgerflow.ErrObligationNotFound) {
		return StatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

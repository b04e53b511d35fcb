package invitation

import (
	"context"
	"errors"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
)

// Store defines the persistence contract for invitations.
type Store interface {
	// CreateInvitation persists a PENDING invitation. It returns
	// ledgerflow.ErrInvitationExists if a live invitation exists for the
	// same ledger and email.
	CreateInvitation(ctx context.Context, inv *Invitation) error

	// GetInvitation retrieves an invitation by ID.
	GetInvitation(ctx context.Context, invID id.InvitationID) (*Invitation, error)

	// FindInvitation returns the most recent invitation for a ledger and
	// email.
	FindInvitation(ctx context.Context, ledgerID, email string) (*Invitation, error)

	// AcceptInvitation moves a PENDING invitation to ACCEPTED. Any other
	// status yields ledgerflow.ErrInvalidTransition.
	AcceptInvitation(ctx context.Context, invID id.InvitationID, at time.Time) error

	// MarkReminded records when the reminder went out.
	MarkReminded(ctx context.Context, invID id.InvitationID, at time.Time) error

	// DeclineIfPending moves a PENDING invitation to DECLINED and reports
	// whether it did. Other statuses are left untouched.
	DeclineIfPending(ctx context.Context, invID id.InvitationID, at time.Time) (bool, error)
}

// ReadStatus returns the status of the latest invitation for a ledger and
// email, mapping a missing row to StatusNotFound.
func ReadStatus(ctx context.Context, s Store, ledgerID, email string) (Status, error) {
	inv, err := s.FindInvitation(ctx, ledgerID, NormalizeEmail(email))
	if errors.Is(err, ledgerflow.ErrInvitationNotFound) {
		return StatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return inv.Status, nil
}

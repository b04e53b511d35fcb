package memory

import (
	"context"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
)

func cloneInvitation(inv *invitation.Invitation) *invitation.Invitation {
	cp := *inv
	if inv.RemindedAt != nil {
		t := *inv.RemindedAt
		cp.RemindedAt = &t
	}
	if inv.DecidedAt != nil {
		t := *inv.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}

// CreateInvitation persists a PENDING invitation.
func (m *Store) CreateInvitation(_ context.Context, inv *invitation.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.invitations[inv.ID.String()]; exists {
		return ledgerflow.ErrInvitationExists
	}
	email := invitation.NormalizeEmail(inv.Email)
	for _, other := range m.invitations {
		if other.LedgerID == inv.LedgerID && other.Email == email && other.Status.Live() {
			return ledgerflow.ErrInvitationExists
		}
	}
	cp := cloneInvitation(inv)
	cp.Email = email
	m.invitations[inv.ID.String()] = cp
	return nil
}

// GetInvitation retrieves an invitation by ID.
func (m *Store) GetInvitation(_ context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invitations[invID.String()]
	if !ok {
		return nil, ledgerflow.ErrInvitationNotFound
	}
	return cloneInvitation(inv), nil
}

// FindInvitation returns the most recently sent invitation for a ledger and
// email.
func (m *Store) FindInvitation(_ context.Context, ledgerID, email string) (*invitation.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = invitation.NormalizeEmail(email)
	var latest *invitation.Invitation
	for _, inv := range m.invitations {
		if inv.LedgerID != ledgerID || inv.Email != email {
			continue
		}
		if latest == nil || inv.SentAt.After(latest.SentAt) {
			latest = inv
		}
	}
	if latest == nil {
		return nil, ledgerflow.ErrInvitationNotFound
	}
	return cloneInvitation(latest), nil
}

// AcceptInvitation moves a PENDING invitation to ACCEPTED.
func (m *Store) AcceptInvitation(_ context.Context, invID id.InvitationID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[invID.String()]
	if !ok {
		return ledgerflow.ErrInvitationNotFound
	}
	if inv.Status != invitation.StatusPending {
		return ledgerflow.ErrInvalidTransition
	}
	inv.Status = invitation.StatusAccepted
	at = at.UTC()
	inv.DecidedAt = &at
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkReminded records the reminder time.
func (m *Store) MarkReminded(_ context.Context, invID id.InvitationID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[invID.String()]
	if !ok {
		return ledgerflow.ErrInvitationNotFound
	}
	at = at.UTC()
	inv.RemindedAt = &at
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// DeclineIfPending moves a PENDING invitation to DECLINED.
func (m *Store) DeclineIfPending(_ context.Context, invID id.InvitationID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[invID.String()]
	if !ok {
		return false, ledgerflow.ErrInvitationNotFound
	}
	if inv.Status != invitation.StatusPending {
		return false, nil
	}
	inv.Status = invitation.StatusDeclined
	at = at.UTC()
	inv.DecidedAt = &at
	inv.UpdatedAt = time.Now().UTC()
	return true, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
)

const invitationColumns = `id, ledger_id, email, inviter_id, target_user_id, status,
	sent_at, reminded_at, decided_at, created_at, updated_at`

func scanInvitation(row scanner) (*invitation.Invitation, error) {
	var (
		inv                   invitation.Invitation
		status                string
		remindedAt, decidedAt *time.Time
	)
	if err := row.Scan(
		&inv.ID, &inv.LedgerID, &inv.Email, &inv.InviterID, &inv.TargetUserID, &status,
		&inv.SentAt, &remindedAt, &decidedAt, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inv.Status = invitation.Status(status)
	inv.SentAt = inv.SentAt.UTC()
	inv.RemindedAt = utcPtr(remindedAt)
	inv.DecidedAt = utcPtr(decidedAt)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

// CreateInvitation persists a PENDING invitation.
func (s *Store) CreateInvitation(ctx context.Context, inv *invitation.Invitation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledgerflow_invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.LedgerID, invitation.NormalizeEmail(inv.Email), inv.InviterID, inv.TargetUserID,
		string(inv.Status), ms(inv.SentAt), inv.RemindedAt, inv.DecidedAt, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledgerflow.ErrInvitationExists
		}
		return fmt.Errorf("ledgerflow/postgres: create invitation: %w", err)
	}
	return nil
}

// GetInvitation retrieves an invitation by ID.
func (s *Store) GetInvitation(ctx context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM ledgerflow_invitations WHERE id = $1`, invID))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("ledgerflow/postgres: get invitation: %w", err)
	}
	return inv, nil
}

// FindInvitation returns the most recently sent invitation for a ledger and
// email.
func (s *Store) FindInvitation(ctx context.Context, ledgerID, email string) (*invitation.Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+` FROM ledgerflow_invitations
		WHERE ledger_id = $1 AND email = $2
		ORDER BY sent_at DESC, created_at DESC
		LIMIT 1`,
		ledgerID, invitation.NormalizeEmail(email)))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("ledgerflow/postgres: find invitation: %w", err)
	}
	return inv, nil
}

// AcceptInvitation moves a PENDING invitation to ACCEPTED.
func (s *Store) AcceptInvitation(ctx context.Context, invID id.InvitationID, at time.Time) error {
	changed, err := s.decide(ctx, invID, invitation.StatusAccepted, at)
	if err != nil {
		return err
	}
	if !changed {
		return ledgerflow.ErrInvalidTransition
	}
	return nil
}

// MarkReminded records the reminder time.
func (s *Store) MarkReminded(ctx context.Context, invID id.InvitationID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ledgerflow_invitations SET reminded_at = $1, updated_at = NOW() WHERE id = $2`,
		ms(at), invID,
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/postgres: mark reminded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledgerflow.ErrInvitationNotFound
	}
	return nil
}

// DeclineIfPending moves a PENDING invitation to DECLINED.
func (s *Store) DeclineIfPending(ctx context.Context, invID id.InvitationID, at time.Time) (bool, error) {
	return s.decide(ctx, invID, invitation.StatusDeclined, at)
}

// decide moves a PENDING invitation to status in one statement and reports
// whether it did.
func (s *Store) decide(ctx context.Context, invID id.InvitationID, status invitation.Status, at time.Time) (bool, error) {
	var exists, changed bool
	err := s.pool.QueryRow(ctx, `
		WITH upd AS (
			UPDATE ledgerflow_invitations
			SET status = $2, decided_at = $3, updated_at = NOW()
			WHERE id = $1 AND status = 'PENDING'
			RETURNING id
		)
		SELECT
			EXISTS (SELECT 1 FROM ledgerflow_invitations WHERE id = $1),
			EXISTS (SELECT 1 FROM upd)`,
		invID, string(status), ms(at),
	).Scan(&exists, &changed)
	if err != nil {
		return false, fmt.Errorf("ledgerflow/postgres: decide invitation: %w", err)
	}
	if !exists {
		return false, ledgerflow.ErrInvitationNotFound
	}
	return changed, nil
}

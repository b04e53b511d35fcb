package sqlite

import (
	"context"
	"database/sql"
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
		inv                          invitation.Invitation
		status                       string
		sentAt, createdAt, updatedAt int64
		remindedAt, decidedAt        sql.NullInt64
	)
	if err := row.Scan(
		&inv.ID, &inv.LedgerID, &inv.Email, &inv.InviterID, &inv.TargetUserID, &status,
		&sentAt, &remindedAt, &decidedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	inv.Status = invitation.Status(status)
	inv.SentAt = fromMillis(sentAt)
	inv.RemindedAt = fromNullMillis(remindedAt)
	inv.DecidedAt = fromNullMillis(decidedAt)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return &inv, nil
}

// CreateInvitation persists a PENDING invitation. The partial unique index
// on live invitations rejects a second one for the same ledger and email.
func (s *Store) CreateInvitation(ctx context.Context, inv *invitation.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledgerflow_invitations (`+invitationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.LedgerID, invitation.NormalizeEmail(inv.Email), inv.InviterID, inv.TargetUserID,
		string(inv.Status), toMillis(inv.SentAt), nullMillis(inv.RemindedAt), nullMillis(inv.DecidedAt),
		toMillis(inv.CreatedAt), toMillis(inv.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledgerflow.ErrInvitationExists
		}
		return fmt.Errorf("ledgerflow/sqlite: create invitation: %w", err)
	}
	return nil
}

// GetInvitation retrieves an invitation by ID.
func (s *Store) GetInvitation(ctx context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM ledgerflow_invitations WHERE id = ?`, invID)
	inv, err := scanInvitation(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: get invitation: %w", err)
	}
	return inv, nil
}

// FindInvitation returns the most recently sent invitation for a ledger and
// email.
func (s *Store) FindInvitation(ctx context.Context, ledgerID, email string) (*invitation.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM ledgerflow_invitations
		WHERE ledger_id = ? AND email = ?
		ORDER BY sent_at DESC, created_at DESC
		LIMIT 1`,
		ledgerID, invitation.NormalizeEmail(email))
	inv, err := scanInvitation(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerflow.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("ledgerflow/sqlite: find invitation: %w", err)
	}
	return inv, nil
}

// AcceptInvitation moves a PENDING invitation to ACCEPTED.
func (s *Store) AcceptInvitation(ctx context.Context, invID id.InvitationID, at time.Time) error {
	changed, err := s.decide(ctx, invID, invitation.StatusAccepted, at)
	if err != nil {
		return fmt.Errorf("ledgerflow/sqlite: accept invitation: %w", err)
	}
	if !changed {
		return ledgerflow.ErrInvalidTransition
	}
	return nil
}

// MarkReminded records the reminder time.
func (s *Store) MarkReminded(ctx context.Context, invID id.InvitationID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledgerflow_invitations SET reminded_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(time.Now()), invID,
	)
	if err != nil {
		return fmt.Errorf("ledgerflow/sqlite: mark reminded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ledgerflow.ErrInvitationNotFound
	}
	return nil
}

// DeclineIfPending moves a PENDING invitation to DECLINED.
func (s *Store) DeclineIfPending(ctx context.Context, invID id.InvitationID, at time.Time) (bool, error) {
	changed, err := s.decide(ctx, invID, invitation.StatusDeclined, at)
	if err != nil {
		return false, fmt.Errorf("ledgerflow/sqlite: decline invitation: %w", err)
	}
	return changed, nil
}

// decide moves a PENDING invitation to status. It reports false when the
// invitation exists but is no longer pending.
func (s *Store) decide(ctx context.Context, invID id.InvitationID, status invitation.Status, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledgerflow_invitations
		SET status = ?, decided_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), toMillis(at), toMillis(time.Now()), invID, string(invitation.StatusPending),
	)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 { //nolint:errcheck // sqlite always reports rows affected
		return true, nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledgerflow_invitations WHERE id = ?`, invID).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ledgerflow.ErrInvitationNotFound
	}
	return false, nil
}

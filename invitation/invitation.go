// Package invitation drives ledger invitations from send through reminder
// to auto-decline.
package invitation

import (
	"strings"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
)

// Status is the state of an invitation. It only moves from PENDING to
// ACCEPTED (by the invitee) or to DECLINED (by the lifecycle workflow).
type Status string

const (
	// StatusPending is an invitation that has not been answered yet.
	StatusPending Status = "PENDING"
	// StatusAccepted is an invitation the invitee accepted.
	StatusAccepted Status = "ACCEPTED"
	// StatusDeclined is an invitation the lifecycle declined after the
	// decision delay.
	StatusDeclined Status = "DECLINED"
	// StatusNotFound is reported when no invitation exists.
	StatusNotFound Status = "NOT_FOUND"
)

// Live reports whether the status blocks a new invitation for the same
// ledger and email.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusAccepted
}

// Invitation invites an email address to a shared ledger.
type Invitation struct {
	ledgerflow.Entity

	ID           id.InvitationID `json:"id"`
	LedgerID     string          `json:"ledger_id"`
	Email        string          `json:"email"`
	InviterID    string          `json:"inviter_id"`
	TargetUserID string          `json:"target_user_id,omitempty"`
	Status       Status          `json:"status"`
	SentAt       time.Time       `json:"sent_at"`
	RemindedAt   *time.Time      `json:"reminded_at,omitempty"`
	DecidedAt    *time.Time      `json:"decided_at,omitempty"`
}

// NormalizeEmail lowercases and trims an address so (ledger, email)
// identity is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package ledgerflow

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("ledgerflow: no store configured")
	ErrMigrationFailed = errors.New("ledgerflow: migration failed")

	// Not found errors.
	ErrRunNotFound         = errors.New("ledgerflow: run not found")
	ErrWorkflowNotFound    = errors.New("ledgerflow: workflow not registered")
	ErrObligationNotFound  = errors.New("ledgerflow: obligation not found")
	ErrInvitationNotFound  = errors.New("ledgerflow: invitation not found")
	ErrTransactionNotFound = errors.New("ledgerflow: transaction not found")

	// Conflict errors.
	ErrRunAlreadyExists        = errors.New("ledgerflow: run already exists")
	ErrObligationAlreadyExists = errors.New("ledgerflow: obligation already exists")
	ErrInvitationExists        = errors.New("ledgerflow: live invitation already exists")

	// State errors.
	ErrInvalidTransition = errors.New("ledgerflow: invalid state transition")
	ErrInvalidPayload    = errors.New("ledgerflow: invalid workflow payload")
	ErrInvalidObligation = errors.New("ledgerflow: invalid obligation")
	ErrInvalidPosting    = errors.New("ledgerflow: invalid ledger posting")
	ErrEngineStopped     = errors.New("ledgerflow: engine stopped")
)

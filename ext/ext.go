package ext

import (
	"context"
	"time"

	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called when a workflow run is created.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, r *workflow.Run) error
}

// WorkflowStepCompleted is called after a workflow step is checkpointed.
type WorkflowStepCompleted interface {
	OnWorkflowStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error
}

// WorkflowStepFailed is called when a workflow step fails.
type WorkflowStepFailed interface {
	OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, err error) error
}

// WorkflowSuspended is called when a run starts waiting for a deadline.
type WorkflowSuspended interface {
	OnWorkflowSuspended(ctx context.Context, r *workflow.Run, until time.Time) error
}

// WorkflowCompleted is called after a workflow run finishes successfully.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// WorkflowFailed is called when a workflow run fails permanently.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, r *workflow.Run, err error) error
}

// ──────────────────────────────────────────────────
// Obligation hooks
// ──────────────────────────────────────────────────

// ObligationCreated is called after an obligation is persisted.
type ObligationCreated interface {
	OnObligationCreated(ctx context.Context, o *obligation.Obligation) error
}

// OccurrencePosted is called after an occurrence is posted to the ledger.
type OccurrencePosted interface {
	OnOccurrencePosted(ctx context.Context, o *obligation.Obligation, rec *ledger.TransactionRecord) error
}

// ObligationCanceled is called when the owner cancels an obligation.
type ObligationCanceled interface {
	OnObligationCanceled(ctx context.Context, oblID id.ObligationID) error
}

// ObligationDeleted is called after the workflow removes a canceled
// obligation.
type ObligationDeleted interface {
	OnObligationDeleted(ctx context.Context, oblID id.ObligationID) error
}

// ──────────────────────────────────────────────────
// Invitation hooks
// ──────────────────────────────────────────────────

// InvitationSent is called after an invitation is created and mailed.
type InvitationSent interface {
	OnInvitationSent(ctx context.Context, inv *invitation.Invitation) error
}

// InvitationReminded is called after the reminder goes out.
type InvitationReminded interface {
	OnInvitationReminded(ctx context.Context, inv *invitation.Invitation) error
}

// InvitationAccepted is called when the invitee accepts.
type InvitationAccepted interface {
	OnInvitationAccepted(ctx context.Context, inv *invitation.Invitation) error
}

// InvitationDeclined is called when a pending invitation is auto-declined.
type InvitationDeclined interface {
	OnInvitationDeclined(ctx context.Context, inv *invitation.Invitation) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// CronFired is called after a maintenance job runs.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

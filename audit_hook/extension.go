package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow/ext"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.WorkflowStarted    = (*Extension)(nil)
	_ ext.WorkflowStepFailed = (*Extension)(nil)
	_ ext.WorkflowCompleted  = (*Extension)(nil)
	_ ext.WorkflowFailed     = (*Extension)(nil)
	_ ext.ObligationCreated  = (*Extension)(nil)
	_ ext.OccurrencePosted   = (*Extension)(nil)
	_ ext.ObligationCanceled = (*Extension)(nil)
	_ ext.ObligationDeleted  = (*Extension)(nil)
	_ ext.InvitationSent     = (*Extension)(nil)
	_ ext.InvitationReminded = (*Extension)(nil)
	_ ext.InvitationAccepted = (*Extension)(nil)
	_ ext.InvitationDeclined = (*Extension)(nil)
	_ ext.CronFired          = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges ledgerflow lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (e *Extension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	return e.record(ctx, ActionWorkflowStarted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, nil,
		"workflow_name", r.Name,
		"instance_key", r.InstanceKey,
	)
}

// OnWorkflowStepFailed implements ext.WorkflowStepFailed.
func (e *Extension) OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, stepErr error) error {
	return e.record(ctx, ActionWorkflowStepFailed, SeverityWarning, OutcomeFailure,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, stepErr,
		"workflow_name", r.Name,
		"step_name", stepName,
	)
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (e *Extension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return e.record(ctx, ActionWorkflowCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, nil,
		"workflow_name", r.Name,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (e *Extension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return e.record(ctx, ActionWorkflowFailed, SeverityCritical, OutcomeFailure,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, runErr,
		"workflow_name", r.Name,
		"instance_key", r.InstanceKey,
	)
}

// ── Obligation hooks ────────────────────────────────

// OnObligationCreated implements ext.ObligationCreated.
func (e *Extension) OnObligationCreated(ctx context.Context, o *obligation.Obligation) error {
	return e.record(ctx, ActionObligationCreated, SeverityInfo, OutcomeSuccess,
		ResourceObligation, o.ID.String(), CategoryObligation, nil,
		"ledger_id", o.LedgerID,
		"owner_id", o.OwnerID,
		"amount", o.Amount.String(),
		"kind", string(o.Kind),
		"interval_ms", o.IntervalMs,
	)
}

// OnOccurrencePosted implements ext.OccurrencePosted.
func (e *Extension) OnOccurrencePosted(ctx context.Context, o *obligation.Obligation, rec *ledger.TransactionRecord) error {
	return e.record(ctx, ActionOccurrencePosted, SeverityInfo, OutcomeSuccess,
		ResourceObligation, o.ID.String(), CategoryObligation, nil,
		"ledger_id", rec.LedgerID,
		"transaction_id", rec.ID.String(),
		"amount", rec.Amount.String(),
		"kind", string(rec.Kind),
		"occurrence_at", rec.OccurrenceAt.Format(time.RFC3339),
	)
}

// OnObligationCanceled implements ext.ObligationCanceled.
func (e *Extension) OnObligationCanceled(ctx context.Context, oblID id.ObligationID) error {
	return e.record(ctx, ActionObligationCanceled, SeverityInfo, OutcomeSuccess,
		ResourceObligation, oblID.String(), CategoryObligation, nil,
	)
}

// OnObligationDeleted implements ext.ObligationDeleted.
func (e *Extension) OnObligationDeleted(ctx context.Context, oblID id.ObligationID) error {
	return e.record(ctx, ActionObligationDeleted, SeverityInfo, OutcomeSuccess,
		ResourceObligation, oblID.String(), CategoryObligation, nil,
	)
}

// ── Invitation hooks ────────────────────────────────

// OnInvitationSent implements ext.InvitationSent.
func (e *Extension) OnInvitationSent(ctx context.Context, inv *invitation.Invitation) error {
	return e.recordInvitation(ctx, ActionInvitationSent, inv)
}

// OnInvitationReminded implements ext.InvitationReminded.
func (e *Extension) OnInvitationReminded(ctx context.Context, inv *invitation.Invitation) error {
	return e.recordInvitation(ctx, ActionInvitationReminded, inv)
}

// OnInvitationAccepted implements ext.InvitationAccepted.
func (e *Extension) OnInvitationAccepted(ctx context.Context, inv *invitation.Invitation) error {
	return e.recordInvitation(ctx, ActionInvitationAccepted, inv)
}

// OnInvitationDeclined implements ext.InvitationDeclined.
func (e *Extension) OnInvitationDeclined(ctx context.Context, inv *invitation.Invitation) error {
	return e.recordInvitation(ctx, ActionInvitationDeclined, inv)
}

func (e *Extension) recordInvitation(ctx context.Context, action string, inv *invitation.Invitation) error {
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceInvitation, inv.ID.String(), CategoryInvitation, nil,
		"ledger_id", inv.LedgerID,
		"email", inv.Email,
		"inviter_id", inv.InviterID,
		"status", string(inv.Status),
	)
}

// ── Cron lifecycle hooks ────────────────────────────

// OnCronFired implements ext.CronFired.
func (e *Extension) OnCronFired(ctx context.Context, entryName string) error {
	return e.record(ctx, ActionCronFired, SeverityInfo, OutcomeSuccess,
		ResourceCron, entryName, CategoryCron, nil,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
// Recorder failures are logged and never fail the hook.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}

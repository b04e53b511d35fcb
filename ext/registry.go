package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/workflow"
)

// Compile-time checks that the Registry can be handed to the packages that
// emit events.
var (
	_ workflow.RunEmitter = (*Registry)(nil)
	_ obligation.Emitter  = (*Registry)(nil)
	_ invitation.Emitter  = (*Registry)(nil)
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	workflowStarted       []entry[WorkflowStarted]
	workflowStepCompleted []entry[WorkflowStepCompleted]
	workflowStepFailed    []entry[WorkflowStepFailed]
	workflowSuspended     []entry[WorkflowSuspended]
	workflowCompleted     []entry[WorkflowCompleted]
	workflowFailed        []entry[WorkflowFailed]

	obligationCreated  []entry[ObligationCreated]
	occurrencePosted   []entry[OccurrencePosted]
	obligationCanceled []entry[ObligationCanceled]
	obligationDeleted  []entry[ObligationDeleted]

	invitationSent     []entry[InvitationSent]
	invitationReminded []entry[InvitationReminded]
	invitationAccepted []entry[InvitationAccepted]
	invitationDeclined []entry[InvitationDeclined]

	cronFired []entry[CronFired]
	shutdown  []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

func add[H any](list *[]entry[H], e Extension) {
	if h, ok := e.(H); ok {
		*list = append(*list, entry[H]{name: e.Name(), hook: h})
	}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)

	add(&r.workflowStarted, e)
	add(&r.workflowStepCompleted, e)
	add(&r.workflowStepFailed, e)
	add(&r.workflowSuspended, e)
	add(&r.workflowCompleted, e)
	add(&r.workflowFailed, e)

	add(&r.obligationCreated, e)
	add(&r.occurrencePosted, e)
	add(&r.obligationCanceled, e)
	add(&r.obligationDeleted, e)

	add(&r.invitationSent, e)
	add(&r.invitationReminded, e)
	add(&r.invitationAccepted, e)
	add(&r.invitationDeclined, e)

	add(&r.cronFired, e)
	add(&r.shutdown, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// emit calls fn for every entry, logging hook errors.
func emit[H any](r *Registry, hook string, entries []entry[H], fn func(H) error) {
	for _, e := range entries {
		if err := fn(e.hook); err != nil {
			r.logHookError(hook, e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowStarted notifies all extensions that implement WorkflowStarted.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, run *workflow.Run) {
	emit(r, "OnWorkflowStarted", r.workflowStarted, func(h WorkflowStarted) error {
		return h.OnWorkflowStarted(ctx, run)
	})
}

// EmitStepCompleted notifies all extensions that implement WorkflowStepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	emit(r, "OnWorkflowStepCompleted", r.workflowStepCompleted, func(h WorkflowStepCompleted) error {
		return h.OnWorkflowStepCompleted(ctx, run, stepName, elapsed)
	})
}

// EmitStepFailed notifies all extensions that implement WorkflowStepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, run *workflow.Run, stepName string, stepErr error) {
	emit(r, "OnWorkflowStepFailed", r.workflowStepFailed, func(h WorkflowStepFailed) error {
		return h.OnWorkflowStepFailed(ctx, run, stepName, stepErr)
	})
}

// EmitWorkflowSuspended notifies all extensions that implement WorkflowSuspended.
func (r *Registry) EmitWorkflowSuspended(ctx context.Context, run *workflow.Run, until time.Time) {
	emit(r, "OnWorkflowSuspended", r.workflowSuspended, func(h WorkflowSuspended) error {
		return h.OnWorkflowSuspended(ctx, run, until)
	})
}

// EmitWorkflowCompleted notifies all extensions that implement WorkflowCompleted.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	emit(r, "OnWorkflowCompleted", r.workflowCompleted, func(h WorkflowCompleted) error {
		return h.OnWorkflowCompleted(ctx, run, elapsed)
	})
}

// EmitWorkflowFailed notifies all extensions that implement WorkflowFailed.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, run *workflow.Run, runErr error) {
	emit(r, "OnWorkflowFailed", r.workflowFailed, func(h WorkflowFailed) error {
		return h.OnWorkflowFailed(ctx, run, runErr)
	})
}

// ──────────────────────────────────────────────────
// Obligation event emitters
// ──────────────────────────────────────────────────

// EmitObligationCreated notifies all extensions that implement ObligationCreated.
func (r *Registry) EmitObligationCreated(ctx context.Context, o *obligation.Obligation) {
	emit(r, "OnObligationCreated", r.obligationCreated, func(h ObligationCreated) error {
		return h.OnObligationCreated(ctx, o)
	})
}

// EmitOccurrencePosted notifies all extensions that implement OccurrencePosted.
func (r *Registry) EmitOccurrencePosted(ctx context.Context, o *obligation.Obligation, rec *ledger.TransactionRecord) {
	emit(r, "OnOccurrencePosted", r.occurrencePosted, func(h OccurrencePosted) error {
		return h.OnOccurrencePosted(ctx, o, rec)
	})
}

// EmitObligationCanceled notifies all extensions that implement ObligationCanceled.
func (r *Registry) EmitObligationCanceled(ctx context.Context, oblID id.ObligationID) {
	emit(r, "OnObligationCanceled", r.obligationCanceled, func(h ObligationCanceled) error {
		return h.OnObligationCanceled(ctx, oblID)
	})
}

// EmitObligationDeleted notifies all extensions that implement ObligationDeleted.
func (r *Registry) EmitObligationDeleted(ctx context.Context, oblID id.ObligationID) {
	emit(r, "OnObligationDeleted", r.obligationDeleted, func(h ObligationDeleted) error {
		return h.OnObligationDeleted(ctx, oblID)
	})
}

// ──────────────────────────────────────────────────
// Invitation event emitters
// ──────────────────────────────────────────────────

// EmitInvitationSent notifies all extensions that implement InvitationSent.
func (r *Registry) EmitInvitationSent(ctx context.Context, inv *invitation.Invitation) {
	emit(r, "OnInvitationSent", r.invitationSent, func(h InvitationSent) error {
		return h.OnInvitationSent(ctx, inv)
	})
}

// EmitInvitationReminded notifies all extensions that implement InvitationReminded.
func (r *Registry) EmitInvitationReminded(ctx context.Context, inv *invitation.Invitation) {
	emit(r, "OnInvitationReminded", r.invitationReminded, func(h InvitationReminded) error {
		return h.OnInvitationReminded(ctx, inv)
	})
}

// EmitInvitationAccepted notifies all extensions that implement InvitationAccepted.
func (r *Registry) EmitInvitationAccepted(ctx context.Context, inv *invitation.Invitation) {
	emit(r, "OnInvitationAccepted", r.invitationAccepted, func(h InvitationAccepted) error {
		return h.OnInvitationAccepted(ctx, inv)
	})
}

// EmitInvitationDeclined notifies all extensions that implement InvitationDeclined.
func (r *Registry) EmitInvitationDeclined(ctx context.Context, inv *invitation.Invitation) {
	emit(r, "OnInvitationDeclined", r.invitationDeclined, func(h InvitationDeclined) error {
		return h.OnInvitationDeclined(ctx, inv)
	})
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitCronFired notifies all extensions that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string) {
	emit(r, "OnCronFired", r.cronFired, func(h CronFired) error {
		return h.OnCronFired(ctx, entryName)
	})
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", r.shutdown, func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

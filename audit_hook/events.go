package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionWorkflowStarted    = "workflow.started"
	ActionWorkflowStepFailed = "workflow.step_failed"
	ActionWorkflowCompleted  = "workflow.completed"
	ActionWorkflowFailed     = "workflow.failed"
	ActionObligationCreated  = "obligation.created"
	ActionOccurrencePosted   = "obligation.occurrence_posted"
	ActionObligationCanceled = "obligation.canceled"
	ActionObligationDeleted  = "obligation.deleted"
	ActionInvitationSent     = "invitation.sent"
	ActionInvitationReminded = "invitation.reminded"
	ActionInvitationAccepted = "invitation.accepted"
	ActionInvitationDeclined = "invitation.declined"
	ActionCronFired          = "cron.fired"
)

// Audit event categories group related actions.
const (
	CategoryWorkflow   = "ledgerflow.workflow"
	CategoryObligation = "ledgerflow.obligation"
	CategoryInvitation = "ledgerflow.invitation"
	CategoryCron       = "ledgerflow.cron"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceWorkflow   = "workflow_run"
	ResourceObligation = "obligation"
	ResourceInvitation = "invitation"
	ResourceCron       = "cron_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionWorkflowStarted,
		ActionWorkflowStepFailed,
		ActionWorkflowCompleted,
		ActionWorkflowFailed,
		ActionObligationCreated,
		ActionOccurrencePosted,
		ActionObligationCanceled,
		ActionObligationDeleted,
		ActionInvitationSent,
		ActionInvitationReminded,
		ActionInvitationAccepted,
		ActionInvitationDeclined,
		ActionCronFired,
	}
}

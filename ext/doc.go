// Package ext defines the extension system for ledgerflow.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, writing audit logs, or forwarding events elsewhere.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnOccurrencePosted(ctx context.Context, o *obligation.Obligation, rec *ledger.TransactionRecord) error {
//	    log.Printf("obligation %s posted %s", o.ID, rec.Amount)
//	    return nil
//	}
//
// # Workflow Lifecycle Hooks
//
//   - [WorkflowStarted] a run was created
//   - [WorkflowStepCompleted] a step finished and was checkpointed
//   - [WorkflowStepFailed] a step returned an error
//   - [WorkflowSuspended] a run began waiting for a future deadline
//   - [WorkflowCompleted] a run finished successfully
//   - [WorkflowFailed] a run failed permanently
//
// # Obligation Hooks
//
//   - [ObligationCreated], [OccurrencePosted], [ObligationCanceled], [ObligationDeleted]
//
// # Invitation Hooks
//
//   - [InvitationSent], [InvitationReminded], [InvitationAccepted], [InvitationDeclined]
//
// # Other Hooks
//
//   - [CronFired] a maintenance job ran
//   - [Shutdown] the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. It satisfies the emitter
// interfaces of the workflow, obligation, and invitation packages.
package ext

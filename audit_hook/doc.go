// Package audithook is a ledgerflow extension that turns lifecycle events
// into an audit trail of money movements and membership decisions.
//
// Every posting, cancellation, invitation decision and workflow outcome
// emits a structured [AuditEvent] through the [Recorder] interface. Terminal
// failures are recorded as critical, step failures as warnings and
// everything else as info.
//
// # Usage
//
//	eng, err := engine.New(s,
//	    engine.WithExtension(audithook.New(audithook.NewLogRecorder(auditLogger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionOccurrencePosted,
//	        audithook.ActionWorkflowFailed,
//	    ),
//	)
package audithook

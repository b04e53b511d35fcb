// Package ledgerflow provides a durable, time-driven workflow engine for
// shared-ledger finance applications. It posts recurring ledger transactions
// and drives ledger invitations through send, reminder and auto-decline.
//
// Workflows are ordinary Go functions. Side effects run inside named durable
// steps whose results are checkpointed, so a run that is replayed from the
// top after a crash fast-forwards through the work it already did. Long waits
// are split into bounded chunks so that cancellation requested by a user is
// observed while the workflow is suspended.
//
// # Quick Start
//
//	s := memory.New()
//	eng, err := engine.New(s,
//	    engine.WithNotifier(notify.NewLogNotifier(logger)),
//	    engine.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(ctx)
//
//	o := obligation.New(owner, ledgerID, category, amount, ledger.KindExpense, first, interval, note)
//	run, err := eng.CreateObligation(ctx, o)
//
// # Architecture
//
// Each subsystem (workflow, obligation, invitation, ledger) defines its own
// store interface. A single backend (memory, sqlite, postgres) implements all
// of them. All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package ledgerflow

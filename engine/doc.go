// Package engine wires the ledgerflow subsystems together and provides the
// application-level API for obligations and invitations.
//
// The engine package sits above every subsystem package. The root
// ledgerflow package defines Entity, Config and the sentinel errors, which
// the workflow, obligation and invitation packages import, so it cannot
// import them back.
//
// # Building an Engine
//
//	s, err := sqlite.Open("ledgerflow.db")
//	...
//	eng, err := engine.New(s,
//	    engine.WithLogger(logger),
//	    engine.WithNotifier(redisstream.New(rdb)),
//	    engine.WithConfig(ledgerflow.Config{MaxChunk: 24 * time.Hour}),
//	)
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(context.Background())
//
// # Triggers
//
//	// Recurring obligations
//	o := obligation.New(owner, ledgerID, category, amount, ledger.KindExpense, first, 30*24*time.Hour, "rent")
//	run, err := eng.CreateObligation(ctx, o)
//	err = eng.CancelObligation(ctx, o.ID)
//
//	// Invitations
//	invID, run, err := eng.Invite(ctx, engine.InviteRequest{LedgerID: ledgerID, Email: "bob@example.com"})
//	err = eng.AcceptInvitation(ctx, invID)
//
// Starting a workflow is idempotent per obligation or invitation. Runs
// interrupted by Stop or a crash stay in running state and are resumed on
// the next Start. Runs that failed with a transient error are redelivered
// by the "redeliver" cron job once their backoff has elapsed; the
// "reconcile" job starts workflows for obligations that have none.
//
// # Options
//
//   - [WithLogger] sets the structured logger
//   - [WithClock] sets the clock workflows wait against
//   - [WithNotifier] sets the invitation mail transport
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds step middleware after the default stack
//   - [WithBackoff] sets the redelivery backoff
//   - [WithConfig] sets chunk size, delays and job intervals
//   - [WithStepTimeout] bounds each step attempt
//   - [WithTracerProvider] and [WithMeterProvider] set the OTel providers
package engine

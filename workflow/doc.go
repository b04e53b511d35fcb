// Package workflow is the durable execution model behind every long-running
// ledgerflow process: typed definitions, runs, memoized steps, and the
// chunked waiter that suspends a run until a future instant while polling
// for cancellation.
//
// A run survives process restarts by replaying its handler from the top.
// Each completed step is checkpointed under (run ID, step name); on replay
// the checkpoint is returned and the step function is not called again.
// Step errors are never checkpointed, so the failed step runs again on the
// next attempt.
//
// # Defining a Workflow
//
//	var Remind = workflow.NewWorkflow("remind",
//	    func(wf *workflow.Workflow, in RemindInput) error {
//	        sentAt, err := workflow.StepWithResult(wf, "send", func(ctx context.Context) (time.Time, error) {
//	            return wf.Now(), send(ctx, in.Email)
//	        })
//	        if err != nil {
//	            return err
//	        }
//	        _, err = wf.WaitUntil(sentAt.Add(24*time.Hour), workflow.NeverCancel, 7*24*time.Hour)
//	        return err
//	    },
//	)
//
// # Waiting
//
// [WaitUntilOrCancel] sleeps in chunks of at most maxChunk, evaluating the
// cancel check before each chunk. Waits are deadline based and are not
// checkpointed: a replayed run recomputes the remaining time from the clock,
// so a deadline that already passed completes with zero sleeps.
//
// # Run States
//
//	running → completed
//	running → failed
//
// A run whose handler returns a transient error stays running with Error
// and Attempts recorded, so redelivery replays it. Errors wrapped with
// [Permanent] fail the run for good.
package workflow

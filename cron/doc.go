// Package cron runs the engine's periodic maintenance jobs on
// robfig/cron schedules.
//
// Two jobs make workflow execution self-healing:
//
//   - redeliver resumes runs left in running state after a transient
//     error or a crash, replaying them from their checkpoints
//   - reconcile starts recurring workflows for obligations that have no
//     run, so an obligation created while the engine was down is still
//     posted and a canceled one is still cleaned up
//
// The scheduler does not know about the engine; the engine supplies the
// jobs through the [Redeliverer] and [Reconciler] interfaces. Overlapping
// ticks of the same job are skipped.
package cron

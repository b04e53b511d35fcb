// Package middleware provides composable middleware for workflow steps.
//
// A [Middleware] wraps the execution of a step that has no checkpoint yet.
// Memoized steps are skipped before the chain runs, so middleware observe
// each side effect once per successful execution. Middleware are composed
// with [Chain]; the first middleware in the slice is the outermost wrapper.
//
//	// logging, then recover, then the step
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs the step name, run, duration, and outcome
//   - [Recover] converts panics into step errors
//   - [Timeout] bounds a single step attempt
//   - [Tracing] wraps the step in an OpenTelemetry span
//   - [Metrics] records per-step duration and outcome counters
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware

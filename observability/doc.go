// Package observability provides an OpenTelemetry metrics extension for
// ledgerflow. The MetricsExtension implements lifecycle hooks to record
// counters for workflow runs, ledger postings, obligation cleanup,
// invitation outcomes, and maintenance jobs.
//
// For per-step tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

package ledgerflow

import "time"

// Config holds the timing parameters shared by the workflow engine.
type Config struct {
	// MaxChunk is the longest single suspension a workflow performs. Longer
	// waits are split into chunks and cancellation is polled between them,
	// so MaxChunk bounds cancellation-detection latency.
	MaxChunk time.Duration

	// PostRetryBackoff is the delay before a failed ledger posting is retried.
	PostRetryBackoff time.Duration

	// ReminderDelay is how long after sending an invitation the reminder goes out.
	ReminderDelay time.Duration

	// DecisionDelay is how long after the reminder a pending invitation is
	// auto-declined.
	DecisionDelay time.Duration

	// RedeliveryInterval is how often runs interrupted by transient errors
	// are replayed.
	RedeliveryInterval time.Duration

	// ReconcileInterval is how often obligations without a live run are
	// picked up.
	ReconcileInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight runs to
	// suspend during Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxChunk:           7 * 24 * time.Hour,
		PostRetryBackoff:   5 * time.Minute,
		ReminderDelay:      24 * time.Hour,
		DecisionDelay:      72 * time.Hour,
		RedeliveryInterval: time.Minute,
		ReconcileInterval:  5 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
	}
}

// Normalized returns a copy of c with zero fields replaced by defaults.
func (c Config) Normalized() Config {
	d := DefaultConfig()
	if c.MaxChunk <= 0 {
		c.MaxChunk = d.MaxChunk
	}
	if c.PostRetryBackoff <= 0 {
		c.PostRetryBackoff = d.PostRetryBackoff
	}
	if c.ReminderDelay <= 0 {
		c.ReminderDelay = d.ReminderDelay
	}
	if c.DecisionDelay <= 0 {
		c.DecisionDelay = d.DecisionDelay
	}
	if c.RedeliveryInterval <= 0 {
		c.RedeliveryInterval = d.RedeliveryInterval
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = d.ReconcileInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

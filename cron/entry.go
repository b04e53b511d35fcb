package cron

import "time"

// Entry describes a registered job and its most recent run.
type Entry struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Runs      int        `json:"runs"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

package store

import (
	"context"

	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/workflow"
)

// Store is the aggregate persistence interface. A single backend implements
// every subsystem store, so the workflow checkpoints and the entities they
// guard live in the same database.
type Store interface {
	workflow.Store
	obligation.Store
	invitation.Store
	ledger.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

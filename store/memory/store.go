// Package memory is a fully in-memory implementation of store.Store. It is
// safe for concurrent access and intended for tests and development.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/workflow"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ workflow.Store   = (*Store)(nil)
	_ obligation.Store = (*Store)(nil)
	_ invitation.Store = (*Store)(nil)
	_ ledger.Store     = (*Store)(nil)
)

// Store keeps every entity in maps guarded by one RWMutex. Values are
// copied on the way in and out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	runs        map[string]*workflow.Run
	runKeys     map[string]string // "name\x00key" → run ID
	checkpoints map[string]*workflow.Checkpoint
	cpOrder     map[string][]string // run ID → step names in save order

	obligations map[string]*obligation.Obligation
	invitations map[string]*invitation.Invitation

	txns       map[string]*ledger.TransactionRecord
	postings   map[string]string // "oblID\x00unixms" → txn ID
	balances   map[string]*ledger.Balance
	categories map[string]map[string]decimal.Decimal
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]*workflow.Run),
		runKeys:     make(map[string]string),
		checkpoints: make(map[string]*workflow.Checkpoint),
		cpOrder:     make(map[string][]string),
		obligations: make(map[string]*obligation.Obligation),
		invitations: make(map[string]*invitation.Invitation),
		txns:        make(map[string]*ledger.TransactionRecord),
		postings:    make(map[string]string),
		balances:    make(map[string]*ledger.Balance),
		categories:  make(map[string]map[string]decimal.Decimal),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

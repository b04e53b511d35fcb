// Package sqlite implements store.Store on SQLite through the pure-Go
// modernc.org/sqlite driver. Suitable for single-node deployments, CLI
// tools, and tests that want a real database without a server.
//
// Instants are stored as Unix milliseconds and amounts as decimal text.
// All access goes through one connection, so the transactions that apply
// a posting to the ledger aggregates never contend with each other.
//
//	s, err := sqlite.Open("ledgerflow.db")
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite

// Package postgres implements store.Store using pgx/v5 with raw SQL and
// embedded migrations.
//
// Amounts are NUMERIC and aggregates are updated with upserts in the same
// transaction as the posting they apply, so a posting and its effect on the
// balance are never observed apart. A partial unique index enforces one
// live invitation per ledger and email.
package postgres

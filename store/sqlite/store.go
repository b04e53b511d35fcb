package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" database/sql driver

	"github.com/zeni/ledgerflow/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements the aggregate store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (creating if needed) the database file at path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledgerflow/sqlite: path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledgerflow/sqlite: ping: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an open *sql.DB using the modernc "sqlite" driver.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded migrations that have not run yet, each in
// its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledgerflow_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ledgerflow/sqlite: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledgerflow/sqlite: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM ledgerflow_migrations WHERE filename = ?`, entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("ledgerflow/sqlite: check migration %s: %w", entry.Name(), err)
		}
		if applied > 0 {
			continue
		}

		data, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return fmt.Errorf("ledgerflow/sqlite: read migration %s: %w", entry.Name(), err)
		}

		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, upSection(string(data))); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO ledgerflow_migrations (filename, applied_at) VALUES (?, ?)`,
				entry.Name(), toMillis(time.Now()),
			)
			return err
		}); err != nil {
			return fmt.Errorf("ledgerflow/sqlite: apply migration %s: %w", entry.Name(), err)
		}

		s.logger.Info("applied migration", slog.String("file", entry.Name()))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ── helpers ──────────────────────────────────────────────────────

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func pageClause(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

// SPDX-License-Identifier: MIT

// Package store is the single durable home of all leadpilot state: one
// embedded SQLite file with WAL journaling, foreign keys on and a 500ms busy
// timeout. Every mutation in the system travels through this package.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// BusyTimeout is the SQLite busy handler deadline applied to every
// connection in the pool.
const BusyTimeout = 500 * time.Millisecond

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same query methods serve both autocommit and transactional callers.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles all typed queries over a DBTX.
type Queries struct {
	db DBTX
}

// New returns Queries bound to the given handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store owns the database handle. It embeds Queries for direct
// (autocommit) access.
type Store struct {
	*Queries
	db *sql.DB
}

// Open initializes the SQLite pool with the mandatory PRAGMAs applied to
// every pooled connection via the DSN.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}

	return &Store{Queries: New(db), db: db}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for the HTTP health check.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single write transaction. The transaction is
// rolled back on error.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(New(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// retryBackoff is the wait schedule between busy/locked retries. Five
// attempts total.
var retryBackoff = []time.Duration{
	40 * time.Millisecond,
	80 * time.Millisecond,
	120 * time.Millisecond,
	160 * time.Millisecond,
}

// RetryBusy runs fn, retrying on SQLite busy/locked errors with increasing
// back-off. All other errors propagate immediately.
func RetryBusy(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsBusy(err) || attempt >= len(retryBackoff) {
			return err
		}
		time.Sleep(retryBackoff[attempt])
	}
}

// IsBusy reports whether err is the transient SQLite busy/locked class.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

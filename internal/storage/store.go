// Package storage persists the registries, the ledger, user accounts and the
// report refresh queue in SQLite. Every mutating call runs inside a single
// transaction: reference checks, duplicate probes and the write commit
// together or not at all, so concurrent registry deletes and invoice inserts
// serialize through the database rather than application locks.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fatture/internal/auth"
	"fatture/internal/core"
	"fatture/internal/ledger"
	"fatture/internal/registry"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Interface conformance for the service ports.
var (
	_ registry.Store = (*Store)(nil)
	_ ledger.Store   = (*Store)(nil)
	_ auth.Store     = (*Store)(nil)
)

// Open creates the database file if needed, applies migrations and returns a
// ready store.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// FK constraints back up the explicit pre-write checks.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable; the readiness probe uses it.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping database", err)
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error or context
// cancellation so no partial write is ever observable.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

// storageErr wraps an unanticipated database failure as an opaque
// core.ErrStorage. Anticipated conditions (duplicates, missing rows,
// references in use) surface as their own sentinels before this runs.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, core.ErrStorage)
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

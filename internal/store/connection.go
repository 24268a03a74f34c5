package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Config configures the embedded analytical database (spec §4.1, §6
// DATABASE_PATH/DATABASE_CHECKPOINT_INTERVAL).
type Config struct {
	Path                string
	CheckpointInterval  time.Duration
	BusyTimeout         time.Duration
}

// connectionPool wraps the single *sql.DB used for both read handles and the
// writer connection, over the pure-Go modernc.org/sqlite driver.
type connectionPool struct {
	db *sql.DB
}

// openConnectionPool opens (creating if absent) the SQLite file in WAL mode,
// matching spec §4.1's "WAL-style durability" requirement.
func openConnectionPool(cfg Config) (*connectionPool, error) {
	busyMs := int(cfg.BusyTimeout / time.Millisecond)
	if busyMs <= 0 {
		busyMs = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=synchronous(NORMAL)", cfg.Path, busyMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// The writer is strictly serial (spec §4.1); readers are independent
	// connections. A single shared *sql.DB with MaxOpenConns unrestricted
	// lets database/sql hand out as many reader connections as callers need
	// while WriteQueue is the only caller that ever issues a write.
	db.SetConnMaxLifetime(0)
	return &connectionPool{db: db}, nil
}

func (p *connectionPool) Close() error {
	return p.db.Close()
}

func (p *connectionPool) PingContext(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// TransactionFunc is the body of a unit of work run against a *sql.Tx.
type TransactionFunc func(tx *sql.Tx) error

// withTransaction runs fn in a transaction, rolling back (even across a
// panic) on any error and committing otherwise.
func (p *connectionPool) withTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// withReadOnlyTransaction runs fn in a read-only transaction, for read
// handles (spec §4.1 openRead).
func (p *connectionPool) withReadOnlyTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("store: begin read-only transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// checkpoint flushes the WAL into the main database file (spec §4.1).
func (p *connectionPool) checkpoint(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// errorMapper maps modernc.org/sqlite error text to store sentinel errors.
type errorMapper struct{}

func (errorMapper) mapError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "constraint failed: UNIQUE"):
		return fmt.Errorf("%w: %s", ErrDuplicate, msg)
	case containsAny(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, msg)
	case containsAny(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %s", ErrConstraintViolation, msg)
	case containsAny(msg, "database is locked", "database table is locked", "SQLITE_BUSY"):
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	default:
		return err
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isRetryable reports whether WriteQueue should retry the write (spec §4.2):
// only ErrConflict, which mapError returns for a locked or busy database, is
// retryable; constraint, not-found and all other errors are not.
func isRetryable(err error) bool {
	return err != nil && (err == ErrConflict || strings.Contains(err.Error(), ErrConflict.Error()))
}

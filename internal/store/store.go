package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the embedded analytical database of spec §4.1: short-lived read
// handles for parallel queries, and a single serial execution path for
// mutations used exclusively by WriteQueue.
type Store struct {
	pool   *connectionPool
	mapper errorMapper
	cfg    Config
}

// ReadHandle is an independent connection safe for concurrent use across
// many goroutines; callers must Close it (spec §4.1).
type ReadHandle struct {
	conn *sql.Conn
}

// Close releases the underlying connection back to the pool.
func (h *ReadHandle) Close() error {
	if h == nil || h.conn == nil {
		return nil
	}
	return h.conn.Close()
}

// Conn exposes the underlying *sql.Conn for query execution.
func (h *ReadHandle) Conn() *sql.Conn { return h.conn }

// Open opens the store, refusing to proceed if another process holds the
// database file exclusively, then creates the schema and runs pending
// migrations, then sweeps expired sessions (spec §4.1 startup).
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := openConnectionPool(cfg)
	if err != nil {
		return nil, err
	}

	if err := assertExclusiveWriteAccess(ctx, pool.db); err != nil {
		_ = pool.Close()
		return nil, err
	}

	if err := runMigrations(ctx, pool.db); err != nil {
		_ = pool.Close()
		return nil, err
	}

	s := &Store{pool: pool, cfg: cfg}

	if err := s.sweepExpiredSessions(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("store: sweep expired sessions: %w", err)
	}

	return s, nil
}

// assertExclusiveWriteAccess takes and immediately releases a write lock; if
// another process already holds one (SQLITE_BUSY), Store must refuse to
// open (spec §4.1).
func assertExclusiveWriteAccess(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: database held by another process: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "PRAGMA user_version"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: database held by another process: %w", err)
	}
	return tx.Rollback()
}

func (s *Store) sweepExpiredSessions(ctx context.Context) error {
	_, err := s.pool.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, nowRFC3339())
	return err
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// OpenRead returns an independent connection for parallel query use.
func (s *Store) OpenRead(ctx context.Context) (*ReadHandle, error) {
	conn, err := s.pool.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &ReadHandle{conn: conn}, nil
}

// ApplyWrite executes fn as a single serial transaction. The caller (always
// WriteQueue) is the sole writer; a second concurrent call is an invariant
// violation, not a condition this method defends against (spec §4.1).
func (s *Store) ApplyWrite(ctx context.Context, fn TransactionFunc) error {
	err := s.pool.withTransaction(ctx, fn)
	if err == nil {
		return nil
	}
	mapped := s.mapper.mapError(err)
	if isRetryable(mapped) {
		return mapped
	}
	return fmt.Errorf("%w: %v", ErrFatal, mapped)
}

// ApplyBatch executes a sequence of statements as one all-or-nothing group.
func (s *Store) ApplyBatch(ctx context.Context, fn TransactionFunc) error {
	return s.ApplyWrite(ctx, fn)
}

// Ping proves the database is reachable with a trivial read, for the health
// endpoint (spec §6 GET /health).
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.db.PingContext(ctx)
}

// Checkpoint flushes the WAL into the main database file (called by
// WriteQueue on its checkpoint schedule, spec §4.2).
func (s *Store) Checkpoint(ctx context.Context) error {
	return s.pool.checkpoint(ctx)
}

// Close closes the database handles. It does not drain the WriteQueue;
// WriteQueue.Shutdown does that.
func (s *Store) Close() error {
	return s.pool.Close()
}

// DB exposes the underlying *sql.DB to repository constructors; repositories
// use it for read queries and ApplyWrite/ApplyBatch for mutations.
func (s *Store) DB() *sql.DB { return s.pool.db }

package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/mailroom-core/internal/domain"
	"github.com/example/mailroom-core/internal/store"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style store/domain tests.
type SQLiteHarness struct {
	Store       *store.Store
	Queue       *store.WriteQueue
	Users       domain.UserRepository
	Sessions    domain.SessionRepository
	Recipients  *store.RecipientRepository
	Packages    domain.PackageRepository
	Settings    domain.SettingsRepository
	Audit       domain.AuditSink
	AuditReader *store.AuditRepositoryReader

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically on open. Callers may optionally invoke Close, but
// the helper also registers a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "mailroom.db")

	s, err := store.Open(context.Background(), store.Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	queue := store.NewWriteQueue(s, store.DefaultWriteQueueConfig, nil)

	harness := &SQLiteHarness{
		Store:       s,
		Queue:       queue,
		Users:       store.NewUserRepository(s, queue),
		Sessions:    store.NewSessionRepository(s, queue),
		Recipients:  store.NewRecipientRepository(s, queue),
		Packages:    store.NewPackageRepository(s, queue),
		Settings:    store.NewSettingsRepository(s, queue),
		Audit:       store.NewAuditRepository(queue),
		AuditReader: store.NewAuditRepositoryReader(s),
		cleanup: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = queue.Shutdown(shutdownCtx)
			_ = s.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// SettingsRepository implements domain.SettingsRepository. Reads tolerate
// the settings table being entirely absent, since migration 8 may not have
// run yet against an older database file opened read-only in a test harness.
type SettingsRepository struct {
	store *Store
	queue *WriteQueue
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(store *Store, queue *WriteQueue) *SettingsRepository {
	return &SettingsRepository{store: store, queue: queue}
}

// Get returns the setting for key, tolerating an absent table or row.
func (r *SettingsRepository) Get(ctx context.Context, key string) (domain.Setting, bool, error) {
	var s domain.Setting
	var updatedAt string
	err := r.store.DB().QueryRowContext(ctx, `SELECT key, value, updated_by, updated_at FROM settings WHERE key = ?`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedBy, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows || strings.Contains(err.Error(), "no such table") {
			return domain.Setting{}, false, nil
		}
		return domain.Setting{}, false, errorMapper{}.mapError(err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Setting{}, false, fmt.Errorf("store: parse updated_at: %w", err)
	}
	return s, true, nil
}

// Set upserts a setting value through the write queue.
func (r *SettingsRepository) Set(ctx context.Context, setting domain.Setting) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_by, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at`,
			setting.Key, setting.Value, setting.UpdatedBy, now)
		return err
	})
	return mapStoreErrToDomain(err)
}

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// migration is one sequential, checksummed schema step. Directory-scanned
// .sql migrations suit a service with an evolving schema across many
// deployments; this service ships as a single binary with one schema, so
// the version-tracking-table-plus-checksum idea is kept but the steps are
// compiled in via Go string constants instead of scanned from an external
// directory (see DESIGN.md).
type migration struct {
	version     int
	description string
	statement   string
}

var migrations = []migration{
	{1, "create users table", `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL CHECK (role IN ('operator','admin','super_admin')),
			active INTEGER NOT NULL DEFAULT 1,
			must_change_password INTEGER NOT NULL DEFAULT 0,
			password_history TEXT NOT NULL DEFAULT '[]',
			failed_login_count INTEGER NOT NULL DEFAULT 0,
			locked_until TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`},
	{2, "create sessions table", `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			token TEXT NOT NULL UNIQUE,
			expires_at TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			client_ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);`},
	{3, "create recipients table", `
		CREATE TABLE IF NOT EXISTS recipients (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			department TEXT NOT NULL DEFAULT 'Unassigned',
			phone TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`},
	{4, "create packages table", `
		CREATE TABLE IF NOT EXISTS packages (
			id TEXT PRIMARY KEY,
			tracking_no TEXT NOT NULL,
			carrier TEXT NOT NULL DEFAULT '',
			recipient_id TEXT NOT NULL REFERENCES recipients(id),
			status TEXT NOT NULL CHECK (status IN ('registered','awaiting_pickup','out_for_delivery','delivered','returned')),
			notes TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL REFERENCES users(id),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_packages_recipient_id ON packages(recipient_id);
		CREATE INDEX IF NOT EXISTS idx_packages_status ON packages(status);
		CREATE INDEX IF NOT EXISTS idx_packages_created_at ON packages(created_at);`},
	{5, "create package_events table", `
		CREATE TABLE IF NOT EXISTS package_events (
			id TEXT PRIMARY KEY,
			package_id TEXT NOT NULL REFERENCES packages(id),
			old_status TEXT,
			new_status TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			actor_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_package_events_package_id ON package_events(package_id, created_at);`},
	{6, "create attachments table", `
		CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			package_id TEXT NOT NULL REFERENCES packages(id),
			original_name TEXT NOT NULL,
			stored_path TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			byte_size INTEGER NOT NULL,
			uploader_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attachments_package_id ON attachments(package_id);`},
	{7, "create auth_events table", `
		CREATE TABLE IF NOT EXISTS auth_events (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			kind TEXT NOT NULL,
			username_attempt TEXT NOT NULL DEFAULT '',
			client_ip TEXT NOT NULL DEFAULT '',
			detail TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_auth_events_created_at ON auth_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_auth_events_user_id ON auth_events(user_id);`},
	{8, "create settings table", `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_by TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`},
	{9, "backfill unassigned department", `
		UPDATE recipients SET department = 'Unassigned' WHERE department IS NULL OR trim(department) = '';`},
}

func checksum(stmt string) string {
	sum := sha256.Sum256([]byte(stmt))
	return hex.EncodeToString(sum[:])
}

// runMigrations applies pending migrations in order, recording a checksum
// per applied version so a changed migration body is detectable (version
// tracking table + sequential execution + checksum, simplified to embedded
// steps; see DESIGN.md).
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("store: initialize schema_migrations: %w", err)
	}

	applied := map[int]string{}
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("store: read schema_migrations: %w", err)
	}
	for rows.Next() {
		var version int
		var sum string
		if err := rows.Scan(&version, &sum); err != nil {
			rows.Close()
			return err
		}
		applied[version] = sum
	}
	rows.Close()

	for _, m := range migrations {
		sum := checksum(m.statement)
		if existing, ok := applied[m.version]; ok {
			if existing != sum {
				return fmt.Errorf("store: migration %d (%s) checksum mismatch: schema drifted from code", m.version, m.description)
			}
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.statement); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: apply migration %d (%s): %w", m.version, m.description, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, description, checksum, applied_at) VALUES (?, ?, ?, datetime('now'))`, m.version, m.description, sum); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

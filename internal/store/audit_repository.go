package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// AuditRepository implements domain.AuditSink, appending immutable audit
// records through the write queue (spec §4.7).
type AuditRepository struct {
	queue *WriteQueue
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(queue *WriteQueue) *AuditRepository {
	return &AuditRepository{queue: queue}
}

// Record persists one audit event. Per the AuditSink contract, this method
// itself never fails the caller's business operation — it only returns an
// error so the caller can log it (spec §4.7: "audit failures never abort
// the originating mutation").
func (r *AuditRepository) Record(ctx context.Context, kind domain.AuthEventKind, userID *string, usernameAttempt, clientIP string, detail map[string]any) error {
	id := fmt.Sprintf("%d-%s", time.Now().UTC().UnixNano(), kind)
	var detailJSON sql.NullString
	if detail != nil {
		encoded, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("store: encode audit detail: %w", err)
		}
		detailJSON = sql.NullString{String: string(encoded), Valid: true}
	}
	var userIDVal sql.NullString
	if userID != nil {
		userIDVal = sql.NullString{String: *userID, Valid: true}
	}

	return r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO auth_events (id, user_id, kind, username_attempt, client_ip, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, userIDVal, string(kind), usernameAttempt, clientIP, detailJSON, time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
}

// AuditRepositoryReader exposes read access to the audit log for the
// admin audit-log endpoint of spec §6 (GET /admin/audit-logs).
type AuditRepositoryReader struct {
	store *Store
}

// NewAuditRepositoryReader constructs an AuditRepositoryReader.
func NewAuditRepositoryReader(store *Store) *AuditRepositoryReader {
	return &AuditRepositoryReader{store: store}
}

// ListRecent returns the most recent audit events, newest first.
func (r *AuditRepositoryReader) ListRecent(ctx context.Context, limit int) ([]domain.AuthEvent, error) {
	if limit <= 0 || limit > domain.MaxSearchLimit {
		limit = domain.MaxSearchLimit
	}
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, user_id, kind, username_attempt, client_ip, detail, created_at
		FROM auth_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var events []domain.AuthEvent
	for rows.Next() {
		var e domain.AuthEvent
		var userID, detailJSON sql.NullString
		var kind, createdAt string
		if err := rows.Scan(&e.ID, &userID, &kind, &e.UsernameAttempt, &e.ClientIP, &detailJSON, &createdAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			v := userID.String
			e.UserID = &v
		}
		e.Kind = domain.AuthEventKind(kind)
		if detailJSON.Valid && detailJSON.String != "" {
			if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("store: decode audit detail: %w", err)
			}
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("store: parse created_at: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

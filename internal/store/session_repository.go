package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// SessionRepository implements domain.SessionRepository.
type SessionRepository struct {
	store *Store
	queue *WriteQueue
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(store *Store, queue *WriteQueue) *SessionRepository {
	return &SessionRepository{store: store, queue: queue}
}

const sessionSelectColumns = `id, user_id, token, expires_at, last_activity, client_ip, user_agent, created_at`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var s domain.Session
	var expiresAt, lastActivity, createdAt string
	if err := row.Scan(&s.ID, &s.UserID, &s.Token, &expiresAt, &lastActivity, &s.ClientIP, &s.UserAgent, &createdAt); err != nil {
		return domain.Session{}, err
	}
	var err error
	if s.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return domain.Session{}, fmt.Errorf("store: parse expires_at: %w", err)
	}
	if s.LastActivity, err = time.Parse(time.RFC3339Nano, lastActivity); err != nil {
		return domain.Session{}, fmt.Errorf("store: parse last_activity: %w", err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Session{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	return s, nil
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	session.CreatedAt = time.Now().UTC()

	err := r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, user_id, token, expires_at, last_activity, client_ip, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.UserID, session.Token, session.ExpiresAt.UTC().Format(time.RFC3339Nano),
			session.LastActivity.UTC().Format(time.RFC3339Nano), session.ClientIP, session.UserAgent,
			session.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return domain.Session{}, mapStoreErrToDomain(err)
	}
	return session, nil
}

// GetByToken looks up a session by its bearer token.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (domain.Session, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT `+sessionSelectColumns+` FROM sessions WHERE token = ?`, token)
	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, errorMapper{}.mapError(err)
	}
	return s, nil
}

// ListActiveForUser returns unexpired sessions for userID, oldest first —
// the order createSession's eviction policy relies on (spec §4.5).
func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT `+sessionSelectColumns+` FROM sessions WHERE user_id = ? AND expires_at > ? ORDER BY created_at ASC, id ASC`,
		userID, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Renew extends a session's expiry and refreshes last_activity.
func (r *SessionRepository) Renew(ctx context.Context, sessionID string, expiresAt, lastActivity time.Time) error {
	return r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET expires_at = ?, last_activity = ? WHERE id = ?`,
			expiresAt.UTC().Format(time.RFC3339Nano), lastActivity.UTC().Format(time.RFC3339Nano), sessionID)
		return err
	})
}

// Delete removes a single session.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	err := r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
		return err
	})
	return mapStoreErrToDomain(err)
}

// DeleteAllForUser removes every session belonging to a user (logout,
// password reset).
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	err := r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
		return err
	})
	return mapStoreErrToDomain(err)
}

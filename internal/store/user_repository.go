package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// UserRepository implements domain.UserRepository using the embedded Store:
// RFC3339 TEXT timestamps, constraint-aware error mapping, writes routed
// through a serializer.
type UserRepository struct {
	store *Store
	queue *WriteQueue
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(store *Store, queue *WriteQueue) *UserRepository {
	return &UserRepository{store: store, queue: queue}
}

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	var role string
	var active, mustChange int
	var historyJSON string
	var lockedUntil sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &role, &active,
		&mustChange, &historyJSON, &u.FailedLoginCount, &lockedUntil, &createdAt, &updatedAt); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.Active = active != 0
	u.MustChangePassword = mustChange != 0
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &u.PasswordHistory); err != nil {
			return domain.User{}, fmt.Errorf("store: decode password_history: %w", err)
		}
	}
	if lockedUntil.Valid && lockedUntil.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lockedUntil.String)
		if err != nil {
			return domain.User{}, fmt.Errorf("store: parse locked_until: %w", err)
		}
		u.LockedUntil = &t
	}
	var err error
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.User{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.User{}, fmt.Errorf("store: parse updated_at: %w", err)
	}
	return u, nil
}

const userSelectColumns = `id, username, password_hash, full_name, role, active, must_change_password, password_history, failed_login_count, locked_until, created_at, updated_at`

// GetByUsername looks up a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT `+userSelectColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, errorMapper{}.mapError(err)
	}
	return u, nil
}

// GetByID looks up a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT `+userSelectColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, errorMapper{}.mapError(err)
	}
	return u, nil
}

// Create inserts a new user through the write queue.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	history, err := json.Marshal(user.PasswordHistory)
	if err != nil {
		return domain.User{}, fmt.Errorf("store: encode password_history: %w", err)
	}

	err = r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, username, password_hash, full_name, role, active, must_change_password, password_history, failed_login_count, locked_until, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Username, user.PasswordHash, user.FullName, string(user.Role), boolToInt(user.Active),
			boolToInt(user.MustChangePassword), string(history), user.FailedLoginCount, nullableTime(user.LockedUntil),
			user.CreatedAt.Format(time.RFC3339Nano), user.UpdatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return domain.User{}, mapStoreErrToDomain(err)
	}
	return user, nil
}

// Update persists changes to an existing user through the write queue.
func (r *UserRepository) Update(ctx context.Context, user domain.User) (domain.User, error) {
	user.UpdatedAt = time.Now().UTC()
	history, err := json.Marshal(user.PasswordHistory)
	if err != nil {
		return domain.User{}, fmt.Errorf("store: encode password_history: %w", err)
	}

	err = r.queue.Submit(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE users SET username = ?, password_hash = ?, full_name = ?, role = ?, active = ?,
				must_change_password = ?, password_history = ?, failed_login_count = ?, locked_until = ?, updated_at = ?
			WHERE id = ?`,
			user.Username, user.PasswordHash, user.FullName, string(user.Role), boolToInt(user.Active),
			boolToInt(user.MustChangePassword), string(history), user.FailedLoginCount, nullableTime(user.LockedUntil),
			user.UpdatedAt.Format(time.RFC3339Nano), user.ID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.User{}, mapStoreErrToDomain(err)
	}
	return user, nil
}

// List returns every account, ordered by username, for the administrative
// user listing (spec §6 GET /admin/users).
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.store.DB().QueryContext(ctx, `SELECT `+userSelectColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

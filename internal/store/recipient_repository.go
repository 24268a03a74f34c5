package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// RecipientRepository implements domain.RecipientRepository and
// domain.RecipientDirectory.
type RecipientRepository struct {
	store *Store
	queue *WriteQueue
}

// NewRecipientRepository constructs a RecipientRepository.
func NewRecipientRepository(store *Store, queue *WriteQueue) *RecipientRepository {
	return &RecipientRepository{store: store, queue: queue}
}

const recipientSelectColumns = `id, employee_id, name, email, department, phone, location, active, created_at, updated_at`

func scanRecipient(row interface{ Scan(...any) error }) (domain.Recipient, error) {
	var r domain.Recipient
	var active int
	var createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.EmployeeID, &r.Name, &r.Email, &r.Department, &r.Phone, &r.Location, &active, &createdAt, &updatedAt); err != nil {
		return domain.Recipient{}, err
	}
	r.Active = active != 0
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Recipient{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Recipient{}, fmt.Errorf("store: parse updated_at: %w", err)
	}
	return r, nil
}

// GetByID looks up a recipient by id.
func (r *RecipientRepository) GetByID(ctx context.Context, id string) (domain.Recipient, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT `+recipientSelectColumns+` FROM recipients WHERE id = ?`, id)
	rec, err := scanRecipient(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Recipient{}, domain.ErrNotFound
		}
		return domain.Recipient{}, errorMapper{}.mapError(err)
	}
	return rec, nil
}

// GetByEmployeeID looks up a recipient by employee id, used by bulk import
// to classify a row as insert or update.
func (r *RecipientRepository) GetByEmployeeID(ctx context.Context, employeeID string) (domain.Recipient, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT `+recipientSelectColumns+` FROM recipients WHERE employee_id = ?`, employeeID)
	rec, err := scanRecipient(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Recipient{}, domain.ErrNotFound
		}
		return domain.Recipient{}, errorMapper{}.mapError(err)
	}
	return rec, nil
}

// Create inserts a new recipient.
func (r *RecipientRepository) Create(ctx context.Context, recipient domain.Recipient) (domain.Recipient, error) {
	err := r.queue.Submit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recipients (id, employee_id, name, email, department, phone, location, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			recipient.ID, recipient.EmployeeID, recipient.Name, recipient.Email, recipient.Department,
			recipient.Phone, recipient.Location, boolToInt(recipient.Active),
			recipient.CreatedAt.UTC().Format(time.RFC3339Nano), recipient.UpdatedAt.UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return domain.Recipient{}, mapStoreErrToDomain(err)
	}
	return recipient, nil
}

// Update persists changes to an existing recipient.
func (r *RecipientRepository) Update(ctx context.Context, recipient domain.Recipient) (domain.Recipient, error) {
	err := r.queue.Submit(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE recipients SET name = ?, email = ?, department = ?, phone = ?, location = ?, active = ?, updated_at = ?
			WHERE id = ?`,
			recipient.Name, recipient.Email, recipient.Department, recipient.Phone, recipient.Location,
			boolToInt(recipient.Active), recipient.UpdatedAt.UTC().Format(time.RFC3339Nano), recipient.ID)
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
		return domain.Recipient{}, mapStoreErrToDomain(err)
	}
	return recipient, nil
}

// HasOpenPackages reports whether the recipient has any package in a
// non-terminal state, gating Deactivate (spec §4.8.2).
func (r *RecipientRepository) HasOpenPackages(ctx context.Context, recipientID string) (bool, error) {
	var count int
	err := r.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM packages WHERE recipient_id = ? AND status NOT IN ('delivered','returned')`,
		recipientID).Scan(&count)
	if err != nil {
		return false, errorMapper{}.mapError(err)
	}
	return count > 0, nil
}

// List returns recipients matching a free-text query over name, email and
// employee_id, ordered by name.
func (r *RecipientRepository) List(ctx context.Context, query string) ([]domain.Recipient, error) {
	like := "%" + query + "%"
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT `+recipientSelectColumns+` FROM recipients
		WHERE ? = '' OR name LIKE ? OR email LIKE ? OR employee_id LIKE ?
		ORDER BY name ASC`, query, like, like, like)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

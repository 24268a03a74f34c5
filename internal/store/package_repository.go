package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// PackageRepository implements domain.PackageRepository: packages, their
// append-only event log, and attachments, persisted as atomic units through
// the write queue (spec §4.8).
type PackageRepository struct {
	store *Store
	queue *WriteQueue
}

// NewPackageRepository constructs a PackageRepository.
func NewPackageRepository(store *Store, queue *WriteQueue) *PackageRepository {
	return &PackageRepository{store: store, queue: queue}
}

const packageSelectColumns = `id, tracking_no, carrier, recipient_id, status, notes, created_by, created_at, updated_at`

const packageSelectColumnsPrefixed = `p.id, p.tracking_no, p.carrier, p.recipient_id, p.status, p.notes, p.created_by, p.created_at, p.updated_at`

func scanPackage(row interface{ Scan(...any) error }) (domain.Package, error) {
	var p domain.Package
	var status string
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.TrackingNo, &p.Carrier, &p.RecipientID, &status, &p.Notes, &p.CreatedBy, &createdAt, &updatedAt); err != nil {
		return domain.Package{}, err
	}
	p.Status = domain.PackageStatus(status)
	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Package{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Package{}, fmt.Errorf("store: parse updated_at: %w", err)
	}
	return p, nil
}

func insertPackageEvent(ctx context.Context, tx *sql.Tx, event domain.PackageEvent) error {
	var oldStatus sql.NullString
	if event.OldStatus != nil {
		oldStatus = sql.NullString{String: string(*event.OldStatus), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO package_events (id, package_id, old_status, new_status, notes, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.PackageID, oldStatus, string(event.NewStatus), event.Notes, event.ActorID,
		event.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func insertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attachments (id, package_id, original_name, stored_path, mime_type, byte_size, uploader_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PackageID, a.OriginalName, a.StoredPath, a.MIMEType, a.ByteSize, a.UploaderID,
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Create persists a new package, its first lifecycle event, and an optional
// attachment as one atomic batch (spec §4.8 RegisterPackage).
func (r *PackageRepository) Create(ctx context.Context, pkg domain.Package, firstEvent domain.PackageEvent, attachment *domain.Attachment) (domain.Package, error) {
	err := r.queue.SubmitBatch(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO packages (id, tracking_no, carrier, recipient_id, status, notes, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pkg.ID, pkg.TrackingNo, pkg.Carrier, pkg.RecipientID, string(pkg.Status), pkg.Notes, pkg.CreatedBy,
			pkg.CreatedAt.UTC().Format(time.RFC3339Nano), pkg.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		if err := insertPackageEvent(ctx, tx, firstEvent); err != nil {
			return err
		}
		if attachment != nil {
			if err := insertAttachment(ctx, tx, *attachment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Package{}, mapStoreErrToDomain(err)
	}
	return pkg, nil
}

// GetByID looks up a package by id.
func (r *PackageRepository) GetByID(ctx context.Context, id string) (domain.Package, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT `+packageSelectColumns+` FROM packages WHERE id = ?`, id)
	pkg, err := scanPackage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Package{}, domain.ErrNotFound
		}
		return domain.Package{}, errorMapper{}.mapError(err)
	}
	return pkg, nil
}

// Transition persists a package's new status alongside its lifecycle event
// as one atomic batch (spec §4.8 TransitionPackage).
func (r *PackageRepository) Transition(ctx context.Context, pkg domain.Package, event domain.PackageEvent) (domain.Package, error) {
	err := r.queue.SubmitBatch(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE packages SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
			string(pkg.Status), pkg.Notes, pkg.UpdatedAt.UTC().Format(time.RFC3339Nano), pkg.ID)
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
		return insertPackageEvent(ctx, tx, event)
	})
	if err != nil {
		return domain.Package{}, mapStoreErrToDomain(err)
	}
	return pkg, nil
}

// AddAttachment persists a photo attached after registration (spec §6
// POST /packages/{id}/photo).
func (r *PackageRepository) AddAttachment(ctx context.Context, attachment domain.Attachment) (domain.Attachment, error) {
	err := r.queue.Submit(ctx, func(tx *sql.Tx) error {
		return insertAttachment(ctx, tx, attachment)
	})
	if err != nil {
		return domain.Attachment{}, mapStoreErrToDomain(err)
	}
	return attachment, nil
}

// ListEvents returns a package's timeline ordered oldest first.
func (r *PackageRepository) ListEvents(ctx context.Context, packageID string) ([]domain.PackageEvent, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, package_id, old_status, new_status, notes, actor_id, created_at
		FROM package_events WHERE package_id = ? ORDER BY created_at ASC, id ASC`, packageID)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var events []domain.PackageEvent
	for rows.Next() {
		var e domain.PackageEvent
		var oldStatus sql.NullString
		var newStatus, createdAt string
		if err := rows.Scan(&e.ID, &e.PackageID, &oldStatus, &newStatus, &e.Notes, &e.ActorID, &createdAt); err != nil {
			return nil, err
		}
		if oldStatus.Valid {
			s := domain.PackageStatus(oldStatus.String)
			e.OldStatus = &s
		}
		e.NewStatus = domain.PackageStatus(newStatus)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("store: parse created_at: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Search implements the filtered, paginated read projection of spec §4.8.3.
func (r *PackageRepository) Search(ctx context.Context, filter domain.PackageSearchFilter) (domain.PackageSearchResult, error) {
	var conditions []string
	var args []any

	if filter.Query != "" {
		conditions = append(conditions, `(p.tracking_no LIKE ? OR r.name LIKE ? OR r.employee_id LIKE ?)`)
		like := "%" + filter.Query + "%"
		args = append(args, like, like, like)
	}
	if filter.Status != nil {
		conditions = append(conditions, `p.status = ?`)
		args = append(args, string(*filter.Status))
	}
	if filter.Department != "" {
		conditions = append(conditions, `r.department = ?`)
		args = append(args, filter.Department)
	}
	if filter.From != nil {
		conditions = append(conditions, `p.created_at >= ?`)
		args = append(args, filter.From.UTC().Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		conditions = append(conditions, `p.created_at <= ?`)
		args = append(args, filter.To.UTC().Format(time.RFC3339Nano))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM packages p JOIN recipients r ON r.id = p.recipient_id ` + where
	if err := r.store.DB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return domain.PackageSearchResult{}, errorMapper{}.mapError(err)
	}

	offset := (filter.Page - 1) * filter.Limit
	listQuery := fmt.Sprintf(`
		SELECT %s FROM packages p JOIN recipients r ON r.id = p.recipient_id %s
		ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`,
		packageSelectColumnsPrefixed, where)
	listArgs := append(append([]any{}, args...), filter.Limit, offset)

	rows, err := r.store.DB().QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return domain.PackageSearchResult{}, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var packages []domain.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return domain.PackageSearchResult{}, err
		}
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return domain.PackageSearchResult{}, errorMapper{}.mapError(err)
	}

	return domain.PackageSearchResult{Packages: packages, Total: total}, nil
}

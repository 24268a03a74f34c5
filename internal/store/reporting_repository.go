package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// ReportingRepository implements domain.ReportingRepository with read-only
// aggregate SQL. Grounded on original_source/app/services/dashboard_service.py,
// translated to SQLite's date() / datetime() functions for the period filters
// the Python original expressed with DATE_TRUNC.
type ReportingRepository struct {
	store *Store
}

// NewReportingRepository constructs a ReportingRepository.
func NewReportingRepository(store *Store) *ReportingRepository {
	return &ReportingRepository{store: store}
}

// SummaryCounts implements the Python original's DashboardStats query set.
func (r *ReportingRepository) SummaryCounts(ctx context.Context) (packagesToday, awaitingPickup, deliveredToday, total int, err error) {
	db := r.store.DB()

	row := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages WHERE date(created_at) = date('now')`)
	if err = row.Scan(&packagesToday); err != nil {
		return
	}

	row = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages WHERE status = ?`, string(domain.PackageAwaitingPickup))
	if err = row.Scan(&awaitingPickup); err != nil {
		return
	}

	row = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages WHERE status = ? AND date(updated_at) = date('now')`, string(domain.PackageDelivered))
	if err = row.Scan(&deliveredToday); err != nil {
		return
	}

	row = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`)
	err = row.Scan(&total)
	return
}

// StatusDistribution implements the Python original's StatusDistribution query.
func (r *ReportingRepository) StatusDistribution(ctx context.Context) ([]domain.StatusCount, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT status, COUNT(*) FROM packages GROUP BY status ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var counts []domain.StatusCount
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts = append(counts, domain.StatusCount{Status: domain.PackageStatus(status), Count: count})
	}
	return counts, rows.Err()
}

func periodFilter(period domain.ReportPeriod) string {
	switch period {
	case domain.PeriodWeek:
		return `AND strftime('%Y-%W', p.created_at) = strftime('%Y-%W', 'now')`
	case domain.PeriodMonth:
		return `AND strftime('%Y-%m', p.created_at) = strftime('%Y-%m', 'now')`
	default:
		return ``
	}
}

// TopRecipients implements the Python original's get_top_recipients.
func (r *ReportingRepository) TopRecipients(ctx context.Context, period domain.ReportPeriod, limit int) ([]domain.RecipientActivity, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`
		SELECT r.id, r.name, r.department, COUNT(p.id) as package_count
		FROM recipients r
		JOIN packages p ON p.recipient_id = r.id
		WHERE 1=1 %s
		GROUP BY r.id, r.name, r.department
		ORDER BY package_count DESC
		LIMIT ?`, periodFilter(period))

	rows, err := r.store.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var activity []domain.RecipientActivity
	for rows.Next() {
		var a domain.RecipientActivity
		if err := rows.Scan(&a.RecipientID, &a.RecipientName, &a.Department, &a.PackageCount); err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}

// Departments implements the Python original's get_department_list.
func (r *ReportingRepository) Departments(ctx context.Context) ([]string, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT DISTINCT department FROM recipients WHERE department IS NOT NULL AND trim(department) != '' ORDER BY department`)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var departments []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// ExportRows backs both GET /admin/reports/preview and GET /admin/reports/export
// (spec §6): the same filtered, unpaginated-on-request listing.
func (r *ReportingRepository) ExportRows(ctx context.Context, filter domain.PackageSearchFilter) ([]domain.Package, error) {
	query := `SELECT ` + packageSelectColumnsPrefixed + ` FROM packages p JOIN recipients r ON r.id = p.recipient_id WHERE 1=1`
	var args []any

	if filter.Query != "" {
		query += ` AND (p.tracking_no LIKE ? OR r.name LIKE ?)`
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}
	if filter.Status != nil {
		query += ` AND p.status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.Department != "" {
		query += ` AND r.department = ?`
		args = append(args, filter.Department)
	}
	if filter.From != nil {
		query += ` AND p.created_at >= ?`
		args = append(args, filter.From.UTC().Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		query += ` AND p.created_at <= ?`
		args = append(args, filter.To.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errorMapper{}.mapError(err)
	}
	defer rows.Close()

	var packages []domain.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

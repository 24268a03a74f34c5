package domain

import "context"

// StatusCount is one entry of the package status distribution (spec §6
// GET /admin/dashboard, GET /admin/reports), grounded on
// original_source/app/services/dashboard_service.py's StatusDistribution.
type StatusCount struct {
	Status PackageStatus `json:"status"`
	Count  int           `json:"count"`
}

// RecipientActivity ranks a recipient by package volume over a period,
// grounded on the Python original's RecipientStats.
type RecipientActivity struct {
	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name"`
	Department    string `json:"department"`
	PackageCount  int    `json:"package_count"`
}

// DashboardSummary is the aggregate spec §6 GET /dashboard and
// GET /admin/dashboard return as JSON (§13's HTTP response format resolution).
type DashboardSummary struct {
	PackagesToday          int                 `json:"packages_today"`
	PackagesAwaitingPickup int                 `json:"packages_awaiting_pickup"`
	PackagesDeliveredToday int                 `json:"packages_delivered_today"`
	TotalPackages          int                 `json:"total_packages"`
	StatusDistribution     []StatusCount       `json:"status_distribution"`
	TopRecipients          []RecipientActivity `json:"top_recipients"`
}

// ReportPeriod bounds the top-recipients window, matching the Python
// original's 'month' | 'week' | 'all'.
type ReportPeriod string

const (
	PeriodWeek  ReportPeriod = "week"
	PeriodMonth ReportPeriod = "month"
	PeriodAll   ReportPeriod = "all"
)

// ReportingRepository exposes the read-only aggregate queries backing the
// dashboard and admin reports pages. All of it is derived data; none of it
// participates in the WriteQueue.
type ReportingRepository interface {
	SummaryCounts(ctx context.Context) (packagesToday, awaitingPickup, deliveredToday, total int, err error)
	StatusDistribution(ctx context.Context) ([]StatusCount, error)
	TopRecipients(ctx context.Context, period ReportPeriod, limit int) ([]RecipientActivity, error)
	Departments(ctx context.Context) ([]string, error)
	ExportRows(ctx context.Context, filter PackageSearchFilter) ([]Package, error)
}

// ReportingService implements spec §6's dashboard and reporting endpoints.
// It is read-only: no write ever passes through it, so it needs no WriteQueue.
type ReportingService struct {
	repo ReportingRepository
}

// NewReportingService constructs a ReportingService.
func NewReportingService(repo ReportingRepository) *ReportingService {
	return &ReportingService{repo: repo}
}

// defaultTopRecipientsLimit matches the Python original's default of 5.
const defaultTopRecipientsLimit = 5

// Dashboard implements GET /dashboard and GET /admin/dashboard (spec §6):
// both render the same summary, scoped identically regardless of caller role
// since dashboard visibility is granted to every authenticated role (§4.6's
// permission table).
func (s *ReportingService) Dashboard(ctx context.Context) (DashboardSummary, error) {
	var summary DashboardSummary
	var err error
	summary.PackagesToday, summary.PackagesAwaitingPickup, summary.PackagesDeliveredToday, summary.TotalPackages, err = s.repo.SummaryCounts(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}
	if summary.StatusDistribution, err = s.repo.StatusDistribution(ctx); err != nil {
		return DashboardSummary{}, err
	}
	if summary.TopRecipients, err = s.repo.TopRecipients(ctx, PeriodMonth, defaultTopRecipientsLimit); err != nil {
		return DashboardSummary{}, err
	}
	return summary, nil
}

// Preview implements GET /admin/reports/preview: the same filtered package
// listing GET /admin/reports/export turns into CSV, but capped for on-screen
// display without forcing a download.
func (s *ReportingService) Preview(ctx context.Context, filter PackageSearchFilter) ([]Package, error) {
	return s.repo.ExportRows(ctx, filter.Normalize())
}

// Export implements GET /admin/reports/export: returns every matching row
// (CSV encoding is peripheral rendering, left to the HTTP layer).
func (s *ReportingService) Export(ctx context.Context, filter PackageSearchFilter) ([]Package, error) {
	filter.Limit = 0 // uncapped: exports are not the paginated search view
	return s.repo.ExportRows(ctx, filter)
}

// Departments lists the distinct recipient departments for report filter UIs.
func (s *ReportingService) Departments(ctx context.Context) ([]string, error) {
	return s.repo.Departments(ctx)
}

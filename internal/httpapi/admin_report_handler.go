package httpapi

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// reportingService is the subset of domain.ReportingService the report
// handler drives.
type reportingService interface {
	Dashboard(ctx context.Context) (domain.DashboardSummary, error)
	Preview(ctx context.Context, filter domain.PackageSearchFilter) ([]domain.Package, error)
	Export(ctx context.Context, filter domain.PackageSearchFilter) ([]domain.Package, error)
	Departments(ctx context.Context) ([]string, error)
}

// settingsService is the subset of domain.SettingsService the report/admin
// handler drives.
type settingsService interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value, actor string) error
}

// auditReader exposes the read-only audit log query the super_admin-only
// audit log route needs (store.AuditRepositoryReader).
type auditReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AuthEvent, error)
}

// AdminReportHandler implements spec §6's admin dashboard, reporting,
// settings, and audit log routes.
type AdminReportHandler struct {
	reports   reportingService
	settings  settingsService
	audit     auditReader
	responder responder
}

// NewAdminReportHandler constructs an AdminReportHandler.
func NewAdminReportHandler(reports reportingService, settings settingsService, audit auditReader, logger *slog.Logger) *AdminReportHandler {
	return &AdminReportHandler{reports: reports, settings: settings, audit: audit, responder: newResponder(logger)}
}

// Dashboard implements GET /admin/dashboard.
func (h *AdminReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Dashboard(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, summary)
}

// Reports implements GET /admin/reports: the available departments, for the
// report filter form.
func (h *AdminReportHandler) Reports(w http.ResponseWriter, r *http.Request) {
	departments, err := h.reports.Departments(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"departments": departments})
}

// Preview implements GET /admin/reports/preview.
func (h *AdminReportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	filter := parsePackageSearchFilter(r)
	packages, err := h.reports.Preview(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	views := make([]packageView, 0, len(packages))
	for _, p := range packages {
		views = append(views, toPackageView(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"packages": views})
}

// Export implements GET /admin/reports/export: the same filtered set,
// streamed as CSV.
func (h *AdminReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter := parsePackageSearchFilter(r)
	packages, err := h.reports.Export(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="package-export.csv"`)
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"id", "tracking_no", "carrier", "recipient_id", "status", "notes", "created_by", "created_at", "updated_at"})
	for _, p := range packages {
		_ = writer.Write([]string{
			p.ID, p.TrackingNo, p.Carrier, p.RecipientID, string(p.Status), p.Notes, p.CreatedBy,
			p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writer.Flush()
}

// Settings implements GET /admin/settings.
func (h *AdminReportHandler) Settings(w http.ResponseWriter, r *http.Request) {
	value, found, err := h.settings.Get(r.Context(), domain.QRBaseURLKey)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"qr_base_url": value, "qr_base_url_set": found})
}

type qrBaseURLRequest struct {
	Value string `json:"value" validate:"required"`
}

// SetQRBaseURL implements POST /admin/settings/qr-base-url.
func (h *AdminReportHandler) SetQRBaseURL(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	var req qrBaseURLRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.settings.Set(r.Context(), domain.QRBaseURLKey, req.Value, actor.UserID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true})
}

// AuditLogs implements GET /admin/audit-logs.
func (h *AdminReportHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"events": events})
}

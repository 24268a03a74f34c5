package httpapi

import (
	"context"
	"encoding/csv"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/mailroom-core/internal/domain"
)

// recipientService is the subset of domain.RecipientService the recipient
// handler drives.
type recipientService interface {
	GetByID(ctx context.Context, id string) (domain.Recipient, error)
	Search(ctx context.Context, query string) ([]domain.Recipient, error)
	CreateRecipient(ctx context.Context, r domain.Recipient, actorID string) (domain.Recipient, error)
	UpdateRecipient(ctx context.Context, id string, name, email, department, phone, location, actorID string) (domain.Recipient, error)
	Deactivate(ctx context.Context, id, actorID string) error
	ValidateImport(ctx context.Context, rows []domain.RecipientImportRow) domain.ImportReport
	ConfirmImport(ctx context.Context, report domain.ImportReport, actorID string) (int, error)
}

// RecipientHandler implements spec §6's recipient directory routes,
// including the admin CRUD and CSV bulk import surface.
type RecipientHandler struct {
	recipients recipientService
	responder  responder
}

// NewRecipientHandler constructs a RecipientHandler.
func NewRecipientHandler(recipients recipientService, logger *slog.Logger) *RecipientHandler {
	return &RecipientHandler{recipients: recipients, responder: newResponder(logger)}
}

type recipientView struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
	Location   string `json:"location"`
	Active     bool   `json:"active"`
}

func toRecipientView(r domain.Recipient) recipientView {
	return recipientView{
		ID: r.ID, EmployeeID: r.EmployeeID, Name: r.Name, Email: r.Email,
		Department: r.Department, Phone: r.Phone, Location: r.Location, Active: r.Active,
	}
}

// List implements GET /recipients: the full active directory.
func (h *RecipientHandler) List(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, false)
}

// Search implements GET /recipients/search, the one route spec.md names
// explicitly as content-negotiated: JSON for Accept: application/json,
// an HTML partial otherwise (SPEC_FULL.md §13).
func (h *RecipientHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, true)
}

func (h *RecipientHandler) search(w http.ResponseWriter, r *http.Request, negotiate bool) {
	query := r.URL.Query().Get("q")
	recipients, err := h.recipients.Search(r.Context(), query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if negotiate && !wantsJSON(r) {
		writeRecipientPartial(w, recipients)
		return
	}

	views := make([]recipientView, 0, len(recipients))
	for _, rec := range recipients {
		views = append(views, toRecipientView(rec))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"recipients": views})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeRecipientPartial renders the non-JSON branch of GET /recipients/search
// as a minimal HTML fragment, matching the original server-rendered partial
// spec.md describes; escaping every field defends against stored-XSS from
// recipient data entered through CSV import or the admin form.
func writeRecipientPartial(w http.ResponseWriter, recipients []domain.Recipient) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<ul class=\"recipient-results\">")
	for _, rec := range recipients {
		fmt.Fprintf(w, "<li data-recipient-id=\"%s\">%s &mdash; %s</li>",
			html.EscapeString(rec.ID), html.EscapeString(rec.Name), html.EscapeString(rec.Department))
	}
	fmt.Fprint(w, "</ul>")
}

// Get implements GET /admin/recipients/{id}/edit: reference data for the edit form.
func (h *RecipientHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recipients.GetByID(r.Context(), routeParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecipientView(rec))
}

type recipientForm struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
	Location   string `json:"location"`
}

// Create implements POST /admin/recipients/new.
func (h *RecipientHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	var form recipientForm
	if err := decodeJSON(r, &form); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	created, err := h.recipients.CreateRecipient(r.Context(), domain.Recipient{
		EmployeeID: form.EmployeeID, Name: form.Name, Email: form.Email,
		Department: form.Department, Phone: form.Phone, Location: form.Location,
	}, principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRecipientView(created))
}

// Update implements POST|PUT /admin/recipients/{id}/edit.
func (h *RecipientHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	var form recipientForm
	if err := decodeJSON(r, &form); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	updated, err := h.recipients.UpdateRecipient(r.Context(), routeParam(r, "id"), form.Name, form.Email, form.Department, form.Phone, form.Location, principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecipientView(updated))
}

// Deactivate implements POST /admin/recipients/{id}/deactivate.
func (h *RecipientHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	if err := h.recipients.Deactivate(r.Context(), routeParam(r, "id"), principal.UserID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true})
}

// ImportValidate implements POST /admin/recipients/import/validate: parses
// the uploaded CSV and returns the classified validate-only report (spec
// §4.8.2's two-phase import, kept out of domain.RecipientService since CSV
// decoding is an HTTP-boundary concern).
func (h *RecipientHandler) ImportValidate(w http.ResponseWriter, r *http.Request) {
	rows, err := parseRecipientCSV(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	report := h.recipients.ValidateImport(r.Context(), rows)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, report)
}

// ImportConfirm implements POST /admin/recipients/import/confirm: re-parses
// and re-validates the same file, then applies it. A stored session-scoped
// report between validate and confirm would require server-side import
// session state spec.md does not describe; re-validating is the safe
// alternative (§4.8.2's Open Question on import atomicity is resolved the
// same way: chunked, re-validated confirmation).
func (h *RecipientHandler) ImportConfirm(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	rows, err := parseRecipientCSV(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	report := h.recipients.ValidateImport(r.Context(), rows)
	applied, err := h.recipients.ConfirmImport(r.Context(), report, principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"applied": applied, "rejected": len(report.Invalid)})
}

func parseRecipientCSV(r *http.Request) ([]domain.RecipientImportRow, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, errBadRequestBody
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errBadRequestBody
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, errBadRequestBody
	}
	columns := make(map[string]int, len(header))
	for i, col := range header {
		columns[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var rows []domain.RecipientImportRow
	for {
		record, rerr := reader.Read()
		if rerr != nil {
			break
		}
		rows = append(rows, domain.RecipientImportRow{
			EmployeeID: csvField(record, columns, "employee_id"),
			Name:       csvField(record, columns, "name"),
			Email:      csvField(record, columns, "email"),
			Department: csvField(record, columns, "department"),
			Phone:      csvField(record, columns, "phone"),
			Location:   csvField(record, columns, "location"),
		})
	}
	return rows, nil
}

func csvField(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

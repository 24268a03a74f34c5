package httpapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/mailroom-core/internal/domain"
)

type recipientServiceStub struct {
	byID           domain.Recipient
	byIDErr        error
	searchResults  []domain.Recipient
	searchErr      error
	created        domain.Recipient
	createErr      error
	updated        domain.Recipient
	updateErr      error
	deactivateErr  error
	importReport   domain.ImportReport
	confirmApplied int
	confirmErr     error
}

func (s *recipientServiceStub) GetByID(ctx context.Context, id string) (domain.Recipient, error) {
	return s.byID, s.byIDErr
}
func (s *recipientServiceStub) Search(ctx context.Context, query string) ([]domain.Recipient, error) {
	return s.searchResults, s.searchErr
}
func (s *recipientServiceStub) CreateRecipient(ctx context.Context, r domain.Recipient, actorID string) (domain.Recipient, error) {
	return s.created, s.createErr
}
func (s *recipientServiceStub) UpdateRecipient(ctx context.Context, id string, name, email, department, phone, location, actorID string) (domain.Recipient, error) {
	return s.updated, s.updateErr
}
func (s *recipientServiceStub) Deactivate(ctx context.Context, id, actorID string) error {
	return s.deactivateErr
}
func (s *recipientServiceStub) ValidateImport(ctx context.Context, rows []domain.RecipientImportRow) domain.ImportReport {
	return s.importReport
}
func (s *recipientServiceStub) ConfirmImport(ctx context.Context, report domain.ImportReport, actorID string) (int, error) {
	return s.confirmApplied, s.confirmErr
}

func TestRecipientHandler_Search_ReturnsJSONWhenAccepted(t *testing.T) {
	t.Parallel()

	svc := &recipientServiceStub{searchResults: []domain.Recipient{{ID: "r1", Name: "Jane Doe"}}}
	handler := NewRecipientHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/recipients/search?q=jane", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	handler.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
}

func TestRecipientHandler_Search_ReturnsHTMLPartialByDefault(t *testing.T) {
	t.Parallel()

	svc := &recipientServiceStub{searchResults: []domain.Recipient{{ID: "r1", Name: "<script>alert(1)</script>", Department: "Ops"}}}
	handler := NewRecipientHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/recipients/search?q=jane", nil)
	rec := httptest.NewRecorder()

	handler.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("Content-Type = %q, want text/html", ct)
	}
	if strings.Contains(rec.Body.String(), "<script>") {
		t.Fatalf("expected recipient name to be HTML-escaped, got %s", rec.Body.String())
	}
}

func TestRecipientHandler_List_AlwaysReturnsJSON(t *testing.T) {
	t.Parallel()

	svc := &recipientServiceStub{searchResults: []domain.Recipient{{ID: "r1", Name: "Jane Doe"}}}
	handler := NewRecipientHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/recipients", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
}

func TestRecipientHandler_Create_RequiresAuthentication(t *testing.T) {
	t.Parallel()

	handler := NewRecipientHandler(&recipientServiceStub{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/admin/recipients/new", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRecipientHandler_Deactivate_PropagatesOpenPackages(t *testing.T) {
	t.Parallel()

	svc := &recipientServiceStub{deactivateErr: domain.ErrOpenPackages}
	handler := NewRecipientHandler(svc, nil)

	req := requestWithRouteParam(http.MethodPost, "/admin/recipients/r1/deactivate", nil, "id", "r1", domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin})
	rec := httptest.NewRecorder()
	handler.Deactivate(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRecipientHandler_ImportValidate_ParsesCSVAndReturnsReport(t *testing.T) {
	t.Parallel()

	svc := &recipientServiceStub{importReport: domain.ImportReport{
		Valid:   []domain.ImportRowResult{{}},
		Invalid: []domain.ImportRowResult{{}},
	}}
	handler := NewRecipientHandler(svc, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "recipients.csv")
	part.Write([]byte("employee_id,name,email,department,phone,location\nE1,Jane Doe,jane@example.com,Ops,555-0100,Bldg A\n"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/recipients/import/validate", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.ImportValidate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestRecipientHandler_ImportConfirm_RequiresAuthentication(t *testing.T) {
	t.Parallel()

	handler := NewRecipientHandler(&recipientServiceStub{}, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "recipients.csv")
	part.Write([]byte("employee_id,name,email,department,phone,location\n"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/recipients/import/confirm", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.ImportConfirm(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRecipientHandler_ImportConfirm_AppliesAndReportsCounts(t *testing.T) {
	t.Parallel()

	svc := &recipientServiceStub{
		importReport:   domain.ImportReport{Invalid: []domain.ImportRowResult{{}}},
		confirmApplied: 3,
	}
	handler := NewRecipientHandler(svc, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "recipients.csv")
	part.Write([]byte("employee_id,name,email,department,phone,location\n"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/recipients/import/confirm", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	ctx := ContextWithPrincipal(req.Context(), domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin})
	rec := httptest.NewRecorder()

	handler.ImportConfirm(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"applied":3`) {
		t.Fatalf("body = %s, want applied:3", rec.Body.String())
	}
}

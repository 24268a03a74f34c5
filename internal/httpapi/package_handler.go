package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// packageService is the subset of domain.PackageCore the package handler drives.
type packageService interface {
	RegisterPackage(ctx context.Context, input domain.RegisterPackageInput) (domain.Package, error)
	AttachPhoto(ctx context.Context, packageID, actorID string, upload domain.PendingUpload) (domain.Attachment, error)
	TransitionPackage(ctx context.Context, packageID string, newStatus domain.PackageStatus, notes, actorID string) (domain.Package, error)
	Timeline(ctx context.Context, packageID string) ([]domain.PackageEvent, error)
	Search(ctx context.Context, filter domain.PackageSearchFilter) (domain.PackageSearchResult, error)
	GetByID(ctx context.Context, id string) (domain.Package, error)
}

// recipientLookup is the subset of domain.RecipientService the package
// handler needs to build the "register package" form data and QR deep links.
type recipientLookup interface {
	GetByID(ctx context.Context, id string) (domain.Recipient, error)
	Search(ctx context.Context, query string) ([]domain.Recipient, error)
}

type deepLinker interface {
	PackageDeepLink(ctx context.Context, packageID string) (string, error)
}

const maxUploadMemory = 10 << 20 // 10 MiB, matches spec §6's 5 MiB photo cap plus form overhead

// PackageHandler implements spec §6's package lifecycle routes.
type PackageHandler struct {
	packages   packageService
	recipients recipientLookup
	settings   deepLinker
	responder  responder
	maxUpload  int64
}

// NewPackageHandler constructs a PackageHandler.
func NewPackageHandler(packages packageService, recipients recipientLookup, settings deepLinker, logger *slog.Logger, maxUpload int64) *PackageHandler {
	if maxUpload <= 0 {
		maxUpload = domain.DefaultAttachmentPolicy.MaxBytes
	}
	return &PackageHandler{packages: packages, recipients: recipients, settings: settings, responder: newResponder(logger), maxUpload: maxUpload}
}

type packageView struct {
	ID          string `json:"id"`
	TrackingNo  string `json:"tracking_no"`
	Carrier     string `json:"carrier"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toPackageView(p domain.Package) packageView {
	return packageView{
		ID: p.ID, TrackingNo: p.TrackingNo, Carrier: p.Carrier, RecipientID: p.RecipientID,
		Status: string(p.Status), Notes: p.Notes, CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano), UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewPackageForm implements GET /packages/new: reference data (the active
// recipient list) for the registration form.
func (h *PackageHandler) NewPackageForm(w http.ResponseWriter, r *http.Request) {
	recipients, err := h.recipients.Search(r.Context(), "")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"recipients": recipients})
}

// RegisterPackage implements POST /packages/new. Accepts a multipart form so
// the optional photo can ride alongside the package fields in one request,
// per spec §6/§4.8.1.
func (h *PackageHandler) RegisterPackage(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+maxUploadMemory)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input := domain.RegisterPackageInput{
		TrackingNo:  r.FormValue("tracking_no"),
		Carrier:     r.FormValue("carrier"),
		RecipientID: r.FormValue("recipient_id"),
		Notes:       r.FormValue("notes"),
		ActorID:     principal.UserID,
	}

	if file, header, err := r.FormFile("photo"); err == nil {
		defer file.Close()
		content, rerr := io.ReadAll(file)
		if rerr != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		input.Upload = &domain.PendingUpload{OriginalName: header.Filename, Content: content}
	}

	pkg, err := h.packages.RegisterPackage(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toPackageView(pkg))
}

// Search implements GET /packages: the paginated search projection.
func (h *PackageHandler) Search(w http.ResponseWriter, r *http.Request) {
	filter := parsePackageSearchFilter(r)
	result, err := h.packages.Search(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	views := make([]packageView, 0, len(result.Packages))
	for _, p := range result.Packages {
		views = append(views, toPackageView(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"packages": views, "total": result.Total})
}

func parsePackageSearchFilter(r *http.Request) domain.PackageSearchFilter {
	q := r.URL.Query()
	filter := domain.PackageSearchFilter{
		Query:      q.Get("q"),
		Department: q.Get("department"),
	}
	if status := q.Get("status"); status != "" {
		s := domain.PackageStatus(status)
		filter.Status = &s
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = &to
	}
	return filter
}

// Get implements GET /packages/{id}: the package plus its event timeline.
func (h *PackageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := routeParam(r, "id")
	pkg, err := h.packages.GetByID(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	events, err := h.packages.Timeline(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"package": toPackageView(pkg), "events": events})
}

type statusChangeRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

// UpdateStatus implements POST /packages/{id}/status.
func (h *PackageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}

	var req statusChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{Message: "validation failed", Errors: validationFieldErrors(err)})
		return
	}

	pkg, err := h.packages.TransitionPackage(r.Context(), routeParam(r, "id"), domain.PackageStatus(req.Status), req.Notes, principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toPackageView(pkg))
}

// AttachPhoto implements POST /packages/{id}/photo.
func (h *PackageHandler) AttachPhoto(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+maxUploadMemory)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	attachment, err := h.packages.AttachPhoto(r.Context(), routeParam(r, "id"), principal.UserID, domain.PendingUpload{OriginalName: header.Filename, Content: content})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, attachment)
}

// QRCodeLink implements both GET /packages/{id}/qrcode/download and GET
// /packages/{id}/qrcode/print: spec §6 names a rasterized QR image, but
// rendering one is out of this core's scope (SPEC_FULL.md §12) - what the
// core owns is the deep link an external renderer encodes.
func (h *PackageHandler) QRCodeLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.settings.PackageDeepLink(r.Context(), routeParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"url": link})
}

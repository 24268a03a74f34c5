package domain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
)

// packageTransitions is the fixed adjacency list of spec §4.8. Terminal
// states (delivered, returned) have no entry and therefore no successors.
var packageTransitions = map[PackageStatus][]PackageStatus{
	PackageRegistered:     {PackageAwaitingPickup, PackageOutForDelivery, PackageReturned},
	PackageAwaitingPickup: {PackageOutForDelivery, PackageDelivered, PackageReturned},
	PackageOutForDelivery: {PackageDelivered, PackageReturned},
}

// CanTransition reports whether from -> to is a legal package status transition.
func CanTransition(from, to PackageStatus) bool {
	for _, candidate := range packageTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// RecipientDirectory exposes the recipient lookups PackageCore needs to
// enforce spec §4.8's "recipient must be active at registration" precondition.
type RecipientDirectory interface {
	GetByID(ctx context.Context, id string) (Recipient, error)
}

// PackageRepository persists packages and their event log as an atomic unit.
type PackageRepository interface {
	Create(ctx context.Context, pkg Package, firstEvent PackageEvent, attachment *Attachment) (Package, error)
	GetByID(ctx context.Context, id string) (Package, error)
	Transition(ctx context.Context, pkg Package, event PackageEvent) (Package, error)
	AddAttachment(ctx context.Context, attachment Attachment) (Attachment, error)
	ListEvents(ctx context.Context, packageID string) ([]PackageEvent, error)
	Search(ctx context.Context, filter PackageSearchFilter) (PackageSearchResult, error)
}

// PackageSearchFilter is the input to the read projection of spec §4.8.3.
type PackageSearchFilter struct {
	Query      string
	Status     *PackageStatus
	Department string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

// MaxSearchLimit is L_max from spec §4.8.3.
const MaxSearchLimit = 100

// Normalize clamps Page/Limit to their spec-mandated bounds.
func (f PackageSearchFilter) Normalize() PackageSearchFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = MaxSearchLimit
	}
	if f.Limit > MaxSearchLimit {
		f.Limit = MaxSearchLimit
	}
	return f
}

// PackageSearchResult is the ordered, paginated output of a search.
type PackageSearchResult struct {
	Packages []Package
	Total    int
}

// AttachmentPolicy bounds upload validation (spec §4.8.1).
type AttachmentPolicy struct {
	MaxBytes     int64
	AllowedMIME  map[string]string // mime -> canonical extension
	UploadRoot   string
}

// DefaultAttachmentPolicy matches spec §4.8.1/§6 defaults: 5 MiB, jpeg/png/webp.
var DefaultAttachmentPolicy = AttachmentPolicy{
	MaxBytes: 5 * 1024 * 1024,
	AllowedMIME: map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	},
	UploadRoot: "uploads",
}

// ValidateContent sniffs MIME from bytes (never trusting the extension),
// enforces size, and returns the canonical extension for the detected type.
func (p AttachmentPolicy) ValidateContent(content []byte) (mimeType, ext string, err error) {
	maxBytes := p.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultAttachmentPolicy.MaxBytes
	}
	if int64(len(content)) > maxBytes {
		return "", "", &ValidationError{FieldErrors: map[string]string{"file": "exceeds maximum upload size"}}
	}
	detected := http.DetectContentType(content)
	// DetectContentType may append parameters (e.g. "text/plain; charset=utf-8");
	// the allow-list only cares about the base type.
	base, _, _ := strings.Cut(detected, ";")
	base = strings.TrimSpace(base)

	allowed := p.AllowedMIME
	if allowed == nil {
		allowed = DefaultAttachmentPolicy.AllowedMIME
	}
	canonicalExt, ok := allowed[base]
	if !ok {
		return "", "", &ValidationError{FieldErrors: map[string]string{"file": "unsupported content type"}}
	}
	return base, canonicalExt, nil
}

// StoragePath builds the "packages/YYYY/MM/<opaque>.<ext>" layout from
// spec §6, rejecting any path component that could traverse out of the root.
func (p AttachmentPolicy) StoragePath(now time.Time, opaqueID, ext string) (string, error) {
	if strings.ContainsAny(opaqueID, "/\\") || opaqueID == ".." || opaqueID == "" {
		return "", fmt.Errorf("invalid attachment identifier")
	}
	root := p.UploadRoot
	if root == "" {
		root = DefaultAttachmentPolicy.UploadRoot
	}
	rel := path.Join("packages", fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()), opaqueID+ext)
	full := path.Join(root, rel)
	if !strings.HasPrefix(full, path.Clean(root)+string('/')) && full != path.Clean(root) {
		return "", fmt.Errorf("attachment path escapes upload root")
	}
	return full, nil
}

// DetectMIMEFromReader is a convenience wrapper used by handlers that have
// already buffered the relevant sniffing prefix.
func DetectMIMEFromReader(prefix []byte) string {
	return http.DetectContentType(bytes.TrimRight(prefix, "\x00"))
}

// PackageCoreConfig bundles IdentityService-adjacent dependencies PackageCore needs.
type PackageCoreConfig struct {
	AttachmentPolicy AttachmentPolicy
}

// PackageCore implements the package lifecycle state machine, recipient
// invariants, and read projections of spec §4.8.
type PackageCore struct {
	packages   PackageRepository
	recipients RecipientDirectory
	audit      AuditSink
	cfg        PackageCoreConfig
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// NewPackageCore constructs a PackageCore with spec-default tunables.
func NewPackageCore(packages PackageRepository, recipients RecipientDirectory, audit AuditSink, newID func() string, cfg PackageCoreConfig) *PackageCore {
	return NewPackageCoreWithLogger(packages, recipients, audit, newID, cfg, nil)
}

// NewPackageCoreWithLogger constructs a PackageCore with a specified logger.
func NewPackageCoreWithLogger(packages PackageRepository, recipients RecipientDirectory, audit AuditSink, newID func() string, cfg PackageCoreConfig, logger *slog.Logger) *PackageCore {
	if cfg.AttachmentPolicy.MaxBytes <= 0 {
		cfg.AttachmentPolicy = DefaultAttachmentPolicy
	}
	if newID == nil {
		newID = func() string { return "" }
	}
	return &PackageCore{
		packages:   packages,
		recipients: recipients,
		audit:      audit,
		cfg:        cfg,
		now:        time.Now,
		newID:      newID,
		logger:     defaultLogger(logger),
	}
}

// NewPackageCoreForTest constructs a PackageCore with an injectable clock,
// for deterministic tests (testfixtures.ServiceFactory).
func NewPackageCoreForTest(packages PackageRepository, recipients RecipientDirectory, audit AuditSink, newID func() string, cfg PackageCoreConfig, now func() time.Time) *PackageCore {
	c := NewPackageCore(packages, recipients, audit, newID, cfg)
	if now != nil {
		c.now = now
	}
	return c
}

func (c *PackageCore) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, c.logger, "PackageCore", operation, attrs...)
}

func (c *PackageCore) recordAudit(ctx context.Context, kind AuthEventKind, actorID string, detail map[string]any) {
	if c.audit == nil {
		return
	}
	id := actorID
	if err := c.audit.Record(ctx, kind, &id, "", "", detail); err != nil {
		c.loggerWith(ctx, "recordAudit").ErrorContext(ctx, "audit record failed", "error", err)
	}
}

// RegisterPackageInput captures the caller-supplied fields for registration.
type RegisterPackageInput struct {
	TrackingNo  string
	Carrier     string
	RecipientID string
	Notes       string
	ActorID     string
	Upload      *PendingUpload
}

// PendingUpload carries the already-buffered bytes of an optional photo to
// validate and persist alongside registration.
type PendingUpload struct {
	OriginalName string
	Content      []byte
}

// RegisterPackage implements spec §4.8's registration operation: validates
// the recipient is active, then composes one atomic batch (package row,
// first PackageEvent, optional Attachment) and, after it commits, records
// the package_created audit event as a separate write.
func (c *PackageCore) RegisterPackage(ctx context.Context, input RegisterPackageInput) (pkg Package, err error) {
	logger := c.loggerWith(ctx, "RegisterPackage", "recipient_id", input.RecipientID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "package registration failed", "error_kind", ErrorKind(err))
			return
		}
		logger.With("package_id", pkg.ID).InfoContext(ctx, "package registered")
	}()

	if len(input.Notes) > 500 {
		err = &ValidationError{FieldErrors: map[string]string{"notes": "must be at most 500 characters"}}
		return
	}

	recipient, rerr := c.recipients.GetByID(ctx, input.RecipientID)
	if rerr != nil {
		err = rerr
		return
	}
	if !recipient.Active {
		err = ErrRecipientInactive
		return
	}

	now := c.now()
	newPkg := Package{
		ID:          c.newID(),
		TrackingNo:  input.TrackingNo,
		Carrier:     input.Carrier,
		RecipientID: input.RecipientID,
		Status:      PackageRegistered,
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	firstEvent := PackageEvent{
		ID:        c.newID(),
		PackageID: newPkg.ID,
		OldStatus: nil,
		NewStatus: PackageRegistered,
		ActorID:   input.ActorID,
		CreatedAt: now,
	}

	var attachment *Attachment
	if input.Upload != nil {
		var validated Attachment
		validated, err = c.buildAttachment(newPkg.ID, input.ActorID, *input.Upload, now)
		if err != nil {
			return
		}
		attachment = &validated
	}

	pkg, err = c.packages.Create(ctx, newPkg, firstEvent, attachment)
	if err != nil {
		return
	}
	c.recordAudit(ctx, EventPackageCreated, input.ActorID, PackageCreatedDetail{PackageID: pkg.ID, TrackingNo: pkg.TrackingNo}.Map())
	return
}

func (c *PackageCore) buildAttachment(packageID, actorID string, upload PendingUpload, now time.Time) (Attachment, error) {
	mimeType, ext, err := c.cfg.AttachmentPolicy.ValidateContent(upload.Content)
	if err != nil {
		return Attachment{}, err
	}
	id := c.newID()
	storedPath, err := c.cfg.AttachmentPolicy.StoragePath(now, id, ext)
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{
		ID:           id,
		PackageID:    packageID,
		OriginalName: upload.OriginalName,
		StoredPath:   storedPath,
		MIMEType:     mimeType,
		ByteSize:     int64(len(upload.Content)),
		UploaderID:   actorID,
		CreatedAt:    now,
	}, nil
}

// AttachPhoto validates and persists a photo for an already-registered
// package (spec §6 POST /packages/{id}/photo).
func (c *PackageCore) AttachPhoto(ctx context.Context, packageID, actorID string, upload PendingUpload) (Attachment, error) {
	now := c.now()
	attachment, err := c.buildAttachment(packageID, actorID, upload, now)
	if err != nil {
		return Attachment{}, err
	}
	return c.packages.AddAttachment(ctx, attachment)
}

// TransitionPackage implements spec §4.8's state machine: validates the
// transition against packageTransitions, then composes the atomic batch
// (status update, PackageEvent) and, after it commits, records the
// package_status_changed audit event as a separate write.
func (c *PackageCore) TransitionPackage(ctx context.Context, packageID string, newStatus PackageStatus, notes, actorID string) (pkg Package, err error) {
	logger := c.loggerWith(ctx, "TransitionPackage", "package_id", packageID, "new_status", newStatus)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "package transition failed", "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "package transitioned")
	}()

	current, gerr := c.packages.GetByID(ctx, packageID)
	if gerr != nil {
		err = gerr
		return
	}
	if current.Status.IsTerminal() || !CanTransition(current.Status, newStatus) {
		err = ErrInvalidTransition
		return
	}

	oldStatus := current.Status
	now := c.now()
	current.Status = newStatus
	current.UpdatedAt = now
	if notes != "" {
		current.Notes = notes
	}

	event := PackageEvent{
		ID:        c.newID(),
		PackageID: packageID,
		OldStatus: &oldStatus,
		NewStatus: newStatus,
		Notes:     notes,
		ActorID:   actorID,
		CreatedAt: now,
	}

	pkg, err = c.packages.Transition(ctx, current, event)
	if err != nil {
		return
	}
	c.recordAudit(ctx, EventPackageStatusChanged, actorID, PackageStatusChangedDetail{PackageID: packageID, OldStatus: oldStatus, NewStatus: newStatus}.Map())
	return
}

// GetByID returns a single package by its identifier.
func (c *PackageCore) GetByID(ctx context.Context, id string) (Package, error) {
	return c.packages.GetByID(ctx, id)
}

// Timeline returns a package's immutable event log, ordered by created_at
// ascending with identifier as the stable tie-break (spec §3).
func (c *PackageCore) Timeline(ctx context.Context, packageID string) ([]PackageEvent, error) {
	return c.packages.ListEvents(ctx, packageID)
}

// Search implements the read projection of spec §4.8.3.
func (c *PackageCore) Search(ctx context.Context, filter PackageSearchFilter) (PackageSearchResult, error) {
	return c.packages.Search(ctx, filter.Normalize())
}

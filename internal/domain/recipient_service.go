package domain

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// RecipientRepository persists recipient directory rows.
type RecipientRepository interface {
	GetByID(ctx context.Context, id string) (Recipient, error)
	GetByEmployeeID(ctx context.Context, employeeID string) (Recipient, error)
	Create(ctx context.Context, recipient Recipient) (Recipient, error)
	Update(ctx context.Context, recipient Recipient) (Recipient, error)
	HasOpenPackages(ctx context.Context, recipientID string) (bool, error)
	List(ctx context.Context, query string) ([]Recipient, error)
}

// RecipientService implements spec §4.8.2's recipient operations.
type RecipientService struct {
	recipients RecipientRepository
	audit      AuditSink
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// NewRecipientService constructs a RecipientService.
func NewRecipientService(recipients RecipientRepository, audit AuditSink, newID func() string) *RecipientService {
	return NewRecipientServiceWithLogger(recipients, audit, newID, nil)
}

// NewRecipientServiceWithLogger constructs a RecipientService with a specified logger.
func NewRecipientServiceWithLogger(recipients RecipientRepository, audit AuditSink, newID func() string, logger *slog.Logger) *RecipientService {
	if newID == nil {
		newID = func() string { return "" }
	}
	return &RecipientService{recipients: recipients, audit: audit, now: time.Now, newID: newID, logger: defaultLogger(logger)}
}

// NewRecipientServiceForTest constructs a RecipientService with an injectable
// clock, for deterministic tests (testfixtures.ServiceFactory).
func NewRecipientServiceForTest(recipients RecipientRepository, audit AuditSink, newID func() string, now func() time.Time) *RecipientService {
	s := NewRecipientService(recipients, audit, newID)
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RecipientService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RecipientService", operation, attrs...)
}

func validateRecipientFields(name, email, department, employeeID string) *ValidationError {
	verr := &ValidationError{}
	if strings.TrimSpace(employeeID) == "" {
		verr.add("employee_id", "is required")
	}
	if strings.TrimSpace(name) == "" {
		verr.add("name", "is required")
	}
	if strings.TrimSpace(department) == "" {
		verr.add("department", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		verr.add("email", "must be a valid email address")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// CreateRecipient implements spec §4.8.2's create rule: department required,
// email/employee_id uniqueness enforced at storage.
func (s *RecipientService) CreateRecipient(ctx context.Context, r Recipient, actorID string) (created Recipient, err error) {
	logger := s.loggerWith(ctx, "CreateRecipient", "employee_id", r.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "recipient creation failed", "error_kind", ErrorKind(err))
			return
		}
		logger.With("recipient_id", created.ID).InfoContext(ctx, "recipient created")
	}()

	r.Department = strings.TrimSpace(r.Department)
	if verr := validateRecipientFields(r.Name, r.Email, r.Department, r.EmployeeID); verr != nil {
		err = verr
		return
	}

	now := s.now()
	r.ID = s.newID()
	r.Active = true
	r.CreatedAt = now
	r.UpdatedAt = now

	created, err = s.recipients.Create(ctx, r)
	if err != nil {
		return
	}
	s.recordAudit(ctx, EventRecipientCreated, actorID, created.ID, nil)
	return
}

// UpdateRecipient implements spec §4.8.2's update rule: employee_id is
// immutable, department remains required.
func (s *RecipientService) UpdateRecipient(ctx context.Context, id string, name, email, department, phone, location, actorID string) (updated Recipient, err error) {
	logger := s.loggerWith(ctx, "UpdateRecipient", "recipient_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "recipient update failed", "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "recipient updated")
	}()

	existing, gerr := s.recipients.GetByID(ctx, id)
	if gerr != nil {
		err = gerr
		return
	}

	department = strings.TrimSpace(department)
	if verr := validateRecipientFields(name, email, department, existing.EmployeeID); verr != nil {
		err = verr
		return
	}

	existing.Name = name
	existing.Email = email
	existing.Department = department
	existing.Phone = phone
	existing.Location = location
	existing.UpdatedAt = s.now()

	updated, err = s.recipients.Update(ctx, existing)
	if err != nil {
		return
	}
	s.recordAudit(ctx, EventRecipientUpdated, actorID, updated.ID, nil)
	return
}

// Deactivate implements spec §4.8.2: rejected if the recipient has any
// package in a non-terminal state.
func (s *RecipientService) Deactivate(ctx context.Context, id, actorID string) error {
	hasOpen, err := s.recipients.HasOpenPackages(ctx, id)
	if err != nil {
		return err
	}
	if hasOpen {
		return ErrOpenPackages
	}
	existing, err := s.recipients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	existing.Active = false
	existing.UpdatedAt = s.now()
	if _, err := s.recipients.Update(ctx, existing); err != nil {
		return err
	}
	s.recordAudit(ctx, EventRecipientUpdated, actorID, id, nil)
	return nil
}

// GetByID returns a single recipient by id (spec §6 GET /recipients/{id} and
// the admin recipient edit page).
func (s *RecipientService) GetByID(ctx context.Context, id string) (Recipient, error) {
	return s.recipients.GetByID(ctx, id)
}

// Search implements spec §6's GET /recipients and GET /recipients/search:
// a substring match on name, email or employee_id, ordered by name, or the
// full directory when query is empty.
func (s *RecipientService) Search(ctx context.Context, query string) ([]Recipient, error) {
	return s.recipients.List(ctx, query)
}

func (s *RecipientService) recordAudit(ctx context.Context, kind AuthEventKind, actorID, recipientID string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if detail == nil {
		detail = map[string]any{}
	}
	detail["recipient_id"] = recipientID
	if err := s.audit.Record(ctx, kind, &actorID, "", "", detail); err != nil {
		s.loggerWith(ctx, "recordAudit").ErrorContext(ctx, "audit record failed", "error", err)
	}
}

// RecipientImportRow is one already-parsed row from a CSV bulk import. CSV
// parsing mechanics are out of scope (spec §1); this service accepts rows a
// caller has already decoded.
type RecipientImportRow struct {
	EmployeeID string
	Name       string
	Email      string
	Department string
	Phone      string
	Location   string
}

// ImportRowResult reports the outcome for a single import row.
type ImportRowResult struct {
	Row     RecipientImportRow
	Action  string // "insert" | "update"
	Errors  map[string]string
}

// ImportReport is the two-phase validate/confirm artifact of spec §4.8.2
// and SPEC_FULL.md §12 (the Python original's validate-then-confirm flow).
type ImportReport struct {
	Valid   []ImportRowResult
	Invalid []ImportRowResult
}

// importChunkSize is the number of rows ConfirmImport walks per group
// (spec §4.8.2, Open Question resolved in DESIGN.md). Each row is written by
// its own repository call; a group is not wrapped in a transaction.
const importChunkSize = 500

// ValidateImport validates every row and classifies it as insert or update
// by employee_id, without persisting anything.
func (s *RecipientService) ValidateImport(ctx context.Context, rows []RecipientImportRow) ImportReport {
	report := ImportReport{}
	for _, row := range rows {
		row.Department = strings.TrimSpace(row.Department)
		if verr := validateRecipientFields(row.Name, row.Email, row.Department, row.EmployeeID); verr != nil {
			report.Invalid = append(report.Invalid, ImportRowResult{Row: row, Errors: verr.FieldErrors})
			continue
		}
		action := "insert"
		if _, err := s.recipients.GetByEmployeeID(ctx, row.EmployeeID); err == nil {
			action = "update"
		}
		report.Valid = append(report.Valid, ImportRowResult{Row: row, Action: action})
	}
	return report
}

// ConfirmImport applies a previously validated report row by row, in groups
// of importChunkSize rows (spec §4.8.2). The rows are not applied atomically:
// on the first failing row it returns the error, and the rows applied before
// it stay applied.
func (s *RecipientService) ConfirmImport(ctx context.Context, report ImportReport, actorID string) (applied int, err error) {
	logger := s.loggerWith(ctx, "ConfirmImport", "row_count", len(report.Valid))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "recipient import failed", "error_kind", ErrorKind(err))
			return
		}
		logger.With("applied", applied).InfoContext(ctx, "recipient import applied")
	}()

	now := s.now()
	for start := 0; start < len(report.Valid); start += importChunkSize {
		end := start + importChunkSize
		if end > len(report.Valid) {
			end = len(report.Valid)
		}
		for _, result := range report.Valid[start:end] {
			row := result.Row
			if result.Action == "update" {
				existing, gerr := s.recipients.GetByEmployeeID(ctx, row.EmployeeID)
				if gerr != nil {
					err = gerr
					return
				}
				existing.Name, existing.Email, existing.Department = row.Name, row.Email, row.Department
				existing.Phone, existing.Location = row.Phone, row.Location
				existing.UpdatedAt = now
				if _, uerr := s.recipients.Update(ctx, existing); uerr != nil {
					err = uerr
					return
				}
			} else {
				newRecipient := Recipient{
					ID: s.newID(), EmployeeID: row.EmployeeID, Name: row.Name, Email: row.Email,
					Department: row.Department, Phone: row.Phone, Location: row.Location,
					Active: true, CreatedAt: now, UpdatedAt: now,
				}
				if _, cerr := s.recipients.Create(ctx, newRecipient); cerr != nil {
					err = cerr
					return
				}
			}
			applied++
		}
	}
	s.recordAudit(ctx, EventRecipientImported, actorID, "", RecipientImportedDetail{Applied: applied}.Map())
	return
}

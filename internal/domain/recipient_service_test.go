package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recipientRepoStub struct {
	byID         map[string]Recipient
	byEmployeeID map[string]Recipient
	hasOpen      bool
	hasOpenErr   error
}

func newRecipientRepoStub(recipients ...Recipient) *recipientRepoStub {
	stub := &recipientRepoStub{byID: map[string]Recipient{}, byEmployeeID: map[string]Recipient{}}
	for _, r := range recipients {
		stub.byID[r.ID] = r
		stub.byEmployeeID[r.EmployeeID] = r
	}
	return stub
}

func (s *recipientRepoStub) GetByID(ctx context.Context, id string) (Recipient, error) {
	r, ok := s.byID[id]
	if !ok {
		return Recipient{}, ErrNotFound
	}
	return r, nil
}

func (s *recipientRepoStub) GetByEmployeeID(ctx context.Context, employeeID string) (Recipient, error) {
	r, ok := s.byEmployeeID[employeeID]
	if !ok {
		return Recipient{}, ErrNotFound
	}
	return r, nil
}

func (s *recipientRepoStub) Create(ctx context.Context, r Recipient) (Recipient, error) {
	s.byID[r.ID] = r
	s.byEmployeeID[r.EmployeeID] = r
	return r, nil
}

func (s *recipientRepoStub) Update(ctx context.Context, r Recipient) (Recipient, error) {
	s.byID[r.ID] = r
	s.byEmployeeID[r.EmployeeID] = r
	return r, nil
}

func (s *recipientRepoStub) HasOpenPackages(ctx context.Context, recipientID string) (bool, error) {
	return s.hasOpen, s.hasOpenErr
}

func (s *recipientRepoStub) List(ctx context.Context, query string) ([]Recipient, error) {
	out := make([]Recipient, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out, nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestRecipientService_CreateRecipient_ValidatesFields(t *testing.T) {
	t.Parallel()

	repo := newRecipientRepoStub()
	audit := &auditSinkStub{}
	svc := NewRecipientServiceForTest(repo, audit, func() string { return "recipient-new" }, fixedClock(time.Unix(0, 0)))

	t.Run("requires a department", func(t *testing.T) {
		_, err := svc.CreateRecipient(context.Background(), Recipient{
			EmployeeID: "EMP001", Name: "Jane Doe", Email: "jane@example.com",
		}, "actor-1")
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("CreateRecipient() error = %v, want *ValidationError", err)
		}
		if _, ok := verr.FieldErrors["department"]; !ok {
			t.Fatalf("expected department field error, got %v", verr.FieldErrors)
		}
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		_, err := svc.CreateRecipient(context.Background(), Recipient{
			EmployeeID: "EMP001", Name: "Jane Doe", Email: "not-an-email", Department: "Eng",
		}, "actor-1")
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("CreateRecipient() error = %v, want *ValidationError", err)
		}
		if _, ok := verr.FieldErrors["email"]; !ok {
			t.Fatalf("expected email field error, got %v", verr.FieldErrors)
		}
	})

	t.Run("persists and audits on success", func(t *testing.T) {
		created, err := svc.CreateRecipient(context.Background(), Recipient{
			EmployeeID: "EMP001", Name: "Jane Doe", Email: "jane@example.com", Department: "Eng",
		}, "actor-1")
		if err != nil {
			t.Fatalf("CreateRecipient() error = %v", err)
		}
		if created.ID != "recipient-new" || !created.Active {
			t.Fatalf("created = %+v, want active with generated id", created)
		}
		if len(audit.records) != 1 || audit.records[0].kind != EventRecipientCreated {
			t.Fatalf("expected one recipient_created audit record, got %+v", audit.records)
		}
		if audit.records[0].detail["recipient_id"] != "recipient-new" {
			t.Fatalf("audit detail recipient_id = %v, want recipient-new", audit.records[0].detail["recipient_id"])
		}
	})
}

func TestRecipientService_UpdateRecipient_EmployeeIDImmutable(t *testing.T) {
	t.Parallel()

	existing := Recipient{ID: "r1", EmployeeID: "EMP001", Name: "Old Name", Email: "old@example.com", Department: "Eng"}
	repo := newRecipientRepoStub(existing)
	svc := NewRecipientServiceForTest(repo, &auditSinkStub{}, func() string { return "" }, fixedClock(time.Unix(100, 0)))

	updated, err := svc.UpdateRecipient(context.Background(), "r1", "New Name", "new@example.com", "Sales", "555-1234", "Floor 2", "actor-1")
	if err != nil {
		t.Fatalf("UpdateRecipient() error = %v", err)
	}
	if updated.EmployeeID != "EMP001" {
		t.Fatalf("updated.EmployeeID = %q, want unchanged EMP001", updated.EmployeeID)
	}
	if updated.Department != "Sales" {
		t.Fatalf("updated.Department = %q, want Sales", updated.Department)
	}
}

func TestRecipientService_Deactivate_RejectsWithOpenPackages(t *testing.T) {
	t.Parallel()

	existing := Recipient{ID: "r1", EmployeeID: "EMP001", Active: true}
	repo := newRecipientRepoStub(existing)
	repo.hasOpen = true
	svc := NewRecipientServiceForTest(repo, &auditSinkStub{}, func() string { return "" }, fixedClock(time.Unix(0, 0)))

	err := svc.Deactivate(context.Background(), "r1", "actor-1")
	if !errors.Is(err, ErrOpenPackages) {
		t.Fatalf("Deactivate() error = %v, want ErrOpenPackages", err)
	}
}

func TestRecipientService_Deactivate_SucceedsWhenClear(t *testing.T) {
	t.Parallel()

	existing := Recipient{ID: "r1", EmployeeID: "EMP001", Active: true}
	repo := newRecipientRepoStub(existing)
	svc := NewRecipientServiceForTest(repo, &auditSinkStub{}, func() string { return "" }, fixedClock(time.Unix(0, 0)))

	if err := svc.Deactivate(context.Background(), "r1", "actor-1"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if repo.byID["r1"].Active {
		t.Fatalf("expected recipient deactivated")
	}
}

func TestRecipientService_ValidateImport_ClassifiesInsertAndUpdate(t *testing.T) {
	t.Parallel()

	existing := Recipient{ID: "r1", EmployeeID: "EMP001", Name: "Existing", Email: "existing@example.com", Department: "Eng"}
	repo := newRecipientRepoStub(existing)
	svc := NewRecipientServiceForTest(repo, &auditSinkStub{}, func() string { return "new-id" }, fixedClock(time.Unix(0, 0)))

	report := svc.ValidateImport(context.Background(), []RecipientImportRow{
		{EmployeeID: "EMP001", Name: "Existing Updated", Email: "existing@example.com", Department: "Eng"},
		{EmployeeID: "EMP002", Name: "New Person", Email: "new@example.com", Department: "Sales"},
		{EmployeeID: "EMP003", Name: "", Email: "bad", Department: ""},
	})

	if len(report.Valid) != 2 {
		t.Fatalf("len(report.Valid) = %d, want 2", len(report.Valid))
	}
	if len(report.Invalid) != 1 {
		t.Fatalf("len(report.Invalid) = %d, want 1", len(report.Invalid))
	}
	if report.Valid[0].Action != "update" {
		t.Fatalf("report.Valid[0].Action = %q, want update", report.Valid[0].Action)
	}
	if report.Valid[1].Action != "insert" {
		t.Fatalf("report.Valid[1].Action = %q, want insert", report.Valid[1].Action)
	}
}

func TestRecipientService_ConfirmImport_AppliesAndAudits(t *testing.T) {
	t.Parallel()

	existing := Recipient{ID: "r1", EmployeeID: "EMP001", Name: "Existing", Email: "existing@example.com", Department: "Eng"}
	repo := newRecipientRepoStub(existing)
	audit := &auditSinkStub{}
	var nextID int
	svc := NewRecipientServiceForTest(repo, audit, func() string {
		nextID++
		return "generated-" + string(rune('a'+nextID))
	}, fixedClock(time.Unix(0, 0)))

	report := svc.ValidateImport(context.Background(), []RecipientImportRow{
		{EmployeeID: "EMP001", Name: "Existing Updated", Email: "existing@example.com", Department: "Eng"},
		{EmployeeID: "EMP002", Name: "New Person", Email: "new@example.com", Department: "Sales"},
	})

	applied, err := svc.ConfirmImport(context.Background(), report, "actor-1")
	if err != nil {
		t.Fatalf("ConfirmImport() error = %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied = %d, want 2", applied)
	}
	if repo.byEmployeeID["EMP001"].Name != "Existing Updated" {
		t.Fatalf("expected EMP001 updated in place")
	}
	if _, ok := repo.byEmployeeID["EMP002"]; !ok {
		t.Fatalf("expected EMP002 inserted")
	}
	if len(audit.records) != 1 || audit.records[0].kind != EventRecipientImported {
		t.Fatalf("expected one recipient_imported audit record, got %+v", audit.records)
	}
	if audit.records[0].detail["applied"] != 2 {
		t.Fatalf("audit detail applied = %v, want 2", audit.records[0].detail["applied"])
	}
}

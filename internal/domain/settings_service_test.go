package domain

import (
	"context"
	"errors"
	"testing"
)

type settingsRepoStub struct {
	values map[string]Setting
}

func newSettingsRepoStub() *settingsRepoStub {
	return &settingsRepoStub{values: map[string]Setting{}}
}

func (s *settingsRepoStub) Get(ctx context.Context, key string) (Setting, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *settingsRepoStub) Set(ctx context.Context, setting Setting) error {
	s.values[setting.Key] = setting
	return nil
}

func TestSettingsService_Set_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	repo := newSettingsRepoStub()
	audit := &auditSinkStub{}
	svc := NewSettingsService(repo, audit)

	err := svc.Set(context.Background(), QRBaseURLKey, "not-a-url", "admin-1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Set() error = %v, want *ValidationError", err)
	}
}

func TestSettingsService_Set_TrimsTrailingSlashAndAudits(t *testing.T) {
	t.Parallel()

	repo := newSettingsRepoStub()
	audit := &auditSinkStub{}
	svc := NewSettingsService(repo, audit)

	if err := svc.Set(context.Background(), QRBaseURLKey, "https://mailroom.example.com/", "admin-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := svc.Get(context.Background(), QRBaseURLKey)
	if err != nil || !found {
		t.Fatalf("Get() = (%q, %v, %v)", value, found, err)
	}
	if value != "https://mailroom.example.com" {
		t.Fatalf("value = %q, want trailing slash trimmed", value)
	}
	if len(audit.records) != 1 || audit.records[0].kind != EventSystemSettingsChange {
		t.Fatalf("expected one system_settings_change audit record, got %+v", audit.records)
	}
	if audit.records[0].detail["new_value"] != "https://mailroom.example.com" {
		t.Fatalf("audit detail new_value = %v, want trimmed url", audit.records[0].detail["new_value"])
	}
}

func TestSettingsService_PackageDeepLink_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	repo := newSettingsRepoStub()
	svc := NewSettingsService(repo, &auditSinkStub{})

	if _, err := svc.PackageDeepLink(context.Background(), "pkg-1"); err == nil {
		t.Fatalf("PackageDeepLink() error = nil, want error when base url unset")
	}

	if err := svc.Set(context.Background(), QRBaseURLKey, "https://mailroom.example.com", "admin-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	link, err := svc.PackageDeepLink(context.Background(), "pkg-1")
	if err != nil {
		t.Fatalf("PackageDeepLink() error = %v", err)
	}
	if link != "https://mailroom.example.com/packages/pkg-1" {
		t.Fatalf("link = %q, want deep link with package id", link)
	}
}

func TestSettingsService_Get_NilServiceReturnsZeroValues(t *testing.T) {
	t.Parallel()

	var svc *SettingsService
	value, found, err := svc.Get(context.Background(), QRBaseURLKey)
	if err != nil || found || value != "" {
		t.Fatalf("Get() on nil service = (%q, %v, %v), want zero values", value, found, err)
	}
}

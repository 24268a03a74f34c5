package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// QRBaseURLKey is the only settings key spec §4.4 currently names.
const QRBaseURLKey = "qr_base_url"

// SettingsRepository persists the key/value settings table. Implementations
// must tolerate the table being entirely absent on read (spec §4.4/§3).
type SettingsRepository interface {
	Get(ctx context.Context, key string) (Setting, bool, error)
	Set(ctx context.Context, setting Setting) error
}

// SettingsService implements SettingsStore (spec §4.4).
type SettingsService struct {
	settings SettingsRepository
	audit    AuditSink
	logger   *slog.Logger
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(settings SettingsRepository, audit AuditSink) *SettingsService {
	return NewSettingsServiceWithLogger(settings, audit, nil)
}

// NewSettingsServiceWithLogger constructs a SettingsService with a specified logger.
func NewSettingsServiceWithLogger(settings SettingsRepository, audit AuditSink, logger *slog.Logger) *SettingsService {
	return &SettingsService{settings: settings, audit: audit, logger: defaultLogger(logger)}
}

func (s *SettingsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SettingsService", operation, attrs...)
}

// Get returns the value for key, or ("", false, nil) if unset — including
// when the settings table itself does not exist yet.
func (s *SettingsService) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if s == nil || s.settings == nil {
		return "", false, nil
	}
	setting, found, err := s.settings.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	return setting.Value, true, nil
}

// Set validates and persists a setting value, emitting a
// system_settings_change audit event with the old and new values (spec §4.4).
func (s *SettingsService) Set(ctx context.Context, key, value, actor string) (err error) {
	logger := s.loggerWith(ctx, "Set", "key", key)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "setting update failed", "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "setting updated")
	}()

	if key == QRBaseURLKey {
		value, err = validateBaseURL(value)
		if err != nil {
			return
		}
	}

	oldValue, _, _ := s.Get(ctx, key)

	if err = s.settings.Set(ctx, Setting{Key: key, Value: value, UpdatedBy: actor}); err != nil {
		return
	}
	if s.audit != nil {
		if aerr := s.audit.Record(ctx, EventSystemSettingsChange, &actor, "", "", SystemSettingsChangeDetail{Key: key, OldValue: oldValue, NewValue: value}.Map()); aerr != nil {
			logger.ErrorContext(ctx, "audit record failed", "error", aerr)
		}
	}
	return nil
}

func validateBaseURL(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return "", &ValidationError{FieldErrors: map[string]string{"value": "must start with http:// or https://"}}
	}
	return strings.TrimSuffix(value, "/"), nil
}

// PackageDeepLink builds the URL a QR code would encode for a package (spec
// SPEC_FULL.md §12 supplemented feature). Rasterizing it into an image is
// out of scope; this returns the link the external collaborator encodes.
func (s *SettingsService) PackageDeepLink(ctx context.Context, packageID string) (string, error) {
	base, found, err := s.Get(ctx, QRBaseURLKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("qr base url not set")
	}
	return fmt.Sprintf("%s/packages/%s", base, packageID), nil
}

package domain

// Per-kind audit detail payloads, grounded on original_source/app/services/
// audit_service.py's per-event JSON shapes (spec §3's "bounded structured
// payload", left unenumerated by spec.md itself). Each type's Map converts
// it to the map[string]any AuditSink.Record accepts; the store layer is
// what actually serializes it to JSON text before persistence.

// LoginFailedDetail records why a login attempt was rejected.
type LoginFailedDetail struct {
	Reason string // "unknown_user" | "locked" | "bad_password"
}

func (d LoginFailedDetail) Map() map[string]any {
	return map[string]any{"reason": d.Reason}
}

// AccountLockedDetail records the failed-login count that triggered a lockout.
type AccountLockedDetail struct {
	FailedLoginCount int
}

func (d AccountLockedDetail) Map() map[string]any {
	return map[string]any{"failed_login_count": d.FailedLoginCount}
}

// PasswordResetDetail records which admin performed an out-of-band reset.
type PasswordResetDetail struct {
	ActorID string
}

func (d PasswordResetDetail) Map() map[string]any {
	return map[string]any{"actor_id": d.ActorID}
}

// UserCreatedDetail records the role assigned at creation.
type UserCreatedDetail struct {
	Role string
}

func (d UserCreatedDetail) Map() map[string]any {
	return map[string]any{"role": d.Role}
}

// PackageCreatedDetail records the identifying fields of a newly registered package.
type PackageCreatedDetail struct {
	PackageID  string
	TrackingNo string
}

func (d PackageCreatedDetail) Map() map[string]any {
	return map[string]any{"package_id": d.PackageID, "tracking_no": d.TrackingNo}
}

// PackageStatusChangedDetail records a lifecycle transition.
type PackageStatusChangedDetail struct {
	PackageID string
	OldStatus PackageStatus
	NewStatus PackageStatus
}

func (d PackageStatusChangedDetail) Map() map[string]any {
	return map[string]any{"package_id": d.PackageID, "old_status": d.OldStatus, "new_status": d.NewStatus}
}

// RecipientImportedDetail records how many rows a bulk CSV import applied.
type RecipientImportedDetail struct {
	Applied int
}

func (d RecipientImportedDetail) Map() map[string]any {
	return map[string]any{"applied": d.Applied}
}

// SystemSettingsChangeDetail records the before/after of a settings write
// (spec §4.4: "writes emit an audit event system_settings_change with old
// and new values").
type SystemSettingsChangeDetail struct {
	Key      string
	OldValue string
	NewValue string
}

func (d SystemSettingsChangeDetail) Map() map[string]any {
	return map[string]any{"key": d.Key, "old_value": d.OldValue, "new_value": d.NewValue}
}

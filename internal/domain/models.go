package domain

import "time"

// Role is a position in the fixed three-level hierarchy enforced by AccessPolicy.
type Role string

const (
	RoleOperator    Role = "operator"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Principal is the authenticated actor attached to the request context by
// AuthenticationBinding.
type Principal struct {
	UserID string
	Role   Role
}

// User is an account held by the mailroom core. PasswordHash is never
// serialized to API responses.
type User struct {
	ID                string
	Username          string
	PasswordHash      string
	FullName          string
	Role              Role
	Active            bool
	MustChangePassword bool
	PasswordHistory   []string
	FailedLoginCount  int
	LockedUntil       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session is an issued browser session.
type Session struct {
	ID           string
	UserID       string
	Token        string
	ExpiresAt    time.Time
	LastActivity time.Time
	ClientIP     string
	UserAgent    string
	CreatedAt    time.Time
}

// Recipient is a directory entry packages are addressed to.
type Recipient struct {
	ID         string
	EmployeeID string
	Name       string
	Email      string
	Department string
	Phone      string
	Location   string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PackageStatus is one of the five fixed lifecycle states (spec §4.8).
type PackageStatus string

const (
	PackageRegistered     PackageStatus = "registered"
	PackageAwaitingPickup PackageStatus = "awaiting_pickup"
	PackageOutForDelivery PackageStatus = "out_for_delivery"
	PackageDelivered      PackageStatus = "delivered"
	PackageReturned       PackageStatus = "returned"
)

// IsTerminal reports whether no further transitions are permitted.
func (s PackageStatus) IsTerminal() bool {
	return s == PackageDelivered || s == PackageReturned
}

// Package is a tracked parcel.
type Package struct {
	ID          string
	TrackingNo  string
	Carrier     string
	RecipientID string
	Status      PackageStatus
	Notes       string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PackageEvent is an append-only entry in a package's lifecycle timeline.
type PackageEvent struct {
	ID        string
	PackageID string
	OldStatus *PackageStatus
	NewStatus PackageStatus
	Notes     string
	ActorID   string
	CreatedAt time.Time
}

// Attachment is a validated uploaded file associated with a package.
type Attachment struct {
	ID           string
	PackageID    string
	OriginalName string
	StoredPath   string
	MIMEType     string
	ByteSize     int64
	UploaderID   string
	CreatedAt    time.Time
}

// AuthEventKind enumerates the security- and data-relevant events AuditSink records.
type AuthEventKind string

const (
	EventLogin                   AuthEventKind = "login"
	EventLoginFailed              AuthEventKind = "login_failed"
	EventLogout                   AuthEventKind = "logout"
	EventPasswordChanged          AuthEventKind = "password_changed"
	EventPasswordReset            AuthEventKind = "password_reset"
	EventUserCreated              AuthEventKind = "user_created"
	EventUserUpdated              AuthEventKind = "user_updated"
	EventUserDeactivated          AuthEventKind = "user_deactivated"
	EventAccountLocked            AuthEventKind = "account_locked"
	EventAccountUnlocked          AuthEventKind = "account_unlocked"
	EventPackageCreated           AuthEventKind = "package_created"
	EventPackageStatusChanged     AuthEventKind = "package_status_changed"
	EventRecipientCreated         AuthEventKind = "recipient_created"
	EventRecipientUpdated         AuthEventKind = "recipient_updated"
	EventRecipientImported        AuthEventKind = "recipient_imported"
	EventExportGenerated          AuthEventKind = "export_generated"
	EventSystemSettingsChange     AuthEventKind = "system_settings_change"
)

// AuthEvent is an append-only audit record. Detail is a bounded, structured
// payload; it must never carry secrets (passwords, raw tokens).
type AuthEvent struct {
	ID              string         `json:"id"`
	UserID          *string        `json:"user_id,omitempty"`
	Kind            AuthEventKind  `json:"kind"`
	UsernameAttempt string         `json:"username_attempt,omitempty"`
	ClientIP        string         `json:"client_ip,omitempty"`
	Detail          map[string]any `json:"detail,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Setting is a process-wide key/value tunable.
type Setting struct {
	Key       string
	Value     string
	UpdatedBy string
	UpdatedAt time.Time
}

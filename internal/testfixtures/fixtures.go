package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

var (
	userCounter      uint64
	recipientCounter uint64
	packageCounter   uint64
	sessionCounter   uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record that can be materialised
// for domain or store tests.
type UserFixture struct {
	ID           string
	Username     string
	PasswordHash string
	FullName     string
	Role         domain.Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:           id,
		Username:     fmt.Sprintf("operator%03d", idx),
		PasswordHash: fmt.Sprintf("$argon2id$hash-%03d", idx),
		FullName:     fmt.Sprintf("Operator %03d", idx),
		Role:         domain.RoleOperator,
		Active:       true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

// WithUserUsername overrides the generated username.
func WithUserUsername(username string) UserOption {
	return func(f *UserFixture) { f.Username = username }
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) { f.PasswordHash = hash }
}

// WithUserRole sets the role on the generated fixture.
func WithUserRole(role domain.Role) UserOption {
	return func(f *UserFixture) { f.Role = role }
}

// WithUserActive sets the active flag on the fixture.
func WithUserActive(active bool) UserOption {
	return func(f *UserFixture) { f.Active = active }
}

// Domain returns the fixture as a domain.User value.
func (f UserFixture) Domain() domain.User {
	return domain.User{
		ID:           f.ID,
		Username:     f.Username,
		PasswordHash: f.PasswordHash,
		FullName:     f.FullName,
		Role:         f.Role,
		Active:       f.Active,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Principal returns a domain.Principal derived from the fixture.
func (f UserFixture) Principal() domain.Principal {
	return domain.Principal{UserID: f.ID, Role: f.Role}
}

// -------------------------- Recipient fixtures ---------------------------

// RecipientFixture represents a deterministic directory entry.
type RecipientFixture struct {
	ID         string
	EmployeeID string
	Name       string
	Email      string
	Department string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RecipientOption configures the generated recipient fixture.
type RecipientOption func(*RecipientFixture)

// NewRecipientFixture returns a deterministic recipient fixture with optional overrides.
func NewRecipientFixture(opts ...RecipientOption) RecipientFixture {
	idx := atomic.AddUint64(&recipientCounter, 1)
	id := fmt.Sprintf("recipient-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := RecipientFixture{
		ID:         id,
		EmployeeID: fmt.Sprintf("EMP%04d", idx),
		Name:       fmt.Sprintf("Recipient %03d", idx),
		Email:      fmt.Sprintf("recipient%03d@example.com", idx),
		Department: "Engineering",
		Active:     true,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRecipientID overrides the generated recipient ID.
func WithRecipientID(id string) RecipientOption {
	return func(f *RecipientFixture) { f.ID = id }
}

// WithRecipientActive sets the active flag on the fixture.
func WithRecipientActive(active bool) RecipientOption {
	return func(f *RecipientFixture) { f.Active = active }
}

// WithRecipientDepartment overrides the department.
func WithRecipientDepartment(department string) RecipientOption {
	return func(f *RecipientFixture) { f.Department = department }
}

// Domain returns the fixture as a domain.Recipient value.
func (f RecipientFixture) Domain() domain.Recipient {
	return domain.Recipient{
		ID:         f.ID,
		EmployeeID: f.EmployeeID,
		Name:       f.Name,
		Email:      f.Email,
		Department: f.Department,
		Active:     f.Active,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// --------------------------- Package fixtures -----------------------------

// PackageFixture represents a deterministic tracked parcel.
type PackageFixture struct {
	ID          string
	TrackingNo  string
	RecipientID string
	Status      domain.PackageStatus
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PackageOption configures the generated package fixture.
type PackageOption func(*PackageFixture)

// NewPackageFixture returns a deterministic package fixture with optional overrides.
func NewPackageFixture(opts ...PackageOption) PackageFixture {
	idx := atomic.AddUint64(&packageCounter, 1)
	id := fmt.Sprintf("package-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := PackageFixture{
		ID:          id,
		TrackingNo:  fmt.Sprintf("1Z%09dTRK", idx),
		RecipientID: fmt.Sprintf("recipient-%03d", idx),
		Status:      domain.PackageRegistered,
		CreatedBy:   fmt.Sprintf("user-%03d", idx),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithPackageID overrides the generated package ID.
func WithPackageID(id string) PackageOption {
	return func(f *PackageFixture) { f.ID = id }
}

// WithPackageRecipientID overrides the associated recipient.
func WithPackageRecipientID(id string) PackageOption {
	return func(f *PackageFixture) { f.RecipientID = id }
}

// WithPackageStatus sets the lifecycle status.
func WithPackageStatus(status domain.PackageStatus) PackageOption {
	return func(f *PackageFixture) { f.Status = status }
}

// Domain returns the fixture as a domain.Package value.
func (f PackageFixture) Domain() domain.Package {
	return domain.Package{
		ID:          f.ID,
		TrackingNo:  f.TrackingNo,
		RecipientID: f.RecipientID,
		Status:      f.Status,
		CreatedBy:   f.CreatedBy,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// ---------------------------- Session fixtures ----------------------------

// SessionFixture represents a deterministic issued session.
type SessionFixture struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic session fixture with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	id := fmt.Sprintf("session-%03d", idx)
	created := referenceTime
	fixture := SessionFixture{
		ID:        id,
		UserID:    fmt.Sprintf("user-%03d", idx),
		Token:     fmt.Sprintf("token-%03d", idx),
		ExpiresAt: created.Add(30 * time.Minute),
		CreatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionUserID sets the user ID.
func WithSessionUserID(id string) SessionOption {
	return func(f *SessionFixture) { f.UserID = id }
}

// WithSessionExpiresAt sets the expiration timestamp.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) { f.ExpiresAt = t }
}

// Domain returns the fixture as a domain.Session value.
func (f SessionFixture) Domain() domain.Session {
	return domain.Session{
		ID:           f.ID,
		UserID:       f.UserID,
		Token:        f.Token,
		ExpiresAt:    f.ExpiresAt,
		LastActivity: f.CreatedAt,
		CreatedAt:    f.CreatedAt,
	}
}

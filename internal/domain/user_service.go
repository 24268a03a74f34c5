package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// UserManagementService implements the admin-facing account lifecycle of
// spec §4.6: create/list/update/deactivate operators and admins, gated by
// AccessPolicy's field-level rules (self-modification and role-scoping).
type UserManagementService struct {
	users    UserRepository
	sessions SessionRepository
	audit    AuditSink
	policy   *AccessPolicy
	newID    func() string
	now      func() time.Time
	logger   *slog.Logger
}

// NewUserManagementService constructs a UserManagementService.
func NewUserManagementService(users UserRepository, sessions SessionRepository, audit AuditSink, policy *AccessPolicy, newID func() string) *UserManagementService {
	return NewUserManagementServiceWithLogger(users, sessions, audit, policy, newID, nil)
}

// NewUserManagementServiceWithLogger constructs a UserManagementService with a specified logger.
func NewUserManagementServiceWithLogger(users UserRepository, sessions SessionRepository, audit AuditSink, policy *AccessPolicy, newID func() string, logger *slog.Logger) *UserManagementService {
	if newID == nil {
		newID = func() string { return "" }
	}
	return &UserManagementService{
		users: users, sessions: sessions, audit: audit, policy: policy,
		newID: newID, now: time.Now, logger: defaultLogger(logger),
	}
}

// NewUserManagementServiceForTest constructs a UserManagementService with an
// injectable clock, for deterministic tests (testfixtures.ServiceFactory).
func NewUserManagementServiceForTest(users UserRepository, sessions SessionRepository, audit AuditSink, policy *AccessPolicy, newID func() string, now func() time.Time) *UserManagementService {
	s := NewUserManagementService(users, sessions, audit, policy, newID)
	if now != nil {
		s.now = now
	}
	return s
}

func (s *UserManagementService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserManagementService", operation, attrs...)
}

func (s *UserManagementService) recordAudit(ctx context.Context, kind AuthEventKind, actorID, targetID string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if detail == nil {
		detail = map[string]any{}
	}
	detail["target_user_id"] = targetID
	if err := s.audit.Record(ctx, kind, &actorID, "", "", detail); err != nil {
		s.loggerWith(ctx, "recordAudit").ErrorContext(ctx, "audit record failed", "error", err)
	}
}

func validateUsername(username string) *ValidationError {
	verr := &ValidationError{}
	username = strings.TrimSpace(username)
	if username == "" {
		verr.add("username", "is required")
	} else if len(username) < 3 {
		verr.add("username", "must be at least 3 characters")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// CreateUserInput is the caller-supplied data for an administrator-initiated
// account creation.
type CreateUserInput struct {
	Username         string
	FullName         string
	Role             Role
	InitialPassword  string
}

// CreateUser implements spec §4.6: only super_admin may create admin or
// super_admin accounts; admins may only create operator accounts.
func (s *UserManagementService) CreateUser(ctx context.Context, input CreateUserInput, actor Principal) (created User, err error) {
	logger := s.loggerWith(ctx, "CreateUser", "username", input.Username, "role", input.Role)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user creation failed", "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", created.ID).InfoContext(ctx, "user created")
	}()

	if decision := s.canCreateRole(actor, input.Role); !decision.Allowed {
		err = ErrForbidden
		return
	}

	input.Username = strings.TrimSpace(input.Username)
	if verr := validateUsername(input.Username); verr != nil {
		err = verr
		return
	}
	if verr := DefaultPasswordPolicy.CheckStrength(input.InitialPassword); verr != nil {
		err = verr
		return
	}

	digest, herr := CreatePasswordHash(input.InitialPassword, DefaultArgon2idParams)
	if herr != nil {
		err = herr
		return
	}

	now := s.now()
	newUser := User{
		ID:                  s.newID(),
		Username:            input.Username,
		PasswordHash:        digest,
		FullName:            input.FullName,
		Role:                input.Role,
		Active:              true,
		MustChangePassword:  true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	created, err = s.users.Create(ctx, newUser)
	if err != nil {
		return
	}
	s.recordAudit(ctx, EventUserCreated, actor.UserID, created.ID, UserCreatedDetail{Role: string(created.Role)}.Map())
	return
}

func (s *UserManagementService) canCreateRole(actor Principal, targetRole Role) Decision {
	if s.policy == nil {
		return Deny("access_policy_not_configured")
	}
	switch actor.Role {
	case RoleSuperAdmin:
		if s.policy.CanPerform(actor.Role, ActionManageAdmins).Allowed || s.policy.CanPerform(actor.Role, ActionManageSuperAdmins).Allowed {
			return Allow
		}
		return Deny("not_permitted")
	case RoleAdmin:
		if targetRole == RoleOperator && s.policy.CanPerform(actor.Role, ActionManageOperators).Allowed {
			return Allow
		}
		return Deny("not_permitted")
	default:
		return Deny("not_permitted")
	}
}

// UpdateUserInput is the mutable subset of a user an administrator may edit.
type UpdateUserInput struct {
	FullName string
	Role     *Role // nil leaves the role unchanged
}

// UpdateUser implements spec §4.6's field-level rules via AccessPolicy:
// an admin may only act on operator targets, and a role change (when Role is
// non-nil) is permitted only for super_admin and never onto the actor itself.
func (s *UserManagementService) UpdateUser(ctx context.Context, targetID string, input UpdateUserInput, actor Principal) (updated User, err error) {
	logger := s.loggerWith(ctx, "UpdateUser", "target_user_id", targetID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user update failed", "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user updated")
	}()

	existing, gerr := s.users.GetByID(ctx, targetID)
	if gerr != nil {
		err = gerr
		return
	}

	if decision := s.policy.CanActOn(actor.UserID, actor.Role, targetID, existing.Role); !decision.Allowed {
		err = ErrForbidden
		return
	}
	if input.Role != nil && *input.Role != existing.Role {
		if decision := s.policy.CanChangeRole(actor.UserID, actor.Role, targetID); !decision.Allowed {
			err = ErrForbidden
			return
		}
		existing.Role = *input.Role
	}

	existing.FullName = input.FullName
	existing.UpdatedAt = s.now()

	updated, err = s.users.Update(ctx, existing)
	if err != nil {
		return
	}
	s.recordAudit(ctx, EventUserUpdated, actor.UserID, updated.ID, nil)
	return
}

// Deactivate implements spec §4.6's no-self-deactivation rule and scoping.
func (s *UserManagementService) Deactivate(ctx context.Context, targetID string, actor Principal) (err error) {
	logger := s.loggerWith(ctx, "Deactivate", "target_user_id", targetID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user deactivation failed", "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user deactivated")
	}()

	existing, gerr := s.users.GetByID(ctx, targetID)
	if gerr != nil {
		err = gerr
		return
	}
	if decision := s.policy.CanDeactivate(actor.UserID, actor.Role, targetID, existing.Role); !decision.Allowed {
		err = ErrForbidden
		return
	}

	existing.Active = false
	existing.UpdatedAt = s.now()
	if _, err = s.users.Update(ctx, existing); err != nil {
		return
	}
	if s.sessions != nil {
		if serr := s.sessions.DeleteAllForUser(ctx, targetID); serr != nil {
			err = serr
			return
		}
	}
	s.recordAudit(ctx, EventUserDeactivated, actor.UserID, targetID, nil)
	return nil
}

// Unlock clears a lockout window ahead of its natural expiry (spec §4.5's
// lockout is time-bound; administrators may also clear it directly).
func (s *UserManagementService) Unlock(ctx context.Context, targetID string, actor Principal) (err error) {
	logger := s.loggerWith(ctx, "Unlock", "target_user_id", targetID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user unlock failed", "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user unlocked")
	}()

	existing, gerr := s.users.GetByID(ctx, targetID)
	if gerr != nil {
		err = gerr
		return
	}
	if decision := s.policy.CanActOn(actor.UserID, actor.Role, targetID, existing.Role); !decision.Allowed {
		err = ErrForbidden
		return
	}

	existing.LockedUntil = nil
	existing.FailedLoginCount = 0
	existing.UpdatedAt = s.now()
	if _, err = s.users.Update(ctx, existing); err != nil {
		return
	}
	s.recordAudit(ctx, EventAccountUnlocked, actor.UserID, targetID, nil)
	return nil
}

// userLister is implemented by the store-layer user repository for the
// admin listing page; it is intentionally separate from UserRepository
// (which IdentityService and this service use for point lookups) because
// only the admin listing needs to enumerate the whole table.
type userLister interface {
	List(ctx context.Context) ([]User, error)
}

// GetUser returns a single account for the admin edit-user form (spec §6
// GET /admin/users/{id}/edit), gated the same as List.
func (s *UserManagementService) GetUser(ctx context.Context, actor Principal, targetID string) (User, error) {
	if s.policy == nil || !s.policy.CanPerform(actor.Role, ActionManageOperators).Allowed {
		return User{}, ErrForbidden
	}
	return s.users.GetByID(ctx, targetID)
}

// List returns every account for the administrative user listing (spec
// §6 GET /admin/users), ordered by username for stable pagination-free display.
func (s *UserManagementService) List(ctx context.Context, actor Principal) ([]User, error) {
	lister, ok := s.users.(userLister)
	if !ok {
		return nil, fmt.Errorf("user repository does not support listing")
	}
	if s.policy == nil || !s.policy.CanPerform(actor.Role, ActionManageOperators).Allowed {
		return nil, ErrForbidden
	}
	users, err := lister.List(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

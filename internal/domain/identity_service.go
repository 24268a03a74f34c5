package domain

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// UserRepository exposes the persistence interactions IdentityService needs
// for user accounts. Writes pass through the Store's WriteQueue inside the
// implementation; IdentityService itself is unaware of that mechanism.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, user User) (User, error)
}

// SessionRepository exposes the persistence interactions for issued sessions.
type SessionRepository interface {
	Create(ctx context.Context, session Session) (Session, error)
	GetByToken(ctx context.Context, token string) (Session, error)
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]Session, error)
	Renew(ctx context.Context, sessionID string, expiresAt, lastActivity time.Time) error
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// AuditSink records security- and data-relevant events. Implementations must
// never fail the originating business operation; failures are logged only.
type AuditSink interface {
	Record(ctx context.Context, kind AuthEventKind, userID *string, usernameAttempt, clientIP string, detail map[string]any) error
}

// IdentityServiceConfig bundles the tunables spec §4.5 and §6 name.
type IdentityServiceConfig struct {
	Argon2Params       Argon2idParams
	PasswordPolicy     PasswordPolicy
	SessionTTL         time.Duration // T_session, default 30m
	RenewalWindow      time.Duration // T_renew, default 60s
	MaxConcurrentSess  int           // N_sess, default 3
	MaxFailedLogins    int           // K_max, default 5
	LockoutDuration    time.Duration // D_lock, default 30m
	LoginFailureDelay  time.Duration // constant-time delay on unknown user
}

// DefaultIdentityServiceConfig matches spec §4.5's stated defaults.
var DefaultIdentityServiceConfig = IdentityServiceConfig{
	Argon2Params:      DefaultArgon2idParams,
	PasswordPolicy:    DefaultPasswordPolicy,
	SessionTTL:        30 * time.Minute,
	RenewalWindow:     60 * time.Second,
	MaxConcurrentSess: 3,
	MaxFailedLogins:   5,
	LockoutDuration:   30 * time.Minute,
	LoginFailureDelay: 200 * time.Millisecond,
}

// IdentityService implements password lifecycle, login outcome, and session
// lifecycle per spec §4.5.
type IdentityService struct {
	users    UserRepository
	sessions SessionRepository
	audit    AuditSink
	policy   *AccessPolicy
	cfg      IdentityServiceConfig
	now      func() time.Time
	token    func() (string, error)
	newID    func() string
	logger   *slog.Logger
}

// NewIdentityService constructs an IdentityService with the provided
// dependencies and spec-default tunables.
func NewIdentityService(users UserRepository, sessions SessionRepository, audit AuditSink, policy *AccessPolicy, cfg IdentityServiceConfig, newID func() string) *IdentityService {
	return NewIdentityServiceWithLogger(users, sessions, audit, policy, cfg, newID, nil)
}

// NewIdentityServiceWithLogger constructs an IdentityService with a specified logger.
func NewIdentityServiceWithLogger(users UserRepository, sessions SessionRepository, audit AuditSink, policy *AccessPolicy, cfg IdentityServiceConfig, newID func() string, logger *slog.Logger) *IdentityService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultIdentityServiceConfig.SessionTTL
	}
	if cfg.RenewalWindow <= 0 {
		cfg.RenewalWindow = DefaultIdentityServiceConfig.RenewalWindow
	}
	if cfg.MaxConcurrentSess <= 0 {
		cfg.MaxConcurrentSess = DefaultIdentityServiceConfig.MaxConcurrentSess
	}
	if cfg.MaxFailedLogins <= 0 {
		cfg.MaxFailedLogins = DefaultIdentityServiceConfig.MaxFailedLogins
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultIdentityServiceConfig.LockoutDuration
	}
	if cfg.LoginFailureDelay <= 0 {
		cfg.LoginFailureDelay = DefaultIdentityServiceConfig.LoginFailureDelay
	}
	if cfg.Argon2Params == (Argon2idParams{}) {
		cfg.Argon2Params = DefaultArgon2idParams
	}
	if cfg.PasswordPolicy == (PasswordPolicy{}) {
		cfg.PasswordPolicy = DefaultPasswordPolicy
	}
	if newID == nil {
		newID = func() string { return "" }
	}
	return &IdentityService{
		users:    users,
		sessions: sessions,
		audit:    audit,
		policy:   policy,
		cfg:      cfg,
		now:      time.Now,
		token:    randomToken,
		newID:    newID,
		logger:   defaultLogger(logger),
	}
}

// NewIdentityServiceForTest constructs an IdentityService with an injectable
// clock, token generator, and id generator, for deterministic tests
// (testfixtures.ServiceFactory).
func NewIdentityServiceForTest(users UserRepository, sessions SessionRepository, audit AuditSink, policy *AccessPolicy, cfg IdentityServiceConfig, newID func() string, now func() time.Time, token func() (string, error)) *IdentityService {
	s := NewIdentityServiceWithLogger(users, sessions, audit, policy, cfg, newID, nil)
	if now != nil {
		s.now = now
	}
	if token != nil {
		s.token = token
	}
	return s
}

func (s *IdentityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "IdentityService", operation, attrs...)
}

// randomToken generates a cryptographically random, URL-safe token of at
// least 256 bits, per spec §4.5 session creation.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *IdentityService) recordAudit(ctx context.Context, kind AuthEventKind, userID *string, username, clientIP string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, kind, userID, username, clientIP, detail); err != nil {
		s.loggerWith(ctx, "recordAudit").ErrorContext(ctx, "audit record failed", "error", err, "kind", kind)
	}
}

// LoginResult captures a successful login outcome.
type LoginResult struct {
	User    User
	Session Session
}

// Login implements the login algorithm of spec §4.5.
func (s *IdentityService) Login(ctx context.Context, username, password, clientIP, userAgent string) (result LoginResult, err error) {
	if s == nil || s.users == nil || s.sessions == nil {
		err = fmt.Errorf("identity service not configured")
		return
	}

	username = strings.TrimSpace(username)
	logger := s.loggerWith(ctx, "Login", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "login succeeded")
	}()

	user, getErr := s.users.GetByUsername(ctx, username)
	if getErr != nil {
		if errors.Is(getErr, ErrNotFound) {
			s.sleepFailureDelay()
			s.recordAudit(ctx, EventLoginFailed, nil, username, clientIP, LoginFailedDetail{Reason: "unknown_user"}.Map())
			err = ErrInvalidCredentials
			return
		}
		err = getErr
		return
	}

	now := s.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		s.recordAudit(ctx, EventLoginFailed, &user.ID, username, clientIP, LoginFailedDetail{Reason: "locked"}.Map())
		err = ErrLocked
		return
	}

	if verr := VerifyPassword(user.PasswordHash, password); verr != nil {
		user.FailedLoginCount++
		lockedNow := false
		if user.FailedLoginCount >= s.cfg.MaxFailedLogins {
			until := now.Add(s.cfg.LockoutDuration)
			user.LockedUntil = &until
			lockedNow = true
		}
		if _, uerr := s.users.Update(ctx, user); uerr != nil {
			err = uerr
			return
		}
		if lockedNow {
			s.recordAudit(ctx, EventAccountLocked, &user.ID, username, clientIP, AccountLockedDetail{FailedLoginCount: user.FailedLoginCount}.Map())
		}
		s.recordAudit(ctx, EventLoginFailed, &user.ID, username, clientIP, LoginFailedDetail{Reason: "bad_password"}.Map())
		err = ErrInvalidCredentials
		return
	}

	user.FailedLoginCount = 0
	user.LockedUntil = nil
	if user, err = s.users.Update(ctx, user); err != nil {
		return
	}

	var session Session
	session, err = s.createSession(ctx, user, clientIP, userAgent, now)
	if err != nil {
		return
	}

	s.recordAudit(ctx, EventLogin, &user.ID, username, clientIP, nil)
	result = LoginResult{User: user, Session: session}
	return
}

func (s *IdentityService) sleepFailureDelay() {
	if s.cfg.LoginFailureDelay > 0 {
		time.Sleep(s.cfg.LoginFailureDelay)
	}
}

// createSession implements spec §4.5 session creation, including the
// concurrent-session cap eviction of the oldest active sessions.
func (s *IdentityService) createSession(ctx context.Context, user User, clientIP, userAgent string, now time.Time) (Session, error) {
	active, err := s.sessions.ListActiveForUser(ctx, user.ID, now)
	if err != nil {
		return Session{}, err
	}
	if len(active) >= s.cfg.MaxConcurrentSess {
		evictCount := len(active) - s.cfg.MaxConcurrentSess + 1
		for i := 0; i < evictCount && i < len(active); i++ {
			if err := s.sessions.Delete(ctx, active[i].ID); err != nil {
				return Session{}, err
			}
		}
	}

	token, err := s.token()
	if err != nil {
		return Session{}, err
	}

	session := Session{
		ID:           s.newID(),
		UserID:       user.ID,
		Token:        token,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
		LastActivity: now,
		ClientIP:     clientIP,
		UserAgent:    userAgent,
		CreatedAt:    now,
	}
	return s.sessions.Create(ctx, session)
}

// ValidateSession implements spec §4.5 session validation, renewing the
// session when the renewal window has elapsed.
func (s *IdentityService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil || s.sessions == nil || s.users == nil {
		err = fmt.Errorf("identity service not configured")
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrUnauthenticated
		return
	}

	session, getErr := s.sessions.GetByToken(ctx, token)
	if getErr != nil {
		err = ErrUnauthenticated
		return
	}

	now := s.now()
	if !session.ExpiresAt.After(now) {
		err = ErrUnauthenticated
		return
	}

	user, uerr := s.users.GetByID(ctx, session.UserID)
	if uerr != nil || !user.Active {
		err = ErrUnauthenticated
		return
	}

	if session.ExpiresAt.Sub(now) < s.cfg.SessionTTL-s.cfg.RenewalWindow {
		newExpiry := now.Add(s.cfg.SessionTTL)
		if rerr := s.sessions.Renew(ctx, session.ID, newExpiry, now); rerr != nil {
			s.loggerWith(ctx, "ValidateSession").ErrorContext(ctx, "session renewal failed", "error", rerr)
		}
	}

	principal = Principal{UserID: user.ID, Role: user.Role}
	return
}

// Logout deletes all sessions for the user and records a logout event.
func (s *IdentityService) Logout(ctx context.Context, userID, clientIP string) error {
	if s == nil || s.sessions == nil {
		return fmt.Errorf("identity service not configured")
	}
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, EventLogout, &userID, "", clientIP, nil)
	return nil
}

// TerminateSession deletes a single session (spec §6 POST /me/sessions/{id}/terminate).
func (s *IdentityService) TerminateSession(ctx context.Context, sessionID string) error {
	if s == nil || s.sessions == nil {
		return fmt.Errorf("identity service not configured")
	}
	return s.sessions.Delete(ctx, sessionID)
}

// ListSessions returns the active sessions for a user (spec §6 GET /me/sessions).
func (s *IdentityService) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	if s == nil || s.sessions == nil {
		return nil, fmt.Errorf("identity service not configured")
	}
	return s.sessions.ListActiveForUser(ctx, userID, s.now())
}

// MustChangePassword reports whether userID's account currently requires a
// password change before anything else (spec §5 AuthenticationBinding gate).
func (s *IdentityService) MustChangePassword(ctx context.Context, userID string) (bool, error) {
	if s == nil || s.users == nil {
		return false, fmt.Errorf("identity service not configured")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.MustChangePassword, nil
}

// GetUser returns the account for the given id, used by handlers rendering
// "current user" profile data without duplicating UserRepository plumbing.
func (s *IdentityService) GetUser(ctx context.Context, userID string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, fmt.Errorf("identity service not configured")
	}
	return s.users.GetByID(ctx, userID)
}

// ChangePassword implements spec §8's round-trip property: verifies old,
// enforces strength + history, evicts the oldest history entry.
func (s *IdentityService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (err error) {
	if s == nil || s.users == nil {
		return fmt.Errorf("identity service not configured")
	}
	logger := s.loggerWith(ctx, "ChangePassword", "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "password change failed", "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password changed")
	}()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return
	}
	if err = VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		err = ErrInvalidCredentials
		return
	}
	if verr := s.cfg.PasswordPolicy.CheckStrength(newPassword); verr != nil {
		err = verr
		return
	}
	if herr := s.cfg.PasswordPolicy.CheckHistory(newPassword, append([]string{user.PasswordHash}, user.PasswordHistory...)); herr != nil {
		err = herr
		return
	}

	digest, herr := CreatePasswordHash(newPassword, s.cfg.Argon2Params)
	if herr != nil {
		err = herr
		return
	}

	user.PasswordHistory = s.cfg.PasswordPolicy.PushHistory(user.PasswordHistory, user.PasswordHash)
	user.PasswordHash = digest
	user.MustChangePassword = false
	if _, err = s.users.Update(ctx, user); err != nil {
		return
	}
	s.recordAudit(ctx, EventPasswordChanged, &userID, user.Username, "", nil)
	return nil
}

// ResetPassword is the admin-initiated reset (spec §4.6: "forces
// must_change_password on next login and terminates all sessions"), gated
// by the same AccessPolicy.CanActOn scoping UpdateUser/Deactivate use: an
// admin may reset an operator's password but not another admin's or a
// super_admin's.
func (s *IdentityService) ResetPassword(ctx context.Context, userID, newPassword string, actor Principal) (err error) {
	if s == nil || s.users == nil {
		return fmt.Errorf("identity service not configured")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if decision := s.policy.CanActOn(actor.UserID, actor.Role, userID, user.Role); !decision.Allowed {
		return ErrForbidden
	}
	if verr := s.cfg.PasswordPolicy.CheckStrength(newPassword); verr != nil {
		return verr
	}
	digest, herr := CreatePasswordHash(newPassword, s.cfg.Argon2Params)
	if herr != nil {
		return herr
	}
	user.PasswordHistory = s.cfg.PasswordPolicy.PushHistory(user.PasswordHistory, user.PasswordHash)
	user.PasswordHash = digest
	user.MustChangePassword = true
	if _, err = s.users.Update(ctx, user); err != nil {
		return err
	}
	if err = s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, EventPasswordReset, &userID, user.Username, "", PasswordResetDetail{ActorID: actor.UserID}.Map())
	return nil
}

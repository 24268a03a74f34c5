package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

// identityService is the subset of domain.IdentityService the auth handler
// drives; kept as an interface so tests can substitute a fake.
type identityService interface {
	Login(ctx context.Context, username, password, clientIP, userAgent string) (domain.LoginResult, error)
	Logout(ctx context.Context, userID, clientIP string) error
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	TerminateSession(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// AuthHandler implements the public and self-service authentication routes:
// form-encoded login/logout, session listing and termination, and
// self-service password change.
type AuthHandler struct {
	identity  identityService
	responder responder
	isProd    bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(identity identityService, logger *slog.Logger, isProd bool) *AuthHandler {
	return &AuthHandler{identity: identity, responder: newResponder(logger), isProd: isProd}
}

type userSummary struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	FullName           string `json:"full_name"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

func toUserSummary(u domain.User) userSummary {
	return userSummary{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: string(u.Role), MustChangePassword: u.MustChangePassword}
}

type loginResponse struct {
	Success     bool        `json:"success"`
	RedirectURL string      `json:"redirect_url"`
	User        userSummary `json:"user"`
}

// Login implements POST /auth/login (spec §6): form-encoded credentials, a
// session cookie on success, the canonical login JSON either way.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")

	result, err := h.identity.Login(r.Context(), username, password, clientIP(r), r.UserAgent())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt, h.isProd)

	redirect := "/dashboard"
	if result.User.MustChangePassword {
		redirect = "/me/force-password-change"
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, loginResponse{
		Success:     true,
		RedirectURL: redirect,
		User:        toUserSummary(result.User),
	})
}

// Logout implements POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if ok {
		_ = h.identity.Logout(r.Context(), principal.UserID, clientIP(r))
	}
	clearSessionCookie(w)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true, "redirect_url": "/auth/login"})
}

// Me implements GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	user, err := h.identity.GetUser(r.Context(), principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserSummary(user))
}

// Profile implements GET /me/profile - the same identity payload under the
// path spec.md exposes for the profile page.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	h.Me(w, r)
}

// ChangePassword implements GET|POST /me/password. GET returns the current
// must_change_password state; POST performs the change.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}

	if r.Method == http.MethodGet {
		user, err := h.identity.GetUser(r.Context(), principal.UserID)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"must_change_password": user.MustChangePassword})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if !h.validateCSRFField(w, r) {
		return
	}
	oldPassword := r.FormValue("old_password")
	newPassword := r.FormValue("new_password")

	if err := h.identity.ChangePassword(r.Context(), principal.UserID, oldPassword, newPassword); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true})
}

// ForcePasswordChange implements GET|POST /me/force-password-change, the
// route a must_change_password account is funneled to by AuthenticationBinding.
func (h *AuthHandler) ForcePasswordChange(w http.ResponseWriter, r *http.Request) {
	h.ChangePassword(w, r)
}

type sessionSummary struct {
	ID           string `json:"id"`
	ClientIP     string `json:"client_ip"`
	UserAgent    string `json:"user_agent"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	ExpiresAt    string `json:"expires_at"`
}

// Sessions implements GET /me/sessions.
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	sessions, err := h.identity.ListSessions(r.Context(), principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			ID:           s.ID,
			ClientIP:     s.ClientIP,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339Nano),
			LastActivity: s.LastActivity.UTC().Format(time.RFC3339Nano),
			ExpiresAt:    s.ExpiresAt.UTC().Format(time.RFC3339Nano),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"sessions": out})
}

// TerminateSession implements POST /me/sessions/{id}/terminate.
func (h *AuthHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := PrincipalFromContext(r.Context()); !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	sessionID := routeParam(r, "id")
	if err := h.identity.TerminateSession(r.Context(), sessionID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) validateCSRFField(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get(csrfHeaderName) != "" {
		return true // middleware already checked the header path
	}
	if !ValidateCSRFForm(r.Context(), r.FormValue(csrfFormField)) {
		h.responder.handleServiceError(r.Context(), w, domain.ErrForbidden)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, isProd bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isProd,
		SameSite: http.SameSiteLaxMode,
	})
	_ = expiresAt // server-side expiry is authoritative; the cookie itself is session-scoped (spec §6)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

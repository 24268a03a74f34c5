package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/example/mailroom-core/internal/domain"
)

const sessionCookieName = "session_token"

// SessionValidator is the subset of IdentityService authentication binding
// needs; kept narrow so it can be faked in tests.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (domain.Principal, error)
}

// forcePasswordChangeExempt paths are reachable even when the principal's account
// has must_change_password set (spec §5 AuthenticationBinding).
var forcePasswordChangeExempt = []string{
	"/auth/logout",
	"/me/force-password-change",
}

// AuthenticationBinding reads the session cookie and, if valid, attaches the
// principal to the request context. It never rejects a request outright on a
// missing or invalid session - downstream handlers and RequireRole decide
// what to do with an absent principal (spec §5).
func AuthenticationBinding(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := validator.ValidateSession(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthenticated) && !errors.Is(err, domain.ErrNotFound) {
					newResponder(nil).writeError(r.Context(), w, http.StatusInternalServerError, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects requests that AuthenticationBinding could not
// attach a principal to.
func RequireAuthenticated(responder responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects authenticated requests whose principal's role is not
// one of allowed. super_admin and admin are never implicitly included: list
// every role a route accepts.
func RequireRole(responder responder, allowed ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
				return
			}
			for _, role := range allowed {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			responder.handleServiceError(r.Context(), w, domain.ErrForbidden)
		})
	}
}

// mustChangePasswordGate mirrors spec §5: once an account's
// must_change_password flag is set, every request besides logout and the
// force-change endpoint itself is redirected - expressed here as a 403 with
// a distinguishing error code, since this package always answers JSON.
func mustChangePasswordGate(responder responder, mustChange func(ctx context.Context, principal domain.Principal) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || isForcePasswordChangeExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			must, err := mustChange(r.Context(), principal)
			if err != nil {
				responder.handleServiceError(r.Context(), w, err)
				return
			}
			if must {
				responder.writeJSON(r.Context(), w, http.StatusForbidden, errorResponse{
					ErrorCode: "MUST_CHANGE_PASSWORD",
					Message:   "password change required before continuing",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isForcePasswordChangeExempt(path string) bool {
	for _, p := range forcePasswordChangeExempt {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

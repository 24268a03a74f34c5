package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/mailroom-core/internal/domain"
)

type contextKey string

const principalContextKey contextKey = "principal"

// ContextWithPrincipal returns a derived context carrying the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal attached by
// AuthenticationBinding, if any.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(domain.Principal)
	return principal, ok
}

// routeParam reads a chi URL parameter by name.
func routeParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

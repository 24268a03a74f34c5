package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/example/mailroom-core/internal/domain"
)

const loginPath = "/auth/login"

var rateLimitExemptPrefixes = []string{"/static/", "/uploads/"}

func isRateLimitExempt(path string) bool {
	switch path {
	case "/health", "/docs", "/redoc", "/openapi.json":
		return true
	}
	for _, prefix := range rateLimitExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RateLimit implements spec §5's two-bucket sliding-window limiter: a strict
// R_login bucket scoped to the login path, and a looser R_api bucket for
// everything else, both keyed by client IP and both in-memory (the window is
// empty on restart, per spec).
func RateLimit(rLogin, rAPI int) func(http.Handler) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		newResponder(nil).handleServiceError(r.Context(), w, domain.ErrRateLimited)
	}

	loginLimiter := httprate.Limit(rLogin, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(onLimit),
	)
	apiLimiter := httprate.Limit(rAPI, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(onLimit),
	)

	return func(next http.Handler) http.Handler {
		loginWrapped := loginLimiter(next)
		apiWrapped := apiLimiter(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case isRateLimitExempt(r.URL.Path):
				next.ServeHTTP(w, r)
			case r.URL.Path == loginPath:
				loginWrapped.ServeHTTP(w, r)
			default:
				apiWrapped.ServeHTTP(w, r)
			}
		})
	}
}

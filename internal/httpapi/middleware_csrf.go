package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/example/mailroom-core/internal/domain"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	csrfTokenBytes = 18 // 144 bits, base64url-encoded, comfortably over the 128-bit floor
)

var csrfProtectedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

var csrfExemptPrefixes = []string{"/static/", "/uploads/", "/docs", "/redoc", "/openapi.json"}

type csrfContextKey struct{}
type csrfStateContextKey struct{}

// csrfFormState is a mutable marker threaded through the request context so
// the post-handler backstop in CSRF can tell whether a handler that took the
// form-field branch (no X-CSRF-Token header) actually validated one.
type csrfFormState struct {
	validated bool
}

// CSRFExpectedToken returns the cookie value the handler's form-field
// validator should compare a submitted csrf_token against, published by CSRF
// per spec §5 ("publishes the expected cookie value in the request context").
func CSRFExpectedToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(csrfContextKey{}).(string)
	return v, ok && v != ""
}

// CSRF implements the double-submit cookie check of spec §5: a random token
// is minted into a non-HttpOnly cookie on first contact, and every
// state-changing request must echo it back via header (checked here) or form
// field (left to the handler, which reads CSRFExpectedToken).
func CSRF(isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isCSRFExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(csrfCookieName)
			var token string
			if err != nil || cookie.Value == "" {
				token = generateCSRFToken()
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					SameSite: http.SameSiteStrictMode,
					Secure:   isProduction,
					HttpOnly: false,
				})
			} else {
				token = cookie.Value
			}

			if !csrfProtectedMethods[r.Method] {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token)))
				return
			}

			if err != nil || cookie.Value == "" {
				newResponder(nil).handleServiceError(r.Context(), w, domain.ErrForbidden)
				return
			}

			if header := r.Header.Get(csrfHeaderName); header != "" {
				if !constantTimeEqual(header, token) {
					newResponder(nil).handleServiceError(r.Context(), w, domain.ErrForbidden)
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token)))
				return
			}

			// No header: the route handler must validate a form field
			// against the expected value published in the context. The
			// response is buffered so state can be checked after
			// ServeHTTP returns and, if the handler never called
			// ValidateCSRFForm, the buffered response is discarded and a
			// 403 sent instead of whatever the handler wrote — mirroring
			// the Python original's
			// csrf_requires_form_validation/csrf_form_validated backstop,
			// which replaces call_next's response the same way.
			state := &csrfFormState{}
			ctx := context.WithValue(r.Context(), csrfContextKey{}, token)
			ctx = context.WithValue(ctx, csrfStateContextKey{}, state)
			buf := newCSRFResponseBuffer(w)
			next.ServeHTTP(buf, r.WithContext(ctx))
			if !state.validated {
				newResponder(nil).handleServiceError(r.Context(), w, domain.ErrForbidden)
				return
			}
			buf.flush()
		})
	}
}

func isCSRFExempt(path string) bool {
	if path == "/health" {
		return true
	}
	for _, prefix := range csrfExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func generateCSRFToken() string {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("httpapi: failed to read random bytes for csrf token: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// csrfResponseBuffer holds a handler's response in memory instead of writing
// it to the underlying ResponseWriter, so CSRF's form-validation backstop can
// still swap in a 403 after the handler returns.
type csrfResponseBuffer struct {
	underlying http.ResponseWriter
	header     http.Header
	body       []byte
	status     int
}

func newCSRFResponseBuffer(w http.ResponseWriter) *csrfResponseBuffer {
	return &csrfResponseBuffer{underlying: w, header: make(http.Header), status: http.StatusOK}
}

func (b *csrfResponseBuffer) Header() http.Header { return b.header }

func (b *csrfResponseBuffer) WriteHeader(status int) { b.status = status }

func (b *csrfResponseBuffer) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *csrfResponseBuffer) flush() {
	dst := b.underlying.Header()
	for key, values := range b.header {
		dst[key] = values
	}
	b.underlying.WriteHeader(b.status)
	if len(b.body) > 0 {
		b.underlying.Write(b.body)
	}
}

// ValidateCSRFForm performs the handler-side half of the double-submit check
// for requests that supplied no X-CSRF-Token header: it compares a decoded
// form field against the value CSRF published in the context. A handler on
// the protected-method path must call this (or have a header already
// validated by CSRF) or the middleware's post-handler backstop rejects the
// request on return, regardless of what this function returns.
func ValidateCSRFForm(ctx context.Context, formValue string) bool {
	expected, ok := CSRFExpectedToken(ctx)
	if !ok || formValue == "" {
		return false
	}
	valid := constantTimeEqual(formValue, expected)
	if valid {
		if state, ok := ctx.Value(csrfStateContextKey{}).(*csrfFormState); ok {
			state.validated = true
		}
	}
	return valid
}

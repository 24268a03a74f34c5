package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRF_MintsCookieOnFirstContact(t *testing.T) {
	t.Parallel()

	reached := false
	handler := CSRF(false)(finalHandler(&reached))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if !reached {
		t.Fatalf("expected GET to pass through")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != csrfCookieName {
		t.Fatalf("cookies = %+v, want one csrf_token cookie", cookies)
	}
	if cookies[0].Value == "" {
		t.Fatalf("expected non-empty csrf token")
	}
}

func TestCSRF_RejectsStateChangingRequestWithoutCookie(t *testing.T) {
	t.Parallel()

	reached := false
	handler := CSRF(false)(finalHandler(&reached))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/me/password", nil))

	if reached {
		t.Fatalf("expected POST without csrf cookie to be rejected")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRF_AcceptsMatchingHeaderToken(t *testing.T) {
	t.Parallel()

	reached := false
	handler := CSRF(false)(finalHandler(&reached))

	req := httptest.NewRequest(http.MethodPost, "/me/password", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "matching-token"})
	req.Header.Set(csrfHeaderName, "matching-token")

	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !reached {
		t.Fatalf("expected matching header token to pass through")
	}
}

func TestCSRF_RejectsMismatchedHeaderToken(t *testing.T) {
	t.Parallel()

	reached := false
	handler := CSRF(false)(finalHandler(&reached))

	req := httptest.NewRequest(http.MethodPost, "/me/password", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "cookie-token"})
	req.Header.Set(csrfHeaderName, "wrong-token")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if reached {
		t.Fatalf("expected mismatched header token to be rejected")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRF_ExemptsHealthEndpoint(t *testing.T) {
	t.Parallel()

	reached := false
	handler := CSRF(false)(finalHandler(&reached))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	if !reached {
		t.Fatalf("expected /health to be exempt from csrf checks")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected no csrf cookie minted for an exempt path")
	}
}

func TestCSRF_RejectsProtectedRequestWhenHandlerNeverValidatesFormField(t *testing.T) {
	t.Parallel()

	reached := false
	handler := CSRF(false)(finalHandler(&reached))

	req := httptest.NewRequest(http.MethodPost, "/me/password", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "matching-token"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !reached {
		t.Fatalf("expected the handler to run so it has a chance to validate the form field")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when the handler never calls ValidateCSRFForm", rec.Code)
	}
}

func TestCSRF_AllowsProtectedRequestWhenHandlerValidatesFormField(t *testing.T) {
	t.Parallel()

	handler := CSRF(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ValidateCSRFForm(r.Context(), "matching-token") {
			t.Fatalf("expected form token to validate")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/me/password", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "matching-token"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 after the handler validates the form field", rec.Code)
	}
}

func TestValidateCSRFForm(t *testing.T) {
	t.Parallel()

	handler := CSRF(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ValidateCSRFForm(r.Context(), "matching-token") {
			t.Fatalf("expected form token to validate against context value")
		}
		if ValidateCSRFForm(r.Context(), "wrong-token") {
			t.Fatalf("expected mismatched form token to fail validation")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "matching-token"})
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimit_ExemptsHealthEndpoint(t *testing.T) {
	t.Parallel()

	handler := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.1:1234"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 (exempt path)", i, rec.Code)
		}
	}
}

func TestRateLimit_BlocksLoginAfterBucketExhausted(t *testing.T) {
	t.Parallel()

	handler := RateLimit(2, 100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, loginPath, nil)
		req.RemoteAddr = "203.0.113.2:1234"
		return req
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newReq())
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 within bucket", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 once the login bucket is exhausted", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on rate limited response")
	}
}

func TestRateLimit_LoginAndAPIBucketsAreIndependent(t *testing.T) {
	t.Parallel()

	handler := RateLimit(1, 100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	loginReq := httptest.NewRequest(http.MethodPost, loginPath, nil)
	loginReq.RemoteAddr = "203.0.113.3:1234"
	handler.ServeHTTP(httptest.NewRecorder(), loginReq)

	loginReq2 := httptest.NewRequest(http.MethodPost, loginPath, nil)
	loginReq2.RemoteAddr = "203.0.113.3:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginReq2)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("login bucket: status = %d, want 429", rec.Code)
	}

	apiReq := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	apiReq.RemoteAddr = "203.0.113.3:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, apiReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("api bucket: status = %d, want 200 (separate bucket from login)", rec.Code)
	}
}

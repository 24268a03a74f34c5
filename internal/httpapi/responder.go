package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/mailroom-core/internal/domain"
	"github.com/example/mailroom-core/internal/logging"
)

var errBadRequestBody = errors.New("request body could not be decoded")

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	if err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}
	r.writeJSON(ctx, w, status, errorResponse{Message: http.StatusText(status)})
}

// handleServiceError maps the sentinel errors domain services return to HTTP
// status codes. This is the one place in the package that knows about both
// vocabularies (spec §7's intent: "services never know about HTTP").
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: "UNAUTHENTICATED", Message: "authentication required"})
	case errors.Is(err, domain.ErrForbidden):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "FORBIDDEN", Message: "you do not have permission to perform this action"})
	case errors.Is(err, domain.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "resource not found"})
	case errors.Is(err, domain.ErrConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "request conflicts with the current state of the resource"})
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		r.writeJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Message: "rate limit exceeded"})
	case errors.Is(err, domain.ErrLocked):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "ACCOUNT_LOCKED", Message: "account is temporarily locked"})
	case errors.Is(err, domain.ErrBusy):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Message: "server is busy, try again shortly"})
	case errors.Is(err, domain.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: "INVALID_CREDENTIALS", Message: "username or password is incorrect"})
	case errors.Is(err, domain.ErrPasswordReused):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Message: "password was used recently", Errors: map[string]string{"password": "must not match a recent password"}})
	case errors.Is(err, domain.ErrInvalidTransition):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "status transition is not permitted"})
	case errors.Is(err, domain.ErrRecipientInactive):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Message: "recipient is not active"})
	case errors.Is(err, domain.ErrOpenPackages):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "recipient has packages that are not yet delivered or returned"})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Message: "validation failed", Errors: vErr.FieldErrors})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errBadRequestBody
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadRequestBody
	}
	return nil
}

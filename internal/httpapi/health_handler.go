package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/mailroom-core/internal/domain"
)

// healthService is the subset of domain.HealthService the health handler drives.
type healthService interface {
	Check(ctx context.Context) domain.HealthStatus
}

// HealthHandler implements GET /health (spec §6), the one unauthenticated,
// CSRF-exempt, rate-limit-exempt route.
type HealthHandler struct {
	health    healthService
	responder responder
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(health healthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{health: health, responder: newResponder(logger)}
}

// Check implements GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := h.health.Check(r.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	h.responder.writeJSON(r.Context(), w, code, status)
}

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/example/mailroom-core/internal/domain"
)

// RouterConfig collects every handler and cross-cutting dependency the
// router wires together, using chi's route-group style so the three-tier
// role grouping gets per-group RBAC middleware instead of per-handler checks.
type RouterConfig struct {
	Auth       *AuthHandler
	Packages   *PackageHandler
	Recipients *RecipientHandler
	AdminUsers *AdminUserHandler
	Reports    *AdminReportHandler
	Health     *HealthHandler

	SessionValidator SessionValidator
	MustChange       func(ctx context.Context, principal domain.Principal) (bool, error)

	Logger       *slog.Logger
	IsProduction bool
	RateLimitLogin int
	RateLimitAPI   int
}

// NewRouter builds the full HTTP surface of spec §6, in the middleware order
// spec §5 fixes: RequestLogger (attach per-request logger) →
// AuthenticationBinding (attach principal, never reject) →
// CSRF (mint/check double-submit token) → RateLimit (two sliding windows) →
// SecurityHeaders (response hardening) → the route's own role gate → handler.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	resp := newResponder(cfg.Logger)

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(AuthenticationBinding(cfg.SessionValidator))
	r.Use(CSRF(cfg.IsProduction))
	r.Use(RateLimit(cfg.RateLimitLogin, cfg.RateLimitAPI))
	r.Use(SecurityHeaders(cfg.IsProduction))

	// Public: unauthenticated, no gate beyond what's above.
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/auth/login", http.StatusFound)
	})
	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Check)
	}
	if cfg.Auth != nil {
		r.Get("/auth/login", func(w http.ResponseWriter, req *http.Request) {
			resp.writeJSON(req.Context(), w, http.StatusOK, map[string]any{"login_form": true})
		})
		r.Post("/auth/login", cfg.Auth.Login)
		r.Post("/auth/logout", cfg.Auth.Logout)
	}

	allRoles := []domain.Role{domain.RoleOperator, domain.RoleAdmin, domain.RoleSuperAdmin}
	adminRoles := []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}
	superAdminOnly := []domain.Role{domain.RoleSuperAdmin}

	// Authenticated (all roles), gated by must_change_password.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuthenticated(resp))
		r.Use(mustChangePasswordGate(resp, cfg.MustChange))
		r.Use(RequireRole(resp, allRoles...))

		if cfg.Auth != nil {
			r.Get("/auth/me", cfg.Auth.Me)
			r.Get("/me/profile", cfg.Auth.Profile)
			r.Get("/me/password", cfg.Auth.ChangePassword)
			r.Post("/me/password", cfg.Auth.ChangePassword)
			r.Get("/me/force-password-change", cfg.Auth.ForcePasswordChange)
			r.Post("/me/force-password-change", cfg.Auth.ForcePasswordChange)
			r.Get("/me/sessions", cfg.Auth.Sessions)
			r.Post("/me/sessions/{id}/terminate", cfg.Auth.TerminateSession)
		}
		if cfg.Reports != nil {
			r.Get("/dashboard", cfg.Reports.Dashboard)
		}
		if cfg.Packages != nil {
			r.Get("/packages", cfg.Packages.Search)
			r.Get("/packages/new", cfg.Packages.NewPackageForm)
			r.Post("/packages/new", cfg.Packages.RegisterPackage)
			r.Get("/packages/{id}", cfg.Packages.Get)
			r.Post("/packages/{id}/status", cfg.Packages.UpdateStatus)
			r.Post("/packages/{id}/photo", cfg.Packages.AttachPhoto)
			r.Get("/packages/{id}/qrcode/download", cfg.Packages.QRCodeLink)
			r.Get("/packages/{id}/qrcode/print", cfg.Packages.QRCodeLink)
		}
		if cfg.Recipients != nil {
			r.Get("/recipients", cfg.Recipients.List)
			r.Get("/recipients/search", cfg.Recipients.Search)
		}
	})

	// Admin and super_admin.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuthenticated(resp))
		r.Use(mustChangePasswordGate(resp, cfg.MustChange))
		r.Use(RequireRole(resp, adminRoles...))

		if cfg.Reports != nil {
			r.Get("/admin/dashboard", cfg.Reports.Dashboard)
			r.Get("/admin/reports", cfg.Reports.Reports)
			r.Get("/admin/reports/preview", cfg.Reports.Preview)
			r.Get("/admin/reports/export", cfg.Reports.Export)
		}
		if cfg.AdminUsers != nil {
			r.Get("/admin/users", cfg.AdminUsers.List)
			r.Get("/admin/users/new", func(w http.ResponseWriter, req *http.Request) {
				resp.writeJSON(req.Context(), w, http.StatusOK, map[string]any{"roles": allRoles})
			})
			r.Post("/admin/users/new", cfg.AdminUsers.Create)
			r.Get("/admin/users/{id}/edit", cfg.AdminUsers.Get)
			r.Put("/admin/users/{id}/edit", cfg.AdminUsers.Update)
			r.Post("/admin/users/{id}/deactivate", cfg.AdminUsers.Deactivate)
			r.Post("/admin/users/{id}/password", cfg.AdminUsers.ResetPassword)
		}
		if cfg.Recipients != nil {
			r.Get("/admin/recipients", cfg.Recipients.List)
			r.Get("/admin/recipients/new", func(w http.ResponseWriter, req *http.Request) {
				resp.writeJSON(req.Context(), w, http.StatusOK, map[string]any{"form": true})
			})
			r.Post("/admin/recipients/new", cfg.Recipients.Create)
			r.Get("/admin/recipients/{id}/edit", cfg.Recipients.Get)
			r.Post("/admin/recipients/{id}/edit", cfg.Recipients.Update)
			r.Put("/admin/recipients/{id}/edit", cfg.Recipients.Update)
			r.Post("/admin/recipients/{id}/deactivate", cfg.Recipients.Deactivate)
			r.Get("/admin/recipients/import", func(w http.ResponseWriter, req *http.Request) {
				resp.writeJSON(req.Context(), w, http.StatusOK, map[string]any{"import_form": true})
			})
			r.Post("/admin/recipients/import/validate", cfg.Recipients.ImportValidate)
			r.Post("/admin/recipients/import/confirm", cfg.Recipients.ImportConfirm)
		}
	})

	// Super admin only.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuthenticated(resp))
		r.Use(mustChangePasswordGate(resp, cfg.MustChange))
		r.Use(RequireRole(resp, superAdminOnly...))

		if cfg.Reports != nil {
			r.Get("/admin/settings", cfg.Reports.Settings)
			r.Post("/admin/settings/qr-base-url", cfg.Reports.SetQRBaseURL)
			r.Get("/admin/audit-logs", cfg.Reports.AuditLogs)
		}
	})

	return r
}

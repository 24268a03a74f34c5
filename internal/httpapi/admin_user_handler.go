package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/mailroom-core/internal/domain"
)

// userManagementService is the subset of domain.UserManagementService the
// admin user handler drives.
type userManagementService interface {
	CreateUser(ctx context.Context, input domain.CreateUserInput, actor domain.Principal) (domain.User, error)
	UpdateUser(ctx context.Context, targetID string, input domain.UpdateUserInput, actor domain.Principal) (domain.User, error)
	Deactivate(ctx context.Context, targetID string, actor domain.Principal) error
	List(ctx context.Context, actor domain.Principal) ([]domain.User, error)
	GetUser(ctx context.Context, actor domain.Principal, targetID string) (domain.User, error)
}

// passwordResetter is the admin-initiated reset half of identityService,
// split out because it is authorized against the actor/target role pair
// the self-service flow does not need.
type passwordResetter interface {
	ResetPassword(ctx context.Context, userID, newPassword string, actor domain.Principal) error
}

// AdminUserHandler implements spec §6's /admin/users routes.
type AdminUserHandler struct {
	users     userManagementService
	passwords passwordResetter
	responder responder
}

// NewAdminUserHandler constructs an AdminUserHandler.
func NewAdminUserHandler(users userManagementService, passwords passwordResetter, logger *slog.Logger) *AdminUserHandler {
	return &AdminUserHandler{users: users, passwords: passwords, responder: newResponder(logger)}
}

type adminUserView struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	FullName           string `json:"full_name"`
	Role               string `json:"role"`
	Active             bool   `json:"active"`
	MustChangePassword bool   `json:"must_change_password"`
	FailedLoginCount   int    `json:"failed_login_count"`
}

func toAdminUserView(u domain.User) adminUserView {
	return adminUserView{
		ID: u.ID, Username: u.Username, FullName: u.FullName, Role: string(u.Role),
		Active: u.Active, MustChangePassword: u.MustChangePassword, FailedLoginCount: u.FailedLoginCount,
	}
}

// List implements GET /admin/users.
func (h *AdminUserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	users, err := h.users.List(r.Context(), actor)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	views := make([]adminUserView, 0, len(users))
	for _, u := range users {
		views = append(views, toAdminUserView(u))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"users": views})
}

// Get implements GET /admin/users/{id}/edit: reference data for the edit form.
func (h *AdminUserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	user, err := h.users.GetUser(r.Context(), actor, routeParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAdminUserView(user))
}

type createUserRequest struct {
	Username        string `json:"username" validate:"required"`
	FullName        string `json:"full_name" validate:"required"`
	Role            string `json:"role" validate:"required,oneof=operator admin super_admin"`
	InitialPassword string `json:"initial_password" validate:"required"`
}

// Create implements POST /admin/users/new.
func (h *AdminUserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{Message: "validation failed", Errors: validationFieldErrors(err)})
		return
	}

	created, err := h.users.CreateUser(r.Context(), domain.CreateUserInput{
		Username: req.Username, FullName: req.FullName, Role: domain.Role(req.Role), InitialPassword: req.InitialPassword,
	}, actor)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toAdminUserView(created))
}

type updateUserRequest struct {
	FullName string  `json:"full_name" validate:"required"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=operator admin super_admin"`
}

// Update implements PUT /admin/users/{id}/edit.
func (h *AdminUserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{Message: "validation failed", Errors: validationFieldErrors(err)})
		return
	}

	input := domain.UpdateUserInput{FullName: req.FullName}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		input.Role = &role
	}

	updated, err := h.users.UpdateUser(r.Context(), routeParam(r, "id"), input, actor)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAdminUserView(updated))
}

// Deactivate implements POST /admin/users/{id}/deactivate.
func (h *AdminUserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	if err := h.users.Deactivate(r.Context(), routeParam(r, "id"), actor); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true})
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

// ResetPassword implements POST /admin/users/{id}/password.
func (h *AdminUserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.handleServiceError(r.Context(), w, domain.ErrUnauthenticated)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.passwords.ResetPassword(r.Context(), routeParam(r, "id"), req.NewPassword, actor); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true})
}

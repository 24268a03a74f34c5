package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/example/mailroom-core/internal/domain"
)

type userManagementServiceStub struct {
	created   domain.User
	createErr error
	updated   domain.User
	updateErr error
	deactErr  error
	list      []domain.User
	listErr   error
	got       domain.User
	getErr    error
}

func (s *userManagementServiceStub) CreateUser(ctx context.Context, input domain.CreateUserInput, actor domain.Principal) (domain.User, error) {
	return s.created, s.createErr
}
func (s *userManagementServiceStub) UpdateUser(ctx context.Context, targetID string, input domain.UpdateUserInput, actor domain.Principal) (domain.User, error) {
	return s.updated, s.updateErr
}
func (s *userManagementServiceStub) Deactivate(ctx context.Context, targetID string, actor domain.Principal) error {
	return s.deactErr
}
func (s *userManagementServiceStub) List(ctx context.Context, actor domain.Principal) ([]domain.User, error) {
	return s.list, s.listErr
}
func (s *userManagementServiceStub) GetUser(ctx context.Context, actor domain.Principal, targetID string) (domain.User, error) {
	return s.got, s.getErr
}

type passwordResetterStub struct{ err error }

func (s passwordResetterStub) ResetPassword(ctx context.Context, userID, newPassword string, actor domain.Principal) error {
	return s.err
}

func requestWithRouteParam(method, target string, body *bytes.Buffer, paramName, paramValue string, principal domain.Principal) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(paramName, paramValue)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = ContextWithPrincipal(ctx, principal)
	return req.WithContext(ctx)
}

func TestAdminUserHandler_Get_RequiresAuthentication(t *testing.T) {
	t.Parallel()

	handler := NewAdminUserHandler(&userManagementServiceStub{}, passwordResetterStub{}, nil)
	rec := httptest.NewRecorder()
	handler.Get(rec, httptest.NewRequest(http.MethodGet, "/admin/users/op-1/edit", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminUserHandler_Get_ReturnsUserView(t *testing.T) {
	t.Parallel()

	svc := &userManagementServiceStub{got: domain.User{ID: "op-1", Username: "operator1", Role: domain.RoleOperator}}
	handler := NewAdminUserHandler(svc, passwordResetterStub{}, nil)

	req := requestWithRouteParam(http.MethodGet, "/admin/users/op-1/edit", nil, "id", "op-1", domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin})
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAdminUserHandler_Get_PropagatesForbidden(t *testing.T) {
	t.Parallel()

	svc := &userManagementServiceStub{getErr: domain.ErrForbidden}
	handler := NewAdminUserHandler(svc, passwordResetterStub{}, nil)

	req := requestWithRouteParam(http.MethodGet, "/admin/users/op-1/edit", nil, "id", "op-1", domain.Principal{UserID: "op-2", Role: domain.RoleOperator})
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAdminUserHandler_Create_ValidatesRequestBody(t *testing.T) {
	t.Parallel()

	handler := NewAdminUserHandler(&userManagementServiceStub{}, passwordResetterStub{}, nil)

	body := bytes.NewBufferString(`{"username": "", "full_name": "", "role": "astronaut", "initial_password": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/users/new", body)
	ctx := ContextWithPrincipal(req.Context(), domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin})
	rec := httptest.NewRecorder()

	handler.Create(rec, req.WithContext(ctx))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestAdminUserHandler_Create_ReturnsCreatedUser(t *testing.T) {
	t.Parallel()

	svc := &userManagementServiceStub{created: domain.User{ID: "op-new", Username: "newop", Role: domain.RoleOperator}}
	handler := NewAdminUserHandler(svc, passwordResetterStub{}, nil)

	body := bytes.NewBufferString(`{"username": "newop", "full_name": "New Op", "role": "operator", "initial_password": "correct-horse-battery"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/users/new", body)
	ctx := ContextWithPrincipal(req.Context(), domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin})
	rec := httptest.NewRecorder()

	handler.Create(rec, req.WithContext(ctx))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminUserHandler_Deactivate_PropagatesForbidden(t *testing.T) {
	t.Parallel()

	svc := &userManagementServiceStub{deactErr: domain.ErrForbidden}
	handler := NewAdminUserHandler(svc, passwordResetterStub{}, nil)

	req := requestWithRouteParam(http.MethodPost, "/admin/users/admin-1/deactivate", nil, "id", "admin-1", domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin})
	rec := httptest.NewRecorder()
	handler.Deactivate(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAdminUserHandler_ResetPassword_Succeeds(t *testing.T) {
	t.Parallel()

	handler := NewAdminUserHandler(&userManagementServiceStub{}, passwordResetterStub{}, nil)

	body := bytes.NewBufferString(`{"new_password": "correct-horse-battery-staple"}`)
	req := requestWithRouteParam(http.MethodPost, "/admin/users/op-1/password", body, "id", "op-1", domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin})
	rec := httptest.NewRecorder()
	handler.ResetPassword(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

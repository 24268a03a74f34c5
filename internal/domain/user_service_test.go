package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type userRepoStub struct {
	users     map[string]User
	createErr error
	updateErr error
}

func newUserRepoStub(users ...User) *userRepoStub {
	stub := &userRepoStub{users: map[string]User{}}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	return stub
}

func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *userRepoStub) GetByID(ctx context.Context, id string) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *userRepoStub) Create(ctx context.Context, user User) (User, error) {
	if s.createErr != nil {
		return User{}, s.createErr
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *userRepoStub) Update(ctx context.Context, user User) (User, error) {
	if s.updateErr != nil {
		return User{}, s.updateErr
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *userRepoStub) List(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

type sessionRepoStub struct {
	deletedForUser []string
}

func (s *sessionRepoStub) Create(ctx context.Context, session Session) (Session, error) { return session, nil }
func (s *sessionRepoStub) GetByToken(ctx context.Context, token string) (Session, error) {
	return Session{}, ErrNotFound
}
func (s *sessionRepoStub) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]Session, error) {
	return nil, nil
}
func (s *sessionRepoStub) Renew(ctx context.Context, sessionID string, expiresAt, lastActivity time.Time) error {
	return nil
}
func (s *sessionRepoStub) Delete(ctx context.Context, sessionID string) error { return nil }
func (s *sessionRepoStub) DeleteAllForUser(ctx context.Context, userID string) error {
	s.deletedForUser = append(s.deletedForUser, userID)
	return nil
}

type auditSinkStub struct {
	records []recordedAudit
}

type recordedAudit struct {
	kind   AuthEventKind
	userID *string
	detail map[string]any
}

func (s *auditSinkStub) Record(ctx context.Context, kind AuthEventKind, userID *string, usernameAttempt, clientIP string, detail map[string]any) error {
	s.records = append(s.records, recordedAudit{kind: kind, userID: userID, detail: detail})
	return nil
}

func testPolicy(t *testing.T) *AccessPolicy {
	t.Helper()
	policy, err := NewAccessPolicy()
	if err != nil {
		t.Fatalf("NewAccessPolicy() error = %v", err)
	}
	return policy
}

func TestUserManagementService_CreateUser_ScopesByRole(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	repo := newUserRepoStub()
	audit := &auditSinkStub{}
	svc := NewUserManagementServiceForTest(repo, &sessionRepoStub{}, audit, policy, func() string { return "user-new" }, func() time.Time { return time.Unix(0, 0) })

	admin := Principal{UserID: "admin-1", Role: RoleAdmin}

	t.Run("admin may create an operator", func(t *testing.T) {
		created, err := svc.CreateUser(context.Background(), CreateUserInput{
			Username: "newop", FullName: "New Op", Role: RoleOperator, InitialPassword: "Correct-Horse-Battery-9",
		}, admin)
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		if created.Role != RoleOperator {
			t.Fatalf("created.Role = %v, want %v", created.Role, RoleOperator)
		}
		if len(audit.records) != 1 || audit.records[0].kind != EventUserCreated {
			t.Fatalf("expected one user_created audit record, got %+v", audit.records)
		}
		if audit.records[0].detail["role"] != string(RoleOperator) {
			t.Fatalf("audit detail role = %v, want operator", audit.records[0].detail["role"])
		}
	})

	t.Run("admin may not create another admin", func(t *testing.T) {
		_, err := svc.CreateUser(context.Background(), CreateUserInput{
			Username: "newadmin", FullName: "New Admin", Role: RoleAdmin, InitialPassword: "correct-horse-battery-staple",
		}, admin)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("CreateUser() error = %v, want ErrForbidden", err)
		}
	})

	t.Run("operator may not create anyone", func(t *testing.T) {
		operator := Principal{UserID: "op-1", Role: RoleOperator}
		_, err := svc.CreateUser(context.Background(), CreateUserInput{
			Username: "anyone", FullName: "Anyone", Role: RoleOperator, InitialPassword: "correct-horse-battery-staple",
		}, operator)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("CreateUser() error = %v, want ErrForbidden", err)
		}
	})

	t.Run("rejects short usernames", func(t *testing.T) {
		_, err := svc.CreateUser(context.Background(), CreateUserInput{
			Username: "ab", FullName: "Short", Role: RoleOperator, InitialPassword: "correct-horse-battery-staple",
		}, admin)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("CreateUser() error = %v, want *ValidationError", err)
		}
		if _, ok := verr.FieldErrors["username"]; !ok {
			t.Fatalf("expected username field error, got %v", verr.FieldErrors)
		}
	})
}

func TestUserManagementService_UpdateUser_FieldLevelRules(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	operatorUser := User{ID: "op-1", Username: "operator", Role: RoleOperator}
	adminUser := User{ID: "admin-1", Username: "admin", Role: RoleAdmin}
	repo := newUserRepoStub(operatorUser, adminUser)
	svc := NewUserManagementServiceForTest(repo, &sessionRepoStub{}, &auditSinkStub{}, policy, func() string { return "" }, func() time.Time { return time.Unix(0, 0) })

	t.Run("admin may update an operator", func(t *testing.T) {
		admin := Principal{UserID: "admin-1", Role: RoleAdmin}
		updated, err := svc.UpdateUser(context.Background(), "op-1", UpdateUserInput{FullName: "Renamed"}, admin)
		if err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		if updated.FullName != "Renamed" {
			t.Fatalf("updated.FullName = %q, want %q", updated.FullName, "Renamed")
		}
	})

	t.Run("admin may not update another admin", func(t *testing.T) {
		otherAdmin := User{ID: "admin-2", Username: "admin2", Role: RoleAdmin}
		repo.users[otherAdmin.ID] = otherAdmin
		admin := Principal{UserID: "admin-1", Role: RoleAdmin}
		_, err := svc.UpdateUser(context.Background(), otherAdmin.ID, UpdateUserInput{FullName: "x"}, admin)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("UpdateUser() error = %v, want ErrForbidden", err)
		}
	})

	t.Run("admin may not change a role", func(t *testing.T) {
		admin := Principal{UserID: "admin-1", Role: RoleAdmin}
		newRole := RoleAdmin
		_, err := svc.UpdateUser(context.Background(), "op-1", UpdateUserInput{FullName: "x", Role: &newRole}, admin)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("UpdateUser() error = %v, want ErrForbidden", err)
		}
	})

	t.Run("super_admin may change a role", func(t *testing.T) {
		superAdmin := Principal{UserID: "super-1", Role: RoleSuperAdmin}
		repo.users["super-1"] = User{ID: "super-1", Role: RoleSuperAdmin}
		newRole := RoleAdmin
		updated, err := svc.UpdateUser(context.Background(), "op-1", UpdateUserInput{FullName: "Promoted", Role: &newRole}, superAdmin)
		if err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		if updated.Role != RoleAdmin {
			t.Fatalf("updated.Role = %v, want %v", updated.Role, RoleAdmin)
		}
	})
}

func TestUserManagementService_Deactivate_RejectsSelf(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	admin := User{ID: "admin-1", Role: RoleAdmin}
	repo := newUserRepoStub(admin)
	sessions := &sessionRepoStub{}
	svc := NewUserManagementServiceForTest(repo, sessions, &auditSinkStub{}, policy, func() string { return "" }, func() time.Time { return time.Unix(0, 0) })

	err := svc.Deactivate(context.Background(), "admin-1", Principal{UserID: "admin-1", Role: RoleAdmin})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Deactivate() error = %v, want ErrForbidden", err)
	}
}

func TestUserManagementService_Deactivate_RevokesSessions(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	operator := User{ID: "op-1", Role: RoleOperator}
	repo := newUserRepoStub(operator)
	sessions := &sessionRepoStub{}
	svc := NewUserManagementServiceForTest(repo, sessions, &auditSinkStub{}, policy, func() string { return "" }, func() time.Time { return time.Unix(0, 0) })

	admin := Principal{UserID: "admin-1", Role: RoleAdmin}
	if err := svc.Deactivate(context.Background(), "op-1", admin); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if repo.users["op-1"].Active {
		t.Fatalf("expected operator to be deactivated")
	}
	if len(sessions.deletedForUser) != 1 || sessions.deletedForUser[0] != "op-1" {
		t.Fatalf("expected sessions purged for op-1, got %v", sessions.deletedForUser)
	}
}

func TestUserManagementService_GetUser(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	operator := User{ID: "op-1", Role: RoleOperator}
	repo := newUserRepoStub(operator)
	svc := NewUserManagementServiceForTest(repo, &sessionRepoStub{}, &auditSinkStub{}, policy, func() string { return "" }, func() time.Time { return time.Unix(0, 0) })

	t.Run("admin may fetch for the edit form", func(t *testing.T) {
		admin := Principal{UserID: "admin-1", Role: RoleAdmin}
		got, err := svc.GetUser(context.Background(), admin, "op-1")
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if got.ID != "op-1" {
			t.Fatalf("got.ID = %q, want %q", got.ID, "op-1")
		}
	})

	t.Run("operator is forbidden", func(t *testing.T) {
		operatorPrincipal := Principal{UserID: "op-2", Role: RoleOperator}
		_, err := svc.GetUser(context.Background(), operatorPrincipal, "op-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("GetUser() error = %v, want ErrForbidden", err)
		}
	})
}

func TestUserManagementService_List_SortsByUsername(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	repo := newUserRepoStub(
		User{ID: "u1", Username: "zed", Role: RoleOperator},
		User{ID: "u2", Username: "alice", Role: RoleOperator},
	)
	svc := NewUserManagementServiceForTest(repo, &sessionRepoStub{}, &auditSinkStub{}, policy, func() string { return "" }, func() time.Time { return time.Unix(0, 0) })

	admin := Principal{UserID: "admin-1", Role: RoleAdmin}
	users, err := svc.List(context.Background(), admin)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "zed" {
		t.Fatalf("List() = %+v, want sorted by username", users)
	}
}

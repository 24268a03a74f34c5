package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/mailroom-core/internal/domain"
)

type capturingUserRepo struct {
	created domain.User
}

func (c *capturingUserRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return domain.User{}, domain.ErrNotFound
}

func (c *capturingUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	return domain.User{}, domain.ErrNotFound
}

func (c *capturingUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	c.created = user
	return user, nil
}

func (c *capturingUserRepo) Update(ctx context.Context, user domain.User) (domain.User, error) {
	c.created = user
	return user, nil
}

type noopSessionRepo struct{}

func (noopSessionRepo) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	return session, nil
}
func (noopSessionRepo) GetByToken(ctx context.Context, token string) (domain.Session, error) {
	return domain.Session{}, domain.ErrNotFound
}
func (noopSessionRepo) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	return nil, nil
}
func (noopSessionRepo) Renew(ctx context.Context, sessionID string, expiresAt, lastActivity time.Time) error {
	return nil
}
func (noopSessionRepo) Delete(ctx context.Context, sessionID string) error        { return nil }
func (noopSessionRepo) DeleteAllForUser(ctx context.Context, userID string) error { return nil }

func TestServiceFactoryNewIdentityService_ReturnsService(t *testing.T) {
	factory := NewServiceFactory(WithIDGenerator(NewIDGenerator("tok")))
	users := &capturingUserRepo{}

	svc := factory.NewIdentityService(IdentityServiceDeps{
		Users:    users,
		Sessions: noopSessionRepo{},
	})
	if svc == nil {
		t.Fatalf("expected non-nil identity service")
	}
}

type capturingRecipientRepo struct {
	created domain.Recipient
}

func (c *capturingRecipientRepo) GetByID(ctx context.Context, id string) (domain.Recipient, error) {
	return domain.Recipient{}, domain.ErrNotFound
}
func (c *capturingRecipientRepo) GetByEmployeeID(ctx context.Context, employeeID string) (domain.Recipient, error) {
	return domain.Recipient{}, domain.ErrNotFound
}
func (c *capturingRecipientRepo) Create(ctx context.Context, r domain.Recipient) (domain.Recipient, error) {
	c.created = r
	return r, nil
}
func (c *capturingRecipientRepo) Update(ctx context.Context, r domain.Recipient) (domain.Recipient, error) {
	c.created = r
	return r, nil
}
func (c *capturingRecipientRepo) HasOpenPackages(ctx context.Context, recipientID string) (bool, error) {
	return false, nil
}
func (c *capturingRecipientRepo) List(ctx context.Context, query string) ([]domain.Recipient, error) {
	return nil, nil
}

func TestServiceFactoryNewRecipientService_UsesSequentialIDsAndClock(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingRecipientRepo{}

	svc := factory.NewRecipientService(RecipientServiceDeps{Recipients: repo})
	fixture := NewRecipientFixture()
	created, err := svc.CreateRecipient(context.Background(), fixture.Domain(), "admin-001")
	if err != nil {
		t.Fatalf("CreateRecipient returned error: %v", err)
	}

	if created.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", created.ID)
	}
	if repo.created.ID != created.ID {
		t.Fatalf("repository received unexpected ID: %q", repo.created.ID)
	}
	if !created.CreatedAt.Equal(factory.Clock.Current()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Current(), created.CreatedAt)
	}
}

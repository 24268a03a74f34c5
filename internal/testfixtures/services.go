package testfixtures

import (
	"github.com/example/mailroom-core/internal/domain"
)

// ServiceFactory assists tests with constructing domain services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(ReferenceTime()),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(ReferenceTime())
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Clock = clock }
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.IDGenerator = generator }
}

// IdentityServiceDeps captures dependencies for constructing an identity service.
type IdentityServiceDeps struct {
	Users    domain.UserRepository
	Sessions domain.SessionRepository
	Audit    domain.AuditSink
	Policy   *domain.AccessPolicy
	Config   domain.IdentityServiceConfig
}

// NewIdentityService builds an IdentityService wired to the factory's
// deterministic clock and token generator.
func (f *ServiceFactory) NewIdentityService(deps IdentityServiceDeps) *domain.IdentityService {
	token := func() (string, error) { return f.IDGenerator.Next(), nil }
	return domain.NewIdentityServiceForTest(deps.Users, deps.Sessions, deps.Audit, deps.Policy, deps.Config, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), token)
}

// PackageCoreDeps captures dependencies for constructing a package core.
type PackageCoreDeps struct {
	Packages   domain.PackageRepository
	Recipients domain.RecipientDirectory
	Audit      domain.AuditSink
	Config     domain.PackageCoreConfig
}

// NewPackageCore builds a PackageCore using the factory's deterministic
// identifier generator.
func (f *ServiceFactory) NewPackageCore(deps PackageCoreDeps) *domain.PackageCore {
	return domain.NewPackageCoreForTest(deps.Packages, deps.Recipients, deps.Audit, f.IDGenerator.NextFunc(), deps.Config, f.Clock.NowFunc())
}

// RecipientServiceDeps captures dependencies for constructing a recipient service.
type RecipientServiceDeps struct {
	Recipients domain.RecipientRepository
	Audit      domain.AuditSink
}

// NewRecipientService builds a RecipientService using the factory's
// deterministic identifier generator.
func (f *ServiceFactory) NewRecipientService(deps RecipientServiceDeps) *domain.RecipientService {
	return domain.NewRecipientServiceForTest(deps.Recipients, deps.Audit, f.IDGenerator.NextFunc(), f.Clock.NowFunc())
}

// NewSettingsService builds a SettingsService.
func (f *ServiceFactory) NewSettingsService(settings domain.SettingsRepository, audit domain.AuditSink) *domain.SettingsService {
	return domain.NewSettingsService(settings, audit)
}

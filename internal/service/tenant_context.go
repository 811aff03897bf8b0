package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/security"
	"github.com/endlessblink/Gear-Pool/pkg/cache"
)

const tenantCacheTTL = 30 * time.Second

// Principal is the authenticated caller as carried by the access token.
type Principal struct {
	UserID   string
	TenantID string
	Role     domain.Role
}

// TenantContext resolves the explicit scope each request runs in and owns
// tenant settings.
type TenantContext struct {
	store  domain.Store
	cache  *cache.Cache[string, *domain.Tenant]
	authz  *security.AuthorizationService
	audits *AuditService
	logger *slog.Logger
}

// NewTenantContext creates a new tenant context resolver
func NewTenantContext(store domain.Store, authz *security.AuthorizationService, audits *AuditService, logger *slog.Logger) *TenantContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantContext{
		store:  store,
		cache:  cache.New[string, *domain.Tenant](),
		authz:  authz,
		audits: audits,
		logger: logger,
	}
}

// Resolve checks that the caller belongs to pathTenantID and returns the
// scope carrying the tenant's current settings.
func (tc *TenantContext) Resolve(ctx context.Context, p Principal, pathTenantID, requestID string) (domain.TenantScope, error) {
	if p.UserID == "" || !p.Role.Valid() {
		return domain.TenantScope{}, domain.NewUnauthorizedError("missing principal")
	}
	if err := tc.authz.ValidateTenantAccess(p.TenantID, pathTenantID); err != nil {
		return domain.TenantScope{}, err
	}
	tenant, err := tc.Tenant(ctx, pathTenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TenantScope{}, domain.NewForbiddenError("access denied: unknown tenant")
		}
		return domain.TenantScope{}, err
	}
	if !tenant.IsActive {
		return domain.TenantScope{}, domain.NewForbiddenError("tenant is disabled")
	}
	return domain.TenantScope{
		TenantID:  tenant.ID,
		ActorID:   p.UserID,
		Role:      p.Role,
		Settings:  tenant.Settings,
		RequestID: requestID,
	}, nil
}

// Tenant returns the tenant through the TTL cache.
func (tc *TenantContext) Tenant(ctx context.Context, id string) (*domain.Tenant, error) {
	if t, ok := tc.cache.Get(id); ok {
		return t, nil
	}
	t, err := tc.store.Tenants().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tc.cache.Set(id, t, tenantCacheTTL)
	return t, nil
}

// CreateTenant registers a department with default settings where unset.
func (tc *TenantContext) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.ID == "" || tenant.Name == "" {
		return domain.NewValidationError("tenant id and name are required", nil)
	}
	if tenant.Settings.GraceWindow == 0 {
		tenant.Settings.GraceWindow = domain.DefaultGraceWindow
	}
	if err := tenant.Settings.Validate(); err != nil {
		return err
	}
	tenant.IsActive = true
	scope := domain.SystemScope(tenant.ID, tenant.Settings)
	var entry *domain.AuditLogEntry
	err := tc.store.Atomic(ctx, nil, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Tenants().Create(ctx, tenant); err != nil {
			return err
		}
		entry = tc.audits.NewEntry(scope, domain.ActionCreate, domain.ResourceTenant, tenant.ID, nil, tenant)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return err
	}
	tc.audits.Commit(ctx, entry)
	return nil
}

// UpdateSettings replaces the tenant policy. Admin only.
func (tc *TenantContext) UpdateSettings(ctx context.Context, scope domain.TenantScope, settings domain.TenantSettings) (*domain.Tenant, error) {
	tenant, err := tc.updateSettings(ctx, scope, settings)
	if err != nil {
		tc.audits.RecordFailure(ctx, scope, domain.ActionUpdateSettings, domain.ResourceTenant, scope.TenantID, err)
		return nil, err
	}
	return tenant, nil
}

func (tc *TenantContext) updateSettings(ctx context.Context, scope domain.TenantScope, settings domain.TenantSettings) (*domain.Tenant, error) {
	if err := tc.authz.ValidatePermission(scope, security.PermManageTenant); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var (
		updated *domain.Tenant
		entry   *domain.AuditLogEntry
	)
	err := tc.store.Atomic(ctx, nil, func(ctx context.Context, repos domain.Repositories) error {
		before, err := repos.Tenants().GetByID(ctx, scope.TenantID)
		if err != nil {
			return err
		}
		if err := repos.Tenants().UpdateSettings(ctx, scope.TenantID, settings); err != nil {
			return err
		}
		after, err := repos.Tenants().GetByID(ctx, scope.TenantID)
		if err != nil {
			return err
		}
		updated = after
		entry = tc.audits.NewEntry(scope, domain.ActionUpdateSettings, domain.ResourceTenant, scope.TenantID,
			before.Settings, after.Settings)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	tc.cache.Delete(scope.TenantID)
	tc.audits.Commit(ctx, entry)
	tc.logger.Info("tenant settings updated",
		slog.String("tenant_id", scope.TenantID),
		slog.String("user_id", scope.ActorID),
	)
	return updated, nil
}

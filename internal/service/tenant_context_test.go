package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

func TestResolveScope(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{SkipApproval: true})

	scope, err := f.tenants.Resolve(f.ctx, Principal{UserID: "stu-1", TenantID: testTenant, Role: domain.RoleStudent}, testTenant, "req-1")
	require.NoError(t, err)
	assert.Equal(t, testTenant, scope.TenantID)
	assert.Equal(t, "stu-1", scope.ActorID)
	assert.Equal(t, "req-1", scope.RequestID)
	assert.True(t, scope.Settings.SkipApproval)
	assert.False(t, scope.System)

	_, err = f.tenants.Resolve(f.ctx, Principal{UserID: "stu-1", TenantID: testTenant, Role: domain.RoleStudent}, "dept-music", "req-2")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.tenants.Resolve(f.ctx, Principal{UserID: "x", TenantID: "dept-music", Role: domain.RoleAdmin}, "dept-music", "req-3")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.tenants.Resolve(f.ctx, Principal{}, testTenant, "req-4")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})
	principal := Principal{UserID: "adm-1", TenantID: testTenant, Role: domain.RoleAdmin}

	// Warm the cache.
	scope, err := f.tenants.Resolve(f.ctx, principal, testTenant, "")
	require.NoError(t, err)
	assert.False(t, scope.Settings.SkipApproval)

	next := domain.TenantSettings{SkipApproval: true, GraceWindow: 5 * time.Minute, IncludeOptionalDependencies: true}
	_, err = f.tenants.UpdateSettings(f.ctx, f.scope("mgr-1"), next)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.tenants.UpdateSettings(f.ctx, f.scope("adm-1"), domain.TenantSettings{GraceWindow: -time.Minute})
	assert.ErrorIs(t, err, domain.ErrValidation)

	tenant, err := f.tenants.UpdateSettings(f.ctx, f.scope("adm-1"), next)
	require.NoError(t, err)
	assert.Equal(t, next, tenant.Settings)

	scope, err = f.tenants.Resolve(f.ctx, principal, testTenant, "")
	require.NoError(t, err)
	assert.Equal(t, next, scope.Settings)

	trail := f.auditTrail()
	last := trail[len(trail)-1]
	assert.Equal(t, domain.ActionUpdateSettings, last.Action)
	assert.Equal(t, domain.ResultSuccess, last.Result)
}

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

func TestRoleHierarchyInheritsPermissions(t *testing.T) {
	as := NewAuthorizationService(nil)
	roles := []domain.Role{domain.RoleStudent, domain.RoleFaculty, domain.RoleManager, domain.RoleAdmin}

	for perm, minimum := range PermissionMinimum {
		for _, role := range roles {
			assert.Equal(t, role.AtLeast(minimum), as.HasPermission(role, perm), "%s/%s", role, perm)
		}
	}
	assert.False(t, as.HasPermission(domain.RoleAdmin, Permission("launch_rockets")))
}

func TestValidateOwnerOr(t *testing.T) {
	as := NewAuthorizationService(nil)
	student := domain.TenantScope{TenantID: "t1", ActorID: "s1", Role: domain.RoleStudent}

	assert.NoError(t, as.ValidateOwnerOr(student, "s1", PermViewAllReservations))
	assert.ErrorIs(t, as.ValidateOwnerOr(student, "s2", PermViewAllReservations), domain.ErrForbidden)

	faculty := domain.TenantScope{TenantID: "t1", ActorID: "f1", Role: domain.RoleFaculty}
	assert.NoError(t, as.ValidateOwnerOr(faculty, "s2", PermViewAllReservations))
}

func TestValidateTenantAccess(t *testing.T) {
	as := NewAuthorizationService(nil)
	assert.NoError(t, as.ValidateTenantAccess("t1", "t1"))
	assert.ErrorIs(t, as.ValidateTenantAccess("t1", "t2"), domain.ErrForbidden)
}

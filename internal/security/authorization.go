package security

import (
	"log/slog"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermCreateReservation    Permission = "create_reservation"
	PermViewAllReservations  Permission = "view_all_reservations"
	PermDecideReservation    Permission = "decide_reservation"
	PermCancelAnyReservation Permission = "cancel_any_reservation"
	PermHandoverEquipment    Permission = "handover_equipment"
	PermManageEquipment      Permission = "manage_equipment"
	PermViewAuditLog         Permission = "view_audit_log"
	PermManageUsers          Permission = "manage_users"
	PermManageTenant         Permission = "manage_tenant"
	PermEraseActor           Permission = "erase_actor"
)

// PermissionMinimum maps each permission to the lowest role holding it.
// Higher roles inherit everything below them.
var PermissionMinimum = map[Permission]domain.Role{
	PermCreateReservation:    domain.RoleStudent,
	PermViewAllReservations:  domain.RoleFaculty,
	PermDecideReservation:    domain.RoleFaculty,
	PermCancelAnyReservation: domain.RoleManager,
	PermHandoverEquipment:    domain.RoleManager,
	PermManageEquipment:      domain.RoleManager,
	PermViewAuditLog:         domain.RoleManager,
	PermManageUsers:          domain.RoleAdmin,
	PermManageTenant:         domain.RoleAdmin,
	PermEraseActor:           domain.RoleAdmin,
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	minimum, exists := PermissionMinimum[permission]
	if !exists {
		return false
	}
	return role.AtLeast(minimum)
}

// ValidatePermission validates that the actor in scope has a permission
func (as *AuthorizationService) ValidatePermission(scope domain.TenantScope, permission Permission) error {
	if scope.System || as.HasPermission(scope.Role, permission) {
		return nil
	}
	as.logger.Warn("permission denied",
		slog.String("tenant_id", scope.TenantID),
		slog.String("user_id", scope.ActorID),
		slog.String("role", string(scope.Role)),
		slog.String("permission", string(permission)),
	)
	return domain.NewForbiddenError("role " + string(scope.Role) + " cannot " + string(permission))
}

// ValidateTenantAccess checks if a user belongs to a tenant
func (as *AuthorizationService) ValidateTenantAccess(userTenantID, requestedTenantID string) error {
	if userTenantID != requestedTenantID {
		as.logger.Warn("tenant access denied",
			slog.String("user_tenant", userTenantID),
			slog.String("requested_tenant", requestedTenantID),
		)
		return domain.NewForbiddenError("access denied: tenant mismatch")
	}
	return nil
}

// ValidateOwnerOr allows the resource owner, or anyone holding permission.
func (as *AuthorizationService) ValidateOwnerOr(scope domain.TenantScope, ownerID string, permission Permission) error {
	if scope.ActorID != "" && scope.ActorID == ownerID {
		return nil
	}
	return as.ValidatePermission(scope, permission)
}

package domain

import (
	"context"
	"time"
)

// DefaultGraceWindow is how far in the past a reservation may start.
const DefaultGraceWindow = 15 * time.Minute

// TenantSettings carries per-department policy.
type TenantSettings struct {
	SkipApproval                bool          `json:"skipApproval"`
	GraceWindow                 time.Duration `json:"graceWindow"`
	IncludeOptionalDependencies bool          `json:"includeOptionalDependencies"`
	MaxReservationDuration      time.Duration `json:"maxReservationDuration"`
}

// DefaultTenantSettings returns the settings applied to new tenants.
func DefaultTenantSettings() TenantSettings {
	return TenantSettings{GraceWindow: DefaultGraceWindow}
}

// Validate rejects negative durations.
func (s TenantSettings) Validate() error {
	if s.GraceWindow < 0 {
		return NewValidationError("grace window must not be negative", nil)
	}
	if s.MaxReservationDuration < 0 {
		return NewValidationError("max reservation duration must not be negative", nil)
	}
	return nil
}

// Tenant represents a department sharing the equipment pool.
// Only Settings and IsActive change after creation.
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Settings  TenantSettings `json:"settings"`
	IsActive  bool           `json:"isActive"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	UpdateSettings(ctx context.Context, id string, settings TenantSettings) error
	List(ctx context.Context) ([]*Tenant, error)
}

// SystemActorID identifies mutations made by background jobs.
const SystemActorID = "system"

// TenantScope is the explicit tenant and actor context every operation runs in.
type TenantScope struct {
	TenantID  string
	ActorID   string
	Role      Role
	Settings  TenantSettings
	RequestID string
	System    bool
}

// SystemScope builds a scope for background work inside one tenant.
func SystemScope(tenantID string, settings TenantSettings) TenantScope {
	return TenantScope{
		TenantID: tenantID,
		ActorID:  SystemActorID,
		Role:     RoleAdmin,
		Settings: settings,
		System:   true,
	}
}

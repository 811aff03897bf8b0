package domain

import (
	"context"
	"strings"
	"time"
)

// Role is a user's position in the tenant hierarchy.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

var roleRank = map[Role]int{
	RoleStudent: 1,
	RoleFaculty: 2,
	RoleManager: 3,
	RoleAdmin:   4,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is the same as or above minimum.
// Unknown roles never satisfy any minimum.
func (r Role) AtLeast(minimum Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	want, ok := roleRank[minimum]
	if !ok {
		return false
	}
	return have >= want
}

// ParseRole converts user input into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", NewValidationError("unknown role", map[string]any{"role": s})
	}
	return r, nil
}

// User represents a member of a tenant
type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, tenantID, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*User, error)
	ListByRole(ctx context.Context, tenantID string, minimum Role) ([]*User, error)
}

package domain

import (
	"context"
	"strings"
)

const catalogLockPrefix = "catalog:"

// CatalogLockKey names a tenant-wide lock. Passing it to Store.Atomic
// serialises every caller that rewrites the tenant's dependency graph.
func CatalogLockKey(tenantID string) string {
	return catalogLockPrefix + tenantID
}

// IsCatalogLockKey reports whether key was built by CatalogLockKey.
func IsCatalogLockKey(key string) bool {
	return strings.HasPrefix(key, catalogLockPrefix)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Tenants() TenantRepository
	Users() UserRepository
	Equipment() EquipmentRepository
	Reservations() ReservationRepository
	Audit() AuditRepository
}

// Store is the persistence boundary.
type Store interface {
	Repositories
	// Atomic runs fn in one transaction while holding exclusive locks on the
	// given equipment ids, acquired in sorted order. Keys built by
	// CatalogLockKey are held for the transaction as well. Any error from fn rolls
	// back every write made through the repos it received.
	Atomic(ctx context.Context, equipmentIDs []string, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}

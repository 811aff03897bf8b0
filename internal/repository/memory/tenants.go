package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

type tenantRepo struct {
	s *Store
	j *journal
}

func (r *tenantRepo) Create(ctx context.Context, tenant *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.tenants[tenant.ID]; exists {
		return fmt.Errorf("tenant %s already exists", tenant.ID)
	}
	now := r.s.now()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	cp := *tenant
	r.s.tenants[tenant.ID] = &cp
	r.j.record(func() { delete(r.s.tenants, tenant.ID) })
	return nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, domain.NewNotFoundError("tenant", id)
	}
	cp := *t
	return &cp, nil
}

func (r *tenantRepo) UpdateSettings(ctx context.Context, id string, settings domain.TenantSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return domain.NewNotFoundError("tenant", id)
	}
	prev := *t
	t.Settings = settings
	t.UpdatedAt = r.s.now()
	r.j.record(func() { *t = prev })
	return nil
}

func (r *tenantRepo) List(ctx context.Context) ([]*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

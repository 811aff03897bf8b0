package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

type equipmentRepo struct {
	s *Store
	j *journal
}

func cloneEquipment(e *domain.EquipmentItem) *domain.EquipmentItem {
	cp := *e
	cp.Dependencies = append([]domain.Dependency(nil), e.Dependencies...)
	return &cp
}

func (r *equipmentRepo) Create(ctx context.Context, item *domain.EquipmentItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.equipment[item.ID]; exists {
		return fmt.Errorf("equipment %s already exists", item.ID)
	}
	now := r.s.now()
	item.CreatedAt, item.UpdatedAt = now, now
	r.s.equipment[item.ID] = cloneEquipment(item)
	r.j.record(func() { delete(r.s.equipment, item.ID) })
	return nil
}

func (r *equipmentRepo) Update(ctx context.Context, item *domain.EquipmentItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.equipment[item.ID]
	if !ok || cur.TenantID != item.TenantID {
		return domain.NewNotFoundError("equipment", item.ID)
	}
	prev := cloneEquipment(cur)
	item.UpdatedAt = r.s.now()
	next := cloneEquipment(item)
	next.CreatedAt = cur.CreatedAt
	next.Dependencies = prev.Dependencies
	r.s.equipment[item.ID] = next
	r.j.record(func() { r.s.equipment[item.ID] = prev })
	return nil
}

func (r *equipmentRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.EquipmentItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.equipment[id]
	if !ok || e.TenantID != tenantID {
		return nil, domain.NewNotFoundError("equipment", id)
	}
	return cloneEquipment(e), nil
}

func (r *equipmentRepo) List(ctx context.Context, tenantID string, filter domain.EquipmentFilter) ([]*domain.EquipmentItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.EquipmentItem
	for _, e := range r.s.equipment {
		if e.TenantID != tenantID {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.ActiveOnly && !e.IsActive {
			continue
		}
		out = append(out, cloneEquipment(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *equipmentRepo) SetDependencies(ctx context.Context, tenantID, id string, deps []domain.Dependency) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.equipment[id]
	if !ok || e.TenantID != tenantID {
		return domain.NewNotFoundError("equipment", id)
	}
	prev := cloneEquipment(e)
	next := cloneEquipment(e)
	next.Dependencies = append([]domain.Dependency(nil), deps...)
	next.UpdatedAt = r.s.now()
	r.s.equipment[id] = next
	r.j.record(func() { r.s.equipment[id] = prev })
	return nil
}

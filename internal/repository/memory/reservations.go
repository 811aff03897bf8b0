package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

type reservationRepo struct {
	s *Store
	j *journal
}

func (r *reservationRepo) Create(ctx context.Context, res *domain.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	now := r.s.now()
	res.CreatedAt, res.UpdatedAt = now, now
	if res.Version == 0 {
		res.Version = 1
	}
	for i := range res.Items {
		res.Items[i].ReservationID = res.ID
	}
	r.s.reservations[res.ID] = res.Clone()
	r.j.record(func() { delete(r.s.reservations, res.ID) })
	return nil
}

func (r *reservationRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.reservations[id]
	if !ok || res.TenantID != tenantID {
		return nil, domain.NewNotFoundError("reservation", id)
	}
	return res.Clone(), nil
}

func (r *reservationRepo) List(ctx context.Context, tenantID string, filter domain.ReservationFilter) ([]*domain.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Reservation
	for _, res := range r.s.reservations {
		if res.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && res.UserID != filter.UserID {
			continue
		}
		if filter.Overlapping != nil && !res.Interval.Overlaps(*filter.Overlapping) {
			continue
		}
		if filter.EquipmentID != "" && !hasEquipment(res, filter.EquipmentID) {
			continue
		}
		out = append(out, res.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Interval.Start.Equal(out[j].Interval.Start) {
			return out[i].Interval.Start.Before(out[j].Interval.Start)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func hasEquipment(res *domain.Reservation, equipmentID string) bool {
	for _, it := range res.Items {
		if it.EquipmentID == equipmentID {
			return true
		}
	}
	return false
}

func (r *reservationRepo) FindOverlapping(ctx context.Context, tenantID, equipmentID string, iv domain.Interval, excludeID string) ([]domain.Allocation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Allocation
	for _, res := range r.s.reservations {
		if res.TenantID != tenantID || res.ID == excludeID || !res.Status.IsCommitted() {
			continue
		}
		if !res.Interval.Overlaps(iv) {
			continue
		}
		qty := 0
		for _, it := range res.Items {
			if it.EquipmentID == equipmentID {
				qty += it.Quantity
			}
		}
		if qty > 0 {
			out = append(out, domain.Allocation{
				ReservationID: res.ID,
				Quantity:      qty,
				Interval:      res.Interval,
				Status:        res.Status,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationID < out[j].ReservationID })
	return out, nil
}

func (r *reservationRepo) Save(ctx context.Context, res *domain.Reservation, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.reservations[res.ID]
	if !ok || cur.TenantID != res.TenantID {
		return domain.NewNotFoundError("reservation", res.ID)
	}
	if cur.Version != expectedVersion {
		return domain.NewStaleError(res.ID, expectedVersion, cur.Version)
	}
	prev := cur.Clone()
	res.Version = expectedVersion + 1
	res.UpdatedAt = r.s.now()
	next := res.Clone()
	next.CreatedAt = cur.CreatedAt
	r.s.reservations[res.ID] = next
	r.j.record(func() { r.s.reservations[res.ID] = prev })
	return nil
}

func (r *reservationRepo) ListPastDue(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Reservation
	for _, res := range r.s.reservations {
		if res.Status == domain.StatusActive && !now.Before(res.Interval.End) {
			out = append(out, res.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interval.End.Before(out[j].Interval.End) })
	return out, nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

type userRepo struct {
	s *Store
	j *journal
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.NewValidationError("email already registered", map[string]any{"email": user.Email})
		}
	}
	if _, exists := r.s.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	r.s.users[user.ID] = &cp
	r.j.record(func() { delete(r.s.users, user.ID) })
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, domain.NewNotFoundError("user", id)
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("user", email)
}

func (r *userRepo) ListByTenant(ctx context.Context, tenantID string) ([]*domain.User, error) {
	return r.list(tenantID, func(*domain.User) bool { return true }), nil
}

func (r *userRepo) ListByRole(ctx context.Context, tenantID string, minimum domain.Role) ([]*domain.User, error) {
	return r.list(tenantID, func(u *domain.User) bool { return u.IsActive && u.Role.AtLeast(minimum) }), nil
}

func (r *userRepo) list(tenantID string, keep func(*domain.User) bool) []*domain.User {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.User
	for _, u := range r.s.users {
		if u.TenantID == tenantID && keep(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

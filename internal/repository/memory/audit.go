package memory

import (
	"context"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

type auditRepo struct {
	s *Store
	j *journal
}

// Append assigns the next global sequence. A rolled back entry leaves a gap
// in the sequence, as a database sequence would.
func (r *auditRepo) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sequence++
	entry.Sequence = r.s.sequence
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	cp := &domain.AuditLogEntry{}
	*cp = *entry
	r.s.audit = append(r.s.audit, cp)
	r.j.record(func() {
		for i, e := range r.s.audit {
			if e == cp {
				r.s.audit = append(r.s.audit[:i], r.s.audit[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *auditRepo) List(ctx context.Context, tenantID string, filter domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.AuditLogEntry
	for _, e := range r.s.audit {
		if e.TenantID != tenantID || e.Sequence <= filter.AfterSequence {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *auditRepo) AnonymizeActor(ctx context.Context, tenantID, actorID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.audit {
		if e.TenantID == tenantID && e.ActorID == actorID {
			entry := e
			entry.ActorID = domain.AnonymousActor
			r.j.record(func() { entry.ActorID = actorID })
			n++
		}
	}
	return n, nil
}

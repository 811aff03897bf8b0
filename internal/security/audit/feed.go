package audit

import (
	"sync"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

const subscriberBuffer = 64

// Feed fans committed audit entries out to live subscribers of a tenant.
// A subscriber that falls behind loses entries rather than blocking writers.
type Feed struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch chan *domain.AuditLogEntry
}

func NewFeed() *Feed {
	return &Feed{subs: map[string]map[*subscription]struct{}{}}
}

// Subscribe returns a channel of new entries for tenantID and a cancel func
// that must be called once the caller stops reading.
func (f *Feed) Subscribe(tenantID string) (<-chan *domain.AuditLogEntry, func()) {
	sub := &subscription{ch: make(chan *domain.AuditLogEntry, subscriberBuffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if f.subs[tenantID] == nil {
		f.subs[tenantID] = map[*subscription]struct{}{}
	}
	f.subs[tenantID][sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[tenantID][sub]; ok {
				delete(f.subs[tenantID], sub)
				close(sub.ch)
			}
		})
	}
}

// Publish delivers e to every subscriber of its tenant without blocking.
func (f *Feed) Publish(e *domain.AuditLogEntry) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs[e.TenantID] {
		cp := *e
		select {
		case sub.ch <- &cp:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers for tenantID.
func (f *Feed) Subscribers(tenantID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[tenantID])
}

// Close ends every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for tenant, subs := range f.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(f.subs, tenant)
	}
}

// Package memory is an in-process domain.Store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// Store keeps every repository in maps guarded by one RWMutex. Atomic
// serialises callers per equipment id with keyed mutexes and undoes the
// writes of a failed callback from a journal.
type Store struct {
	mu           sync.RWMutex
	tenants      map[string]*domain.Tenant
	users        map[string]*domain.User
	equipment    map[string]*domain.EquipmentItem
	reservations map[string]*domain.Reservation
	audit        []*domain.AuditLogEntry
	sequence     int64

	locks *keyedLocks
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tenants:      map[string]*domain.Tenant{},
		users:        map[string]*domain.User{},
		equipment:    map[string]*domain.EquipmentItem{},
		reservations: map[string]*domain.Reservation{},
		locks:        newKeyedLocks(),
		now:          time.Now,
	}
}

// WithClock replaces the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Tenants() domain.TenantRepository           { return &tenantRepo{s: s} }
func (s *Store) Users() domain.UserRepository               { return &userRepo{s: s} }
func (s *Store) Equipment() domain.EquipmentRepository      { return &equipmentRepo{s: s} }
func (s *Store) Reservations() domain.ReservationRepository { return &reservationRepo{s: s} }
func (s *Store) Audit() domain.AuditRepository              { return &auditRepo{s: s} }

// Atomic implements domain.Store.
func (s *Store) Atomic(ctx context.Context, equipmentIDs []string, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release := s.locks.acquire(equipmentIDs)
	defer release()

	tx := &txRepos{s: s, journal: &journal{}}
	if err := fn(ctx, tx); err != nil {
		s.mu.Lock()
		tx.journal.rollback()
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// txRepos hands out repositories that record undo steps.
type txRepos struct {
	s       *Store
	journal *journal
}

func (t *txRepos) Tenants() domain.TenantRepository {
	return &tenantRepo{s: t.s, j: t.journal}
}
func (t *txRepos) Users() domain.UserRepository { return &userRepo{s: t.s, j: t.journal} }
func (t *txRepos) Equipment() domain.EquipmentRepository {
	return &equipmentRepo{s: t.s, j: t.journal}
}
func (t *txRepos) Reservations() domain.ReservationRepository {
	return &reservationRepo{s: t.s, j: t.journal}
}
func (t *txRepos) Audit() domain.AuditRepository { return &auditRepo{s: t.s, j: t.journal} }

// journal collects undo closures; a nil journal records nothing.
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

// rollback must run with the store write lock held.
func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: map[string]*sync.Mutex{}}
}

// acquire locks every distinct key in sorted order and returns the release func.
func (k *keyedLocks) acquire(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && sorted[i-1] == key {
			continue
		}
		k.mu.Lock()
		m, ok := k.locks[key]
		if !ok {
			m = &sync.Mutex{}
			k.locks[key] = m
		}
		k.mu.Unlock()
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/notify"
	"github.com/endlessblink/Gear-Pool/internal/repository/memory"
	"github.com/endlessblink/Gear-Pool/internal/security"
	"github.com/endlessblink/Gear-Pool/internal/security/audit"
	"github.com/endlessblink/Gear-Pool/internal/security/auth"
)

const testTenant = "dept-film"

// Users seeded into every fixture, keyed by id.
var testUsers = map[string]domain.Role{
	"stu-1": domain.RoleStudent,
	"stu-2": domain.RoleStudent,
	"fac-1": domain.RoleFaculty,
	"mgr-1": domain.RoleManager,
	"adm-1": domain.RoleAdmin,
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	now      time.Time
	store    *memory.Store
	feed     *audit.Feed
	audits   *AuditService
	engine   *ReservationEngine
	workflow *WorkflowService
	catalog  *CatalogService
	tenants  *TenantContext
	auth     *AuthService
	queue    *notify.MemoryQueue
	settings domain.TenantSettings
}

func newFixture(t *testing.T, settings domain.TenantSettings) *fixture {
	t.Helper()
	if settings.GraceWindow == 0 {
		settings.GraceWindow = domain.DefaultGraceWindow
	}
	ctx := context.Background()
	store := memory.NewStore()
	authz := security.NewAuthorizationService(nil)
	feed := audit.NewFeed()
	audits := NewAuditService(store, audit.NewLogger(nil), feed, authz, nil)
	queue := notify.NewMemoryQueue()

	f := &fixture{
		t:        t,
		ctx:      ctx,
		now:      time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		store:    store,
		feed:     feed,
		audits:   audits,
		engine:   NewReservationEngine(store, authz, audits, nil),
		workflow: NewWorkflowService(store, audits, notify.NewDispatcher(queue, nil), nil),
		catalog:  NewCatalogService(store, authz, audits, nil),
		tenants:  NewTenantContext(store, authz, audits, nil),
		auth: NewAuthService(store, auth.NewTokenManager("test-secret", ""), auth.NewMemoryRevocationStore(),
			time.Hour, authz, audits, nil),
		queue:    queue,
		settings: settings,
	}
	f.setNow(f.now)

	require.NoError(t, f.tenants.CreateTenant(ctx, &domain.Tenant{ID: testTenant, Name: "Film Department", Slug: "film", Settings: settings}))
	for id, role := range testUsers {
		require.NoError(t, store.Users().Create(ctx, &domain.User{
			ID:       id,
			TenantID: testTenant,
			Email:    id + "@example.edu",
			Role:     role,
			IsActive: true,
		}))
	}
	return f
}

func (f *fixture) setNow(now time.Time) {
	f.now = now
	clock := func() time.Time { return now }
	f.engine.now = clock
	f.workflow.now = clock
	f.catalog.now = clock
}

func (f *fixture) scope(userID string) domain.TenantScope {
	return domain.TenantScope{
		TenantID:  testTenant,
		ActorID:   userID,
		Role:      testUsers[userID],
		Settings:  f.settings,
		RequestID: "req-" + userID,
	}
}

func (f *fixture) equipment(name string, qty int, deps ...domain.Dependency) *domain.EquipmentItem {
	f.t.Helper()
	item, err := f.catalog.CreateEquipment(f.ctx, f.scope("mgr-1"), EquipmentInput{
		Category:      "camera",
		Name:          name,
		TotalQuantity: qty,
		Condition:     domain.ConditionExcellent,
	})
	require.NoError(f.t, err)
	if len(deps) > 0 {
		item, err = f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), item.ID, deps)
		require.NoError(f.t, err)
	}
	return item
}

func day(d, hour int) time.Time {
	return time.Date(2026, 6, d, hour, 0, 0, 0, time.UTC)
}

func interval(fromDay, toDay int) domain.Interval {
	return domain.Interval{Start: day(fromDay, 9), End: day(toDay, 9)}
}

func (f *fixture) reserve(userID, equipmentID string, qty int, iv domain.Interval) (*domain.Reservation, error) {
	return f.engine.CreateReservation(f.ctx, f.scope(userID), CreateReservationRequest{
		Interval: iv,
		Items:    []ItemRequest{{EquipmentID: equipmentID, Quantity: qty}},
		Purpose:  "coursework",
	})
}

func (f *fixture) auditTrail() []*domain.AuditLogEntry {
	f.t.Helper()
	entries, err := f.store.Audit().List(f.ctx, testTenant, domain.AuditFilter{})
	require.NoError(f.t, err)
	return entries
}

// drainNotifications pops everything the dispatcher has queued so far.
func (f *fixture) drainNotifications() []*domain.Notification {
	f.t.Helper()
	due, err := f.queue.PopDue(f.ctx, time.Now().Add(time.Minute), 100)
	require.NoError(f.t, err)
	return due
}

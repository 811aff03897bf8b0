package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/repository/memory"
)

type recordingMarker struct {
	calls  []string
	scopes []domain.TenantScope
	marked map[string]bool
	fail   string
}

func (m *recordingMarker) MarkOverdue(ctx context.Context, scope domain.TenantScope, reservationID string) (bool, error) {
	m.calls = append(m.calls, reservationID)
	m.scopes = append(m.scopes, scope)
	if reservationID == m.fail {
		return false, errors.New("store unavailable")
	}
	if m.marked[reservationID] {
		return false, nil
	}
	m.marked[reservationID] = true
	return true, nil
}

func seedReservation(t *testing.T, store *memory.Store, id, tenantID string, status domain.Status, end time.Time) {
	t.Helper()
	require.NoError(t, store.Reservations().Create(context.Background(), &domain.Reservation{
		ID:       id,
		TenantID: tenantID,
		UserID:   "stu-1",
		Interval: domain.Interval{Start: end.Add(-48 * time.Hour), End: end},
		Items:    []domain.ReservationItem{{EquipmentID: "cam", Quantity: 1}},
		Status:   status,
	}))
}

func TestOverdueScanMarksPastDueOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	settings := domain.TenantSettings{GraceWindow: domain.DefaultGraceWindow, SkipApproval: true}
	require.NoError(t, store.Tenants().Create(ctx, &domain.Tenant{ID: "t1", Name: "Film", Settings: settings, IsActive: true}))

	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	seedReservation(t, store, "late", "t1", domain.StatusActive, now.Add(-time.Hour))
	seedReservation(t, store, "due-now", "t1", domain.StatusActive, now)
	seedReservation(t, store, "running", "t1", domain.StatusActive, now.Add(time.Hour))
	seedReservation(t, store, "returned", "t1", domain.StatusCompleted, now.Add(-time.Hour))

	marker := &recordingMarker{marked: map[string]bool{}}
	w := NewOverdueWorker(store, marker, nil, time.Minute)
	w.now = func() time.Time { return now }

	assert.Equal(t, 2, w.Scan(ctx))
	assert.ElementsMatch(t, []string{"late", "due-now"}, marker.calls)
	for _, s := range marker.scopes {
		assert.True(t, s.System)
		assert.Equal(t, "t1", s.TenantID)
		assert.True(t, s.Settings.SkipApproval)
	}

	assert.Equal(t, 0, w.Scan(ctx))
	assert.Len(t, marker.calls, 4)
}

func TestOverdueScanContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Tenants().Create(ctx, &domain.Tenant{ID: "t1", Name: "Film", IsActive: true}))

	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	seedReservation(t, store, "a", "t1", domain.StatusActive, now.Add(-2*time.Hour))
	seedReservation(t, store, "b", "t1", domain.StatusActive, now.Add(-time.Hour))
	seedReservation(t, store, "orphan", "gone", domain.StatusActive, now.Add(-time.Hour))

	marker := &recordingMarker{marked: map[string]bool{}, fail: "a"}
	w := NewOverdueWorker(store, marker, nil, time.Minute)
	w.now = func() time.Time { return now }

	assert.Equal(t, 1, w.Scan(ctx))
	assert.ElementsMatch(t, []string{"a", "b"}, marker.calls)
}

func TestOverdueWorkerStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	w := NewOverdueWorker(store, &recordingMarker{marked: map[string]bool{}}, nil, 10*time.Millisecond)
	w.enabled = func() bool { return false }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

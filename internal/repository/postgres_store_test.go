package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, nil), mock
}

func TestAtomicLocksEquipmentAndCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM equipment WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectCommit()

	called := false
	err := store.Atomic(context.Background(), []string{"b", "a", "b"}, func(ctx context.Context, repos domain.Repositories) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicTakesCatalogAdvisoryLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs(domain.CatalogLockKey("t1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM equipment WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a"))
	mock.ExpectCommit()

	err := store.Atomic(context.Background(), []string{"a", domain.CatalogLockKey("t1")}, func(ctx context.Context, repos domain.Repositories) error {
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicRollsBackOnCallbackError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Atomic(context.Background(), nil, func(ctx context.Context, repos domain.Repositories) error {
		return domain.NewValidationError("bad", nil)
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicRetriesSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := store.Atomic(context.Background(), nil, func(ctx context.Context, repos domain.Repositories) error {
		attempts++
		if attempts == 1 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(&pq.Error{Code: "40P01"}))
	assert.False(t, IsSerializationFailure(&pq.Error{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("plain")))
}

func TestSaveReportsStaleVersion(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE reservations`).
		WithArgs("approved", "u9", "", "r1", "t1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))
	mock.ExpectQuery(`SELECT version FROM reservations`).
		WithArgs("r1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))

	res := &domain.Reservation{ID: "r1", TenantID: "t1", Status: domain.StatusApproved, ApprovedBy: "u9"}
	err := store.Reservations().Save(context.Background(), res, 1)
	assert.ErrorIs(t, err, domain.ErrStaleReservationState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMissingReservation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE reservations`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))
	mock.ExpectQuery(`SELECT version FROM reservations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	err := store.Reservations().Save(context.Background(), &domain.Reservation{ID: "r1", TenantID: "t1"}, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindOverlappingUsesHalfOpenPredicate(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`r\.start_at < \$4\s+AND r\.end_at > \$5`).
		WithArgs("t1", "cam", sqlmock.AnyArg(), end, start, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "sum", "start_at", "end_at", "status"}).
			AddRow("r-a", 2, start.Add(-24*time.Hour), end.Add(-24*time.Hour), "approved"))

	allocs, err := store.Reservations().FindOverlapping(context.Background(), "t1", "cam", domain.Interval{Start: start, End: end}, "")
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, "r-a", allocs[0].ReservationID)
	assert.Equal(t, 2, allocs[0].Quantity)
	assert.Equal(t, domain.StatusApproved, allocs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditAppendAssignsSequence(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO audit_log`).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(int64(41)))

	entry := &domain.AuditLogEntry{TenantID: "t1", ActorID: "u1", Action: domain.ActionCreate, Result: domain.ResultSuccess}
	require.NoError(t, store.Audit().Append(context.Background(), entry))
	assert.Equal(t, int64(41), entry.Sequence)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestAnonymizeActorReturnsRowsAffected(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE audit_log SET actor_id`).
		WithArgs(domain.AnonymousActor, "t1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.Audit().AnonymizeActor(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

func TestReservationLifecycle(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})
	cam := f.equipment("Sony FX3", 1)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)

	res, err = f.workflow.Approve(f.ctx, f.scope("fac-1"), TransitionRequest{ReservationID: res.ID, ExpectedVersion: 1, Note: "ok for shoot"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, res.Status)
	assert.Equal(t, "fac-1", res.ApprovedBy)
	assert.Equal(t, int64(2), res.Version)

	res, err = f.workflow.Checkout(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: res.ID, ExpectedVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, res.Status)
	assert.Equal(t, domain.ConditionExcellent, res.Items[0].CheckoutCondition)

	res, err = f.workflow.Checkin(f.ctx, f.scope("mgr-1"), TransitionRequest{
		ReservationID:   res.ID,
		ExpectedVersion: 3,
		Conditions:      map[string]domain.Condition{cam.ID: domain.ConditionFair},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, domain.ConditionFair, res.Items[0].CheckinCondition)
	assert.Equal(t, 2, res.Items[0].DamageDelta)

	item, err := f.catalog.GetEquipment(f.ctx, f.scope("stu-1"), cam.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionFair, item.Condition)

	var actions []domain.AuditAction
	var last int64
	for _, e := range f.auditTrail() {
		if e.ResourceID != res.ID {
			continue
		}
		assert.Greater(t, e.Sequence, last)
		last = e.Sequence
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []domain.AuditAction{
		domain.ActionCreate, domain.ActionApprove, domain.ActionCheckout, domain.ActionCheckin,
	}, actions)
}

func TestCompletedCannotBeApproved(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{SkipApproval: true})
	cam := f.equipment("Sony FX3", 1)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)
	_, err = f.workflow.Checkout(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)
	_, err = f.workflow.Checkin(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)

	_, err = f.workflow.Approve(f.ctx, f.scope("adm-1"), TransitionRequest{ReservationID: res.ID})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.EqualError(t, err, "invalid state transition: completed -> approved")

	trail := f.auditTrail()
	last := trail[len(trail)-1]
	assert.Equal(t, domain.ResultFailure, last.Result)
	assert.Equal(t, domain.ActionApprove, last.Action)
	assert.Equal(t, domain.CodeInvalidStateTransition, last.ErrorCode)
}

func TestOverdueTransitionErrorCitesOverdue(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{SkipApproval: true})
	cam := f.equipment("Sony FX3", 1)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)
	_, err = f.workflow.Checkout(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)

	f.setNow(day(18, 9))
	_, err = f.workflow.Approve(f.ctx, f.scope("adm-1"), TransitionRequest{ReservationID: res.ID})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.EqualError(t, err, "invalid state transition: overdue -> approved")

	done, err := f.workflow.Checkin(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
}

func TestTransitionRoles(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})
	cam := f.equipment("Sony FX3", 3)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)

	_, err = f.workflow.Approve(f.ctx, f.scope("stu-1"), TransitionRequest{ReservationID: res.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.workflow.Cancel(f.ctx, f.scope("stu-2"), TransitionRequest{ReservationID: res.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.workflow.Cancel(f.ctx, f.scope("fac-1"), TransitionRequest{ReservationID: res.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := f.workflow.Cancel(f.ctx, f.scope("stu-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	other, err := f.reserve("stu-2", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)
	_, err = f.workflow.Approve(f.ctx, f.scope("fac-1"), TransitionRequest{ReservationID: other.ID})
	require.NoError(t, err)
	_, err = f.workflow.Checkout(f.ctx, f.scope("fac-1"), TransitionRequest{ReservationID: other.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.workflow.Cancel(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: other.ID})
	assert.NoError(t, err)

	// Another tenant's reservation is invisible.
	foreign := f.scope("mgr-1")
	foreign.TenantID = "dept-music"
	_, err = f.workflow.Cancel(f.ctx, foreign, TransitionRequest{ReservationID: other.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelReleasesQuantity(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{SkipApproval: true})
	cam := f.equipment("Sony FX3", 1)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)
	_, err = f.reserve("stu-2", cam.ID, 1, interval(15, 17))
	require.ErrorIs(t, err, domain.ErrEquipmentUnavailable)

	_, err = f.workflow.Cancel(f.ctx, f.scope("stu-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)

	_, err = f.reserve("stu-2", cam.ID, 1, interval(15, 17))
	assert.NoError(t, err)
}

func TestStaleVersionIsRejected(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})
	cam := f.equipment("Sony FX3", 1)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)

	_, err = f.workflow.Approve(f.ctx, f.scope("fac-1"), TransitionRequest{ReservationID: res.ID, ExpectedVersion: 1})
	require.NoError(t, err)

	_, err = f.workflow.Cancel(f.ctx, f.scope("stu-1"), TransitionRequest{ReservationID: res.ID, ExpectedVersion: 1})
	require.ErrorIs(t, err, domain.ErrStaleReservationState)
	assert.Equal(t, domain.CodeStaleReservationState, domain.CodeOf(err))

	stored, err := f.store.Reservations().GetByID(f.ctx, testTenant, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestCheckoutRejectsUnknownConditions(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{SkipApproval: true})
	cam := f.equipment("Sony FX3", 1)
	other := f.equipment("Tripod", 1)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)

	_, err = f.workflow.Checkout(f.ctx, f.scope("mgr-1"), TransitionRequest{
		ReservationID: res.ID,
		Conditions:    map[string]domain.Condition{other.ID: domain.ConditionGood},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.workflow.Checkout(f.ctx, f.scope("mgr-1"), TransitionRequest{
		ReservationID: res.ID,
		Conditions:    map[string]domain.Condition{cam.ID: "shiny"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := f.store.Reservations().GetByID(f.ctx, testTenant, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
}

func TestDecisionsNotifyOwner(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})
	cam := f.equipment("Sony FX3", 2)

	a, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)
	b, err := f.reserve("stu-2", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)

	_, err = f.workflow.Approve(f.ctx, f.scope("fac-1"), TransitionRequest{ReservationID: a.ID})
	require.NoError(t, err)
	_, err = f.workflow.Reject(f.ctx, f.scope("fac-1"), TransitionRequest{ReservationID: b.ID, Note: "clashes with exam"})
	require.NoError(t, err)

	due := f.drainNotifications()
	require.Len(t, due, 2)
	byReservation := map[string]*domain.Notification{}
	for _, n := range due {
		byReservation[n.ReservationID] = n
	}
	assert.Equal(t, domain.NotifyApproved, byReservation[a.ID].Kind)
	assert.Equal(t, []string{"stu-1@example.edu"}, byReservation[a.ID].Recipients)
	assert.Equal(t, domain.NotifyRejected, byReservation[b.ID].Kind)
	assert.Contains(t, byReservation[b.ID].Message, "clashes with exam")
}

func TestMarkOverdueOnce(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{SkipApproval: true})
	cam := f.equipment("Sony FX3", 1)

	res, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)
	_, err = f.workflow.Checkout(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)

	system := domain.SystemScope(testTenant, f.settings)
	marked, err := f.workflow.MarkOverdue(f.ctx, system, res.ID)
	require.NoError(t, err)
	assert.False(t, marked, "not yet due")

	_, err = f.workflow.MarkOverdue(f.ctx, f.scope("mgr-1"), res.ID)
	assert.NoError(t, err, "a reservation that is not overdue is left alone")

	f.setNow(day(17, 9))
	_, err = f.workflow.MarkOverdue(f.ctx, f.scope("mgr-1"), res.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	marked, err = f.workflow.MarkOverdue(f.ctx, system, res.ID)
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = f.workflow.MarkOverdue(f.ctx, system, res.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	got, err := f.engine.GetReservation(f.ctx, f.scope("stu-1"), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, got.Status)

	overdue, err := f.engine.ListReservations(f.ctx, f.scope("fac-1"), domain.ReservationFilter{Status: domain.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	due := f.drainNotifications()
	require.Len(t, due, 1)
	assert.Equal(t, domain.NotifyOverdue, due[0].Kind)
	assert.ElementsMatch(t, []string{"stu-1@example.edu", "fac-1@example.edu", "mgr-1@example.edu", "adm-1@example.edu"}, due[0].Recipients)

	// Overdue equipment can still be checked in.
	done, err := f.workflow.Checkin(f.ctx, f.scope("mgr-1"), TransitionRequest{ReservationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	var overdueEntries int
	for _, e := range f.auditTrail() {
		if e.Action == domain.ActionOverdue {
			overdueEntries++
			assert.Equal(t, domain.SystemActorID, e.ActorID)
		}
	}
	assert.Equal(t, 1, overdueEntries)
}

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusPending, StatusApproved, StatusRejected, StatusActive,
	StatusCompleted, StatusCancelled, StatusOverdue,
}

func TestTransitionTableIsExhaustive(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusApproved}:   true,
		{StatusPending, StatusRejected}:   true,
		{StatusPending, StatusCancelled}:  true,
		{StatusApproved, StatusCancelled}: true,
		{StatusApproved, StatusActive}:    true,
		{StatusActive, StatusCompleted}:   true,
		{StatusActive, StatusOverdue}:     true,
	}
	admin := TenantScope{ActorID: "u1", Role: RoleAdmin}
	system := SystemScope("t1", DefaultTenantSettings())

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			key := [2]Status{from, to}
			assert.Equal(t, allowed[key], CanTransition(from, to), "%s -> %s", from, to)
			if allowed[key] {
				continue
			}
			for _, scope := range []TenantScope{admin, system} {
				err := CheckTransition(from, to, scope, "u1")
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidStateTransition))
			}
		}
	}
}

func TestCompletedToApprovedCitesTransition(t *testing.T) {
	err := CheckTransition(StatusCompleted, StatusApproved, TenantScope{Role: RoleAdmin}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completed -> approved")
}

func TestTransitionRoles(t *testing.T) {
	student := TenantScope{ActorID: "s1", Role: RoleStudent}
	faculty := TenantScope{ActorID: "f1", Role: RoleFaculty}
	manager := TenantScope{ActorID: "m1", Role: RoleManager}

	assert.True(t, errors.Is(CheckTransition(StatusPending, StatusApproved, student, "s1"), ErrForbidden))
	assert.NoError(t, CheckTransition(StatusPending, StatusApproved, faculty, "s1"))
	assert.NoError(t, CheckTransition(StatusPending, StatusRejected, manager, "s1"))

	// owners may cancel their own, others need manager
	assert.NoError(t, CheckTransition(StatusPending, StatusCancelled, student, "s1"))
	assert.True(t, errors.Is(CheckTransition(StatusApproved, StatusCancelled, faculty, "s1"), ErrForbidden))
	assert.NoError(t, CheckTransition(StatusApproved, StatusCancelled, manager, "s1"))

	assert.True(t, errors.Is(CheckTransition(StatusApproved, StatusActive, faculty, "s1"), ErrForbidden))
	assert.NoError(t, CheckTransition(StatusApproved, StatusActive, manager, "s1"))
	assert.NoError(t, CheckTransition(StatusActive, StatusCompleted, manager, "s1"))

	admin := TenantScope{ActorID: "a1", Role: RoleAdmin}
	assert.True(t, errors.Is(CheckTransition(StatusActive, StatusOverdue, admin, "s1"), ErrForbidden))
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleStudent))
	assert.True(t, RoleManager.AtLeast(RoleFaculty))
	assert.True(t, RoleFaculty.AtLeast(RoleFaculty))
	assert.False(t, RoleStudent.AtLeast(RoleFaculty))
	assert.False(t, Role("janitor").AtLeast(RoleStudent))

	r, err := ParseRole(" Manager ")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, r)
	_, err = ParseRole("owner")
	assert.True(t, errors.Is(err, ErrValidation))
}

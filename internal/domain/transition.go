package domain

type transitionKey struct {
	from Status
	to   Status
}

// transitionRule gates who may perform a transition.
type transitionRule struct {
	minimum      Role
	ownerAllowed bool
	systemOnly   bool
}

var transitions = map[transitionKey]transitionRule{
	{StatusPending, StatusApproved}:   {minimum: RoleFaculty},
	{StatusPending, StatusRejected}:   {minimum: RoleFaculty},
	{StatusPending, StatusCancelled}:  {minimum: RoleManager, ownerAllowed: true},
	{StatusApproved, StatusCancelled}: {minimum: RoleManager, ownerAllowed: true},
	{StatusApproved, StatusActive}:    {minimum: RoleManager},
	{StatusActive, StatusCompleted}:   {minimum: RoleManager},
	{StatusActive, StatusOverdue}:     {systemOnly: true},
}

// CanTransition reports whether from -> to exists at all.
func CanTransition(from, to Status) bool {
	_, ok := transitions[transitionKey{from, to}]
	return ok
}

// CheckTransition validates from -> to for the actor in scope on a
// reservation owned by ownerID. Unknown pairs fail with
// ErrInvalidStateTransition before any role check.
func CheckTransition(from, to Status, scope TenantScope, ownerID string) error {
	rule, ok := transitions[transitionKey{from, to}]
	if !ok {
		return NewTransitionError(from, to)
	}
	if rule.systemOnly {
		if scope.System {
			return nil
		}
		return NewForbiddenError("only the system may mark reservations " + string(to))
	}
	if scope.System || scope.Role.AtLeast(rule.minimum) {
		return nil
	}
	if rule.ownerAllowed && scope.ActorID != "" && scope.ActorID == ownerID {
		return nil
	}
	return NewForbiddenError("role " + string(scope.Role) + " may not move a reservation to " + string(to))
}

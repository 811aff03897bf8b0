package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, client-facing identifier of a failure.
type ErrorCode string

const (
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodeEquipmentUnavailable   ErrorCode = "EQUIPMENT_UNAVAILABLE"
	CodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	CodeStaleReservationState  ErrorCode = "STALE_RESERVATION_STATE"
	CodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	CodeForbidden              ErrorCode = "FORBIDDEN"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
	CodeInternal               ErrorCode = "INTERNAL"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrEquipmentUnavailable   = errors.New("equipment unavailable")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStaleReservationState  = errors.New("stale reservation state")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrDependencyCycle        = errors.New("dependency cycle")
)

var kindCodes = map[error]ErrorCode{
	ErrValidation:             CodeValidation,
	ErrDependencyCycle:        CodeValidation,
	ErrEquipmentUnavailable:   CodeEquipmentUnavailable,
	ErrInvalidStateTransition: CodeInvalidStateTransition,
	ErrStaleReservationState:  CodeStaleReservationState,
	ErrUnauthorized:           CodeUnauthorized,
	ErrForbidden:              CodeForbidden,
	ErrNotFound:               CodeNotFound,
}

// Error is a business failure. Kind is one of the sentinel errors above so
// callers can use errors.Is.
type Error struct {
	Kind    error
	Code    ErrorCode
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Code: kindCodes[kind], Message: message, Details: details}
}

// NewValidationError reports malformed input.
func NewValidationError(message string, details map[string]any) *Error {
	return newError(ErrValidation, message, details)
}

// NewCycleError reports a dependency edge set that would form a cycle.
func NewCycleError(path []string) *Error {
	return newError(ErrDependencyCycle, "equipment dependencies must not form a cycle",
		map[string]any{"cycle": path})
}

// Shortage describes one equipment item that cannot cover a request.
type Shortage struct {
	EquipmentID    string   `json:"equipmentId"`
	Requested      int      `json:"requested"`
	Committed      int      `json:"committed"`
	TotalQuantity  int      `json:"totalQuantity"`
	ConflictingIDs []string `json:"conflictingReservationIds"`
	RequiredBy     string   `json:"requiredBy,omitempty"`
}

// NewUnavailableError lists every equipment item that lacks capacity.
func NewUnavailableError(shortages []Shortage) *Error {
	return newError(ErrEquipmentUnavailable, "requested equipment is not available for the interval",
		map[string]any{"shortages": shortages})
}

// NewTransitionError names the rejected transition as "from -> to".
func NewTransitionError(from, to Status) *Error {
	return newError(ErrInvalidStateTransition,
		fmt.Sprintf("invalid state transition: %s -> %s", from, to),
		map[string]any{"from": from, "to": to})
}

// NewStaleError reports an optimistic version mismatch.
func NewStaleError(reservationID string, expected, actual int64) *Error {
	return newError(ErrStaleReservationState, "reservation was modified concurrently",
		map[string]any{"reservationId": reservationID, "expectedVersion": expected, "currentVersion": actual})
}

func NewUnauthorizedError(message string) *Error {
	return newError(ErrUnauthorized, message, nil)
}

func NewForbiddenError(message string) *Error {
	return newError(ErrForbidden, message, nil)
}

// NewNotFoundError reports a missing resource within the caller's tenant.
func NewNotFoundError(resource, id string) *Error {
	return newError(ErrNotFound, fmt.Sprintf("%s not found", resource),
		map[string]any{"resource": resource, "id": id})
}

// CodeOf maps any error to its client-facing code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	for kind, code := range kindCodes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return CodeInternal
}

package domain

import (
	"context"
	"sort"
	"time"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusOverdue   Status = "overdue"
)

// CommittedStatuses hold quantity against the pool.
var CommittedStatuses = []Status{StatusApproved, StatusActive}

// IsCommitted reports whether s counts toward allocated quantity.
func (s Status) IsCommitted() bool {
	return s == StatusApproved || s == StatusActive
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusActive,
		StatusCompleted, StatusCancelled, StatusOverdue:
		return true
	}
	return false
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// Overlaps reports whether the two half-open intervals share any instant.
// Back-to-back intervals do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Validate checks ordering and tenant policy relative to now.
func (i Interval) Validate(now time.Time, settings TenantSettings) error {
	if i.Start.IsZero() || i.End.IsZero() {
		return NewValidationError("start and end dates are required", nil)
	}
	if !i.End.After(i.Start) {
		return NewValidationError("end date must be after start date",
			map[string]any{"startDate": i.Start, "endDate": i.End})
	}
	grace := settings.GraceWindow
	if i.Start.Before(now.Add(-grace)) {
		return NewValidationError("start date is in the past",
			map[string]any{"startDate": i.Start, "graceWindow": grace.String()})
	}
	if settings.MaxReservationDuration > 0 && i.Duration() > settings.MaxReservationDuration {
		return NewValidationError("reservation exceeds maximum duration",
			map[string]any{"maxDuration": settings.MaxReservationDuration.String()})
	}
	return nil
}

// ReservationItem is one equipment line of a reservation.
type ReservationItem struct {
	ReservationID     string    `json:"reservationId"`
	EquipmentID       string    `json:"equipmentId"`
	Quantity          int       `json:"quantity"`
	DerivedFrom       string    `json:"derivedFrom,omitempty"`
	CheckoutCondition Condition `json:"checkoutCondition,omitempty"`
	CheckinCondition  Condition `json:"checkinCondition,omitempty"`
	DamageDelta       int       `json:"damageDelta"`
}

// Reservation is a request for equipment over an interval.
type Reservation struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenantId"`
	UserID       string            `json:"userId"`
	Purpose      string            `json:"purpose"`
	Interval     Interval          `json:"interval"`
	Items        []ReservationItem `json:"items"`
	Status       Status            `json:"status"`
	Version      int64             `json:"version"`
	ApprovedBy   string            `json:"approvedBy,omitempty"`
	DecisionNote string            `json:"decisionNote,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// EffectiveStatus derives overdue for active reservations past their end.
func (r *Reservation) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusActive && !now.Before(r.Interval.End) {
		return StatusOverdue
	}
	return r.Status
}

// Clone returns a deep copy suitable for before/after snapshots.
func (r *Reservation) Clone() *Reservation {
	cp := *r
	cp.Items = append([]ReservationItem(nil), r.Items...)
	return &cp
}

// EquipmentIDs lists the distinct equipment ids on the reservation.
func (r *Reservation) EquipmentIDs() []string {
	seen := make(map[string]bool, len(r.Items))
	ids := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		if !seen[it.EquipmentID] {
			seen[it.EquipmentID] = true
			ids = append(ids, it.EquipmentID)
		}
	}
	return ids
}

// Allocation is the quantity one reservation holds of one equipment item.
type Allocation struct {
	ReservationID string   `json:"reservationId"`
	Quantity      int      `json:"quantity"`
	Interval      Interval `json:"interval"`
	Status        Status   `json:"status"`
}

// PeakCommitted returns the largest quantity held at any single instant by
// allocs. Intervals are half-open, so one ending exactly when another
// starts does not stack.
func PeakCommitted(allocs []Allocation) int {
	type event struct {
		at    time.Time
		delta int
	}
	events := make([]event, 0, 2*len(allocs))
	for _, a := range allocs {
		events = append(events, event{a.Interval.Start, a.Quantity}, event{a.Interval.End, -a.Quantity})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})
	peak, held := 0, 0
	for _, e := range events {
		held += e.delta
		peak = max(peak, held)
	}
	return peak
}

// ReservationFilter narrows reservation listings. Zero values match everything.
type ReservationFilter struct {
	Status      Status
	UserID      string
	EquipmentID string
	Overlapping *Interval
	Limit       int
}

// ReservationRepository defines data access for reservations
type ReservationRepository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, tenantID, id string) (*Reservation, error)
	List(ctx context.Context, tenantID string, filter ReservationFilter) ([]*Reservation, error)
	// FindOverlapping returns committed allocations of equipmentID whose
	// interval overlaps iv, skipping excludeID.
	FindOverlapping(ctx context.Context, tenantID, equipmentID string, iv Interval, excludeID string) ([]Allocation, error)
	// Save persists status, decision and item fields when the stored
	// version equals expectedVersion, then bumps Version.
	Save(ctx context.Context, r *Reservation, expectedVersion int64) error
	// ListPastDue returns active reservations of every tenant whose end is not after now.
	ListPastDue(ctx context.Context, now time.Time) ([]*Reservation, error)
}

package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, time.June, d, 0, 0, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"partial overlap", Interval{day(15), day(17)}, Interval{day(16), day(18)}, true},
		{"back to back", Interval{day(15), day(17)}, Interval{day(17), day(19)}, false},
		{"contained", Interval{day(10), day(20)}, Interval{day(12), day(13)}, true},
		{"disjoint", Interval{day(1), day(2)}, Interval{day(5), day(6)}, false},
		{"identical", Interval{day(1), day(2)}, Interval{day(1), day(2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestPeakCommitted(t *testing.T) {
	assert.Equal(t, 0, PeakCommitted(nil))
	allocs := []Allocation{
		{ReservationID: "r1", Quantity: 1, Interval: Interval{day(1), day(5)}},
		{ReservationID: "r2", Quantity: 2, Interval: Interval{day(3), day(7)}},
		{ReservationID: "r3", Quantity: 1, Interval: Interval{day(7), day(9)}},
		{ReservationID: "r4", Quantity: 1, Interval: Interval{day(4), day(6)}},
	}
	assert.Equal(t, 4, PeakCommitted(allocs))
	assert.Equal(t, 2, PeakCommitted(allocs[1:3]))
}

func TestIntervalValidate(t *testing.T) {
	now := day(15).Add(9 * time.Hour)
	settings := DefaultTenantSettings()

	err := Interval{Start: day(17), End: day(15)}.Validate(now, settings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	err = Interval{Start: day(16), End: day(16)}.Validate(now, settings)
	assert.True(t, errors.Is(err, ErrValidation))

	// within grace window
	err = Interval{Start: now.Add(-10 * time.Minute), End: now.Add(time.Hour)}.Validate(now, settings)
	assert.NoError(t, err)

	err = Interval{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}.Validate(now, settings)
	assert.True(t, errors.Is(err, ErrValidation))

	settings.MaxReservationDuration = 24 * time.Hour
	err = Interval{Start: day(16), End: day(18)}.Validate(now, settings)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestEffectiveStatus(t *testing.T) {
	r := &Reservation{Status: StatusActive, Interval: Interval{day(1), day(3)}}
	assert.Equal(t, StatusActive, r.EffectiveStatus(day(2)))
	assert.Equal(t, StatusOverdue, r.EffectiveStatus(day(3)))

	r.Status = StatusApproved
	assert.Equal(t, StatusApproved, r.EffectiveStatus(day(5)))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(NewCycleError([]string{"a", "b", "a"})))
	assert.Equal(t, CodeNotFound, CodeOf(NewNotFoundError("equipment", "x")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

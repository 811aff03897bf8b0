package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 1, time.Minute)
	cb.now = func() time.Time { return now }

	var transitions []string
	cb.SetStateChangeCallback(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	fail := func(ctx context.Context) error { return errors.New("smtp down") }
	ok := func(ctx context.Context) error { return nil }
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrOpen)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 2, time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
	now = now.Add(2 * time.Second)
	assert.True(t, cb.AllowRequest())
	assert.Equal(t, StateHalfOpen, cb.GetState())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.AllowRequest())
}

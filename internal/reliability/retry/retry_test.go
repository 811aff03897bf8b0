package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), nil, "flaky", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	_, err := Do(context.Background(), cfg, nil, "permanent", func(ctx context.Context) (struct{}, error) {
		calls++
		return struct{}{}, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoWrapsLastError(t *testing.T) {
	transient := errors.New("transient")
	_, err := Do(context.Background(), fastConfig(), nil, "exhaust", func(ctx context.Context) (int, error) {
		return 0, transient
	})
	assert.ErrorIs(t, err, transient)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := fastConfig()
	assert.Equal(t, time.Millisecond, Backoff(0, cfg))
	assert.Equal(t, 2*time.Millisecond, Backoff(1, cfg))
	assert.Equal(t, 5*time.Millisecond, Backoff(10, cfg))
}

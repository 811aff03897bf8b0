package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/infrastructure/redis"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNotificationQueuePopsOnlyDue(t *testing.T) {
	_, client := newTestRedis(t)
	q := NewNotificationQueue(client, nil)
	ctx := context.Background()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Push(ctx, &domain.Notification{ID: "n1", Kind: domain.NotifyApproved, NextAttemptAt: now.Add(-time.Minute)}))
	require.NoError(t, q.Push(ctx, &domain.Notification{ID: "n2", Kind: domain.NotifyRejected, NextAttemptAt: now}))
	require.NoError(t, q.Push(ctx, &domain.Notification{ID: "n3", Kind: domain.NotifyOverdue, NextAttemptAt: now.Add(time.Hour)}))

	due, err := q.PopDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "n1", due[0].ID)
	assert.Equal(t, "n2", due[1].ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	due, err = q.PopDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = q.PopDue(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domain.NotifyOverdue, due[0].Kind)
}

func TestNotificationQueueRespectsBatchSize(t *testing.T) {
	_, client := newTestRedis(t)
	q := NewNotificationQueue(client, nil)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, &domain.Notification{ID: id, NextAttemptAt: now.Add(-time.Second)}))
	}
	due, err := q.PopDue(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestTokenDenylist(t *testing.T) {
	mr, client := newTestRedis(t)
	d := NewTokenDenylist(client)
	ctx := context.Background()

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	// expired tokens need no entry
	require.NoError(t, d.Revoke(ctx, "jti-2", 0))
	revoked, err = d.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/infrastructure/redis"
)

const notificationQueueKey = "gearpool:notifications"

// NotificationQueue keeps pending notifications in a Redis sorted set scored
// by their next attempt time. A member is claimed by whoever removes it.
type NotificationQueue struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewNotificationQueue creates a Redis backed queue
func NewNotificationQueue(redisClient *redis.Client, logger *slog.Logger) *NotificationQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationQueue{redis: redisClient, logger: logger}
}

// Push schedules n for delivery at n.NextAttemptAt
func (q *NotificationQueue) Push(ctx context.Context, n *domain.Notification) error {
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = time.Now()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := q.redis.ZAdd(ctx, notificationQueueKey, score(n.NextAttemptAt), string(data)); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	q.logger.Debug("notification queued",
		slog.String("notification_id", n.ID),
		slog.Int("attempts", n.Attempts),
	)
	return nil
}

// PopDue claims up to max notifications whose attempt time has come
func (q *NotificationQueue) PopDue(ctx context.Context, now time.Time, max int) ([]*domain.Notification, error) {
	members, err := q.redis.ZRangeByScore(ctx, notificationQueueKey, score(now), int64(max))
	if err != nil {
		return nil, fmt.Errorf("failed to read notification queue: %w", err)
	}

	var out []*domain.Notification
	for _, m := range members {
		claimed, err := q.redis.ZRem(ctx, notificationQueueKey, m)
		if err != nil {
			return out, fmt.Errorf("failed to claim notification: %w", err)
		}
		if !claimed {
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(m), &n); err != nil {
			q.logger.Error("dropping malformed notification", slog.String("error", err.Error()))
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}

// Len returns the number of queued notifications
func (q *NotificationQueue) Len(ctx context.Context) (int64, error) {
	return q.redis.ZCard(ctx, notificationQueueKey)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

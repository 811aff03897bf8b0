// Package notify queues and delivers reservation notifications outside the
// transactions that trigger them.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// Queue holds notifications until their next attempt is due.
type Queue interface {
	Push(ctx context.Context, n *domain.Notification) error
	PopDue(ctx context.Context, now time.Time, max int) ([]*domain.Notification, error)
}

// Dispatcher assigns ids and schedules notifications for immediate delivery.
type Dispatcher struct {
	queue  Queue
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(queue Queue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{queue: queue, logger: logger, now: time.Now}
}

// Enqueue schedules n. It never blocks on delivery.
func (d *Dispatcher) Enqueue(ctx context.Context, n *domain.Notification) error {
	if len(n.Recipients) == 0 {
		return fmt.Errorf("notification has no recipients")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Attempts = 0
	n.NextAttemptAt = d.now()
	if err := d.queue.Push(ctx, n); err != nil {
		return err
	}
	d.logger.Debug("notification enqueued",
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("reservation_id", n.ReservationID),
	)
	return nil
}

// MemoryQueue is a process-local Queue used when Redis is not configured.
type MemoryQueue struct {
	mu    sync.Mutex
	items []*domain.Notification
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(ctx context.Context, n *domain.Notification) error {
	cp := *n
	cp.Recipients = append([]string(nil), n.Recipients...)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, &cp)
	return nil
}

func (q *MemoryQueue) PopDue(ctx context.Context, now time.Time, max int) ([]*domain.Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].NextAttemptAt.Before(q.items[j].NextAttemptAt)
	})
	var due []*domain.Notification
	rest := q.items[:0]
	for _, n := range q.items {
		if len(due) < max && !n.NextAttemptAt.After(now) {
			due = append(due, n)
			continue
		}
		rest = append(rest, n)
	}
	q.items = rest
	return due, nil
}

// Len returns the number of queued notifications
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

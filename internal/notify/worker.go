package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/observability/metrics"
	"github.com/endlessblink/Gear-Pool/internal/reliability/circuitbreaker"
	"github.com/endlessblink/Gear-Pool/internal/reliability/retry"
)

const defaultBatch = 50

// Worker drains due notifications and delivers them through a circuit
// breaker. Failed deliveries are rescheduled with exponential backoff and
// dropped after maxAttempts.
type Worker struct {
	queue       Queue
	sender      Sender
	breaker     *circuitbreaker.CircuitBreaker
	backoff     *retry.Config
	maxAttempts int
	interval    time.Duration
	batch       int
	logger      *slog.Logger
	now         func() time.Time
}

// NewWorker creates a delivery worker
func NewWorker(queue Queue, sender Sender, maxAttempts int, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("notification sender breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		metrics.SetBreakerState("notify_sender", int(to))
	})
	return &Worker{
		queue:       queue,
		sender:      sender,
		breaker:     breaker,
		backoff:     &retry.Config{InitialBackoff: 5 * time.Second, MaxBackoff: 10 * time.Minute, BackoffMultiplier: 2.0},
		maxAttempts: maxAttempts,
		interval:    interval,
		batch:       defaultBatch,
		logger:      logger,
		now:         time.Now,
	}
}

// Start polls the queue until ctx is cancelled
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("notification worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("notification worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("notification poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessDue delivers one batch of due notifications and returns how many
// were sent.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	due, err := w.queue.PopDue(ctx, w.now(), w.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range due {
		if w.deliver(ctx, n) {
			sent++
		}
	}
	return sent, nil
}

func (w *Worker) deliver(ctx context.Context, n *domain.Notification) bool {
	logger := w.logger.With(
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
	)

	err := w.breaker.Execute(ctx, func(ctx context.Context) error {
		return w.sender.Send(ctx, n)
	})
	if err == nil {
		metrics.ObserveNotification("sent")
		return true
	}

	// An open breaker is not the notification's fault; retry without
	// spending an attempt.
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		n.Attempts++
	}
	if n.Attempts >= w.maxAttempts {
		metrics.ObserveNotification("dropped")
		logger.Error("notification dropped after retries",
			slog.Int("attempts", n.Attempts),
			slog.String("error", err.Error()),
		)
		return false
	}

	delay := retry.Backoff(n.Attempts, w.backoff)
	n.NextAttemptAt = w.now().Add(delay)
	if perr := w.queue.Push(ctx, n); perr != nil {
		metrics.ObserveNotification("dropped")
		logger.Error("failed to reschedule notification", slog.String("error", perr.Error()))
		return false
	}
	metrics.ObserveNotification("retry")
	logger.Warn("notification delivery failed, rescheduled",
		slog.Int("attempts", n.Attempts),
		slog.Duration("backoff", delay),
		slog.String("error", err.Error()),
	)
	return false
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/featureflags"
	"github.com/endlessblink/Gear-Pool/internal/observability/metrics"
)

// OverdueMarker records the overdue transition for one reservation.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, scope domain.TenantScope, reservationID string) (bool, error)
}

// OverdueWorker periodically finds active reservations past their end date
// and has each one marked and announced exactly once.
type OverdueWorker struct {
	reservations domain.ReservationRepository
	tenants      domain.TenantRepository
	marker       OverdueMarker
	logger       *slog.Logger
	interval     time.Duration
	now          func() time.Time
	enabled      func() bool
}

// NewOverdueWorker creates a new overdue worker
func NewOverdueWorker(
	store domain.Store,
	marker OverdueMarker,
	logger *slog.Logger,
	interval time.Duration,
) *OverdueWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueWorker{
		reservations: store.Reservations(),
		tenants:      store.Tenants(),
		marker:       marker,
		logger:       logger,
		interval:     interval,
		now:          time.Now,
		enabled: func() bool {
			return featureflags.EnabledOr(featureflags.OverdueScan, true)
		},
	}
}

// Start begins the scan loop
func (w *OverdueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("overdue worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("overdue worker stopped")
			return
		case <-ticker.C:
			if !w.enabled() {
				w.logger.Debug("overdue scan disabled by flag")
				continue
			}
			w.Scan(ctx)
		}
	}
}

// Scan runs one pass and returns how many reservations were newly marked.
func (w *OverdueWorker) Scan(ctx context.Context) int {
	pastDue, err := w.reservations.ListPastDue(ctx, w.now())
	if err != nil {
		w.logger.Error("failed to list past due reservations",
			slog.String("error", err.Error()),
		)
		return 0
	}
	metrics.SetOverdueReservations(len(pastDue))

	settings := map[string]domain.TenantSettings{}
	marked := 0
	for _, r := range pastDue {
		s, ok := settings[r.TenantID]
		if !ok {
			tenant, err := w.tenants.GetByID(ctx, r.TenantID)
			if err != nil {
				w.logger.Error("failed to load tenant for overdue scan",
					slog.String("tenant_id", r.TenantID),
					slog.String("error", err.Error()),
				)
				continue
			}
			s = tenant.Settings
			settings[r.TenantID] = s
		}

		ok, err := w.marker.MarkOverdue(ctx, domain.SystemScope(r.TenantID, s), r.ID)
		if err != nil {
			w.logger.Error("failed to mark reservation overdue",
				slog.String("reservation_id", r.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			marked++
		}
	}
	if marked > 0 {
		w.logger.Info("overdue scan complete",
			slog.Int("past_due", len(pastDue)),
			slog.Int("newly_marked", marked),
		)
	}
	return marked
}

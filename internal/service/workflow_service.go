package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/observability/metrics"
	"github.com/endlessblink/Gear-Pool/internal/observability/tracing"
)

// Notifier queues best-effort messages after a transition commits.
type Notifier interface {
	Enqueue(ctx context.Context, n *domain.Notification) error
}

// WorkflowService drives reservations through the approval and handover
// state machine.
type WorkflowService struct {
	store    domain.Store
	audits   *AuditService
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorkflowService creates a new workflow service. notifier may be nil.
func NewWorkflowService(store domain.Store, audits *AuditService, notifier Notifier, logger *slog.Logger) *WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowService{
		store:    store,
		audits:   audits,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// TransitionRequest identifies the reservation and the version the caller
// last saw. ExpectedVersion 0 skips the version check. Conditions maps
// equipment id to the condition observed at checkout or checkin.
type TransitionRequest struct {
	ReservationID   string                      `json:"-"`
	ExpectedVersion int64                       `json:"expectedVersion"`
	Note            string                      `json:"note"`
	Conditions      map[string]domain.Condition `json:"conditions"`
}

// Approve moves a pending reservation to approved after re-checking capacity.
func (s *WorkflowService) Approve(ctx context.Context, scope domain.TenantScope, req TransitionRequest) (*domain.Reservation, error) {
	return s.transition(ctx, scope, req, domain.StatusApproved, domain.ActionApprove)
}

// Reject declines a pending reservation.
func (s *WorkflowService) Reject(ctx context.Context, scope domain.TenantScope, req TransitionRequest) (*domain.Reservation, error) {
	return s.transition(ctx, scope, req, domain.StatusRejected, domain.ActionReject)
}

// Cancel withdraws a pending or approved reservation, releasing its quantity.
func (s *WorkflowService) Cancel(ctx context.Context, scope domain.TenantScope, req TransitionRequest) (*domain.Reservation, error) {
	return s.transition(ctx, scope, req, domain.StatusCancelled, domain.ActionCancel)
}

// Checkout hands approved equipment over and records its condition.
func (s *WorkflowService) Checkout(ctx context.Context, scope domain.TenantScope, req TransitionRequest) (*domain.Reservation, error) {
	return s.transition(ctx, scope, req, domain.StatusActive, domain.ActionCheckout)
}

// Checkin takes equipment back, records its condition and the damage delta.
func (s *WorkflowService) Checkin(ctx context.Context, scope domain.TenantScope, req TransitionRequest) (*domain.Reservation, error) {
	return s.transition(ctx, scope, req, domain.StatusCompleted, domain.ActionCheckin)
}

func (s *WorkflowService) transition(ctx context.Context, scope domain.TenantScope, req TransitionRequest, to domain.Status, action domain.AuditAction) (*domain.Reservation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "WorkflowService."+string(action),
		trace.WithAttributes(
			attribute.String("tenant.id", scope.TenantID),
			attribute.String("reservation.id", req.ReservationID),
		))
	defer span.End()

	from, updated, entry, err := s.apply(ctx, scope, req, to, action)
	if err != nil {
		code := domain.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		metrics.ObserveTransition(string(from), string(to), string(code))
		s.audits.RecordFailure(ctx, scope, action, domain.ResourceReservation, req.ReservationID, err)
		return nil, err
	}

	metrics.ObserveTransition(string(from), string(to), "success")
	s.audits.Commit(ctx, entry)
	s.logger.Info("reservation transitioned",
		slog.String("tenant_id", scope.TenantID),
		slog.String("reservation_id", updated.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("user_id", scope.ActorID),
		slog.Int64("version", updated.Version),
	)

	switch to {
	case domain.StatusApproved:
		s.notify(ctx, updated, domain.NotifyApproved, nil)
	case domain.StatusRejected:
		s.notify(ctx, updated, domain.NotifyRejected, nil)
	}
	return present(updated, s.now()), nil
}

// apply performs one transition under the locks of the reservation's
// equipment, which also serialises transitions of the same reservation.
func (s *WorkflowService) apply(ctx context.Context, scope domain.TenantScope, req TransitionRequest, to domain.Status, action domain.AuditAction) (domain.Status, *domain.Reservation, *domain.AuditLogEntry, error) {
	if req.ReservationID == "" {
		return "", nil, nil, domain.NewValidationError("reservation id is required", nil)
	}
	current, err := s.store.Reservations().GetByID(ctx, scope.TenantID, req.ReservationID)
	if err != nil {
		return "", nil, nil, err
	}

	from := current.Status
	var (
		updated *domain.Reservation
		entry   *domain.AuditLogEntry
	)
	err = s.store.Atomic(ctx, current.EquipmentIDs(), func(ctx context.Context, repos domain.Repositories) error {
		r, err := repos.Reservations().GetByID(ctx, scope.TenantID, req.ReservationID)
		if err != nil {
			return err
		}
		from = r.Status
		if req.ExpectedVersion != 0 && r.Version != req.ExpectedVersion {
			return domain.NewStaleError(r.ID, req.ExpectedVersion, r.Version)
		}
		if err := domain.CheckTransition(r.Status, to, scope, r.UserID); err != nil {
			if errors.Is(err, domain.ErrInvalidStateTransition) {
				return domain.NewTransitionError(r.EffectiveStatus(s.now()), to)
			}
			return err
		}

		before := r.Clone()
		expected := r.Version
		r.Status = to
		switch to {
		case domain.StatusApproved:
			if err := s.recheckCapacity(ctx, repos, r); err != nil {
				return err
			}
			r.ApprovedBy = scope.ActorID
			r.DecisionNote = req.Note
		case domain.StatusRejected:
			r.ApprovedBy = scope.ActorID
			r.DecisionNote = req.Note
		case domain.StatusCancelled:
			if req.Note != "" {
				r.DecisionNote = req.Note
			}
		case domain.StatusActive:
			if err := s.checkout(ctx, repos, r, req.Conditions); err != nil {
				return err
			}
		case domain.StatusCompleted:
			if err := s.checkin(ctx, repos, r, req.Conditions); err != nil {
				return err
			}
		}

		if err := repos.Reservations().Save(ctx, r, expected); err != nil {
			return err
		}
		updated = r
		entry = s.audits.NewEntry(scope, action, domain.ResourceReservation, r.ID, before, r)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return from, nil, nil, err
	}
	return from, updated, entry, nil
}

// recheckCapacity makes sure approving r would not over-commit any item,
// since other reservations may have been approved since r was requested.
func (s *WorkflowService) recheckCapacity(ctx context.Context, repos domain.Repositories, r *domain.Reservation) error {
	var shortages []domain.Shortage
	for _, it := range r.Items {
		item, err := repos.Equipment().GetByID(ctx, r.TenantID, it.EquipmentID)
		if err != nil {
			return err
		}
		allocs, err := repos.Reservations().FindOverlapping(ctx, r.TenantID, it.EquipmentID, r.Interval, r.ID)
		if err != nil {
			return err
		}
		line := domain.Line{EquipmentID: it.EquipmentID, Quantity: it.Quantity, DerivedFrom: it.DerivedFrom}
		if sh, short := shortage(item, line, allocs); short {
			shortages = append(shortages, sh)
		}
	}
	if len(shortages) > 0 {
		return domain.NewUnavailableError(shortages)
	}
	return nil
}

func checkConditionKeys(r *domain.Reservation, conditions map[string]domain.Condition) error {
	onReservation := make(map[string]bool, len(r.Items))
	for _, it := range r.Items {
		onReservation[it.EquipmentID] = true
	}
	for id, c := range conditions {
		if !onReservation[id] {
			return domain.NewValidationError("equipment is not part of the reservation", map[string]any{"equipmentId": id})
		}
		if !c.Valid() {
			return domain.NewValidationError("unknown condition", map[string]any{"equipmentId": id, "condition": c})
		}
	}
	return nil
}

// checkout snapshots each item's condition, defaulting to the catalog's.
func (s *WorkflowService) checkout(ctx context.Context, repos domain.Repositories, r *domain.Reservation, conditions map[string]domain.Condition) error {
	if err := checkConditionKeys(r, conditions); err != nil {
		return err
	}
	for i := range r.Items {
		it := &r.Items[i]
		c, ok := conditions[it.EquipmentID]
		if !ok {
			item, err := repos.Equipment().GetByID(ctx, r.TenantID, it.EquipmentID)
			if err != nil {
				return err
			}
			c = item.Condition
		}
		it.CheckoutCondition = c
	}
	return nil
}

// checkin snapshots the returned condition, computes the damage delta and
// downgrades the catalog condition when equipment comes back worse.
func (s *WorkflowService) checkin(ctx context.Context, repos domain.Repositories, r *domain.Reservation, conditions map[string]domain.Condition) error {
	if err := checkConditionKeys(r, conditions); err != nil {
		return err
	}
	for i := range r.Items {
		it := &r.Items[i]
		c, ok := conditions[it.EquipmentID]
		if !ok {
			c = it.CheckoutCondition
		}
		it.CheckinCondition = c
		it.DamageDelta = domain.DamageDelta(it.CheckoutCondition, c)
		if it.DamageDelta == 0 {
			continue
		}
		item, err := repos.Equipment().GetByID(ctx, r.TenantID, it.EquipmentID)
		if err != nil {
			return err
		}
		if c.Ordinal() > item.Condition.Ordinal() {
			item.Condition = c
			if err := repos.Equipment().Update(ctx, item); err != nil {
				return fmt.Errorf("downgrade equipment condition: %w", err)
			}
		}
	}
	return nil
}

// MarkOverdue records the computed active -> overdue transition once per
// reservation and notifies the owner and faculty. It reports whether an
// entry was written.
func (s *WorkflowService) MarkOverdue(ctx context.Context, scope domain.TenantScope, reservationID string) (bool, error) {
	current, err := s.store.Reservations().GetByID(ctx, scope.TenantID, reservationID)
	if err != nil {
		return false, err
	}

	now := s.now()
	var (
		entry  *domain.AuditLogEntry
		marked *domain.Reservation
	)
	err = s.store.Atomic(ctx, current.EquipmentIDs(), func(ctx context.Context, repos domain.Repositories) error {
		r, err := repos.Reservations().GetByID(ctx, scope.TenantID, reservationID)
		if err != nil {
			return err
		}
		if r.EffectiveStatus(now) != domain.StatusOverdue {
			return nil
		}
		if err := domain.CheckTransition(r.Status, domain.StatusOverdue, scope, r.UserID); err != nil {
			return err
		}
		seen, err := repos.Audit().List(ctx, scope.TenantID, domain.AuditFilter{
			ResourceID: r.ID,
			Action:     domain.ActionOverdue,
			Limit:      1,
		})
		if err != nil {
			return err
		}
		if len(seen) > 0 {
			return nil
		}
		after := r.Clone()
		after.Status = domain.StatusOverdue
		entry = s.audits.NewEntry(scope, domain.ActionOverdue, domain.ResourceReservation, r.ID, r, after)
		marked = after
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		metrics.ObserveTransition(string(domain.StatusActive), string(domain.StatusOverdue), string(domain.CodeOf(err)))
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	metrics.ObserveTransition(string(domain.StatusActive), string(domain.StatusOverdue), "success")
	s.audits.Commit(ctx, entry)
	s.logger.Warn("reservation overdue",
		slog.String("tenant_id", scope.TenantID),
		slog.String("reservation_id", marked.ID),
		slog.Time("end_date", marked.Interval.End),
	)

	faculty, err := s.store.Users().ListByRole(ctx, scope.TenantID, domain.RoleFaculty)
	if err != nil {
		s.logger.Warn("failed to list faculty for overdue notice", slog.String("error", err.Error()))
	}
	s.notify(ctx, marked, domain.NotifyOverdue, faculty)
	return true, nil
}

// notify enqueues a message for the owner and extra recipients. Failures
// are logged and never undo the committed transition.
func (s *WorkflowService) notify(ctx context.Context, r *domain.Reservation, kind domain.NotificationKind, extra []*domain.User) {
	if s.notifier == nil {
		return
	}
	seen := map[string]bool{}
	var recipients []string
	add := func(u *domain.User) {
		if u == nil || !u.IsActive || seen[u.Email] {
			return
		}
		seen[u.Email] = true
		recipients = append(recipients, u.Email)
	}
	owner, err := s.store.Users().GetByID(ctx, r.TenantID, r.UserID)
	if err != nil {
		s.logger.Warn("notification owner lookup failed",
			slog.String("reservation_id", r.ID),
			slog.String("error", err.Error()),
		)
	} else {
		add(owner)
	}
	for _, u := range extra {
		add(u)
	}
	if len(recipients) == 0 {
		return
	}

	n := &domain.Notification{
		TenantID:      r.TenantID,
		ReservationID: r.ID,
		Recipients:    recipients,
		Kind:          kind,
		Message:       notificationMessage(kind, r),
	}
	if err := s.notifier.Enqueue(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Error("failed to enqueue notification",
			slog.String("reservation_id", r.ID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

func notificationMessage(kind domain.NotificationKind, r *domain.Reservation) string {
	window := r.Interval.Start.UTC().Format(time.RFC3339) + " - " + r.Interval.End.UTC().Format(time.RFC3339)
	switch kind {
	case domain.NotifyApproved:
		return fmt.Sprintf("Your reservation %s for %s was approved.", r.ID, window)
	case domain.NotifyRejected:
		msg := fmt.Sprintf("Your reservation %s for %s was rejected.", r.ID, window)
		if r.DecisionNote != "" {
			msg += " Note: " + r.DecisionNote
		}
		return msg
	case domain.NotifyOverdue:
		return fmt.Sprintf("Reservation %s was due back at %s and has not been checked in.",
			r.ID, r.Interval.End.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("Reservation %s changed.", r.ID)
}

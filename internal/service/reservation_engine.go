package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/observability/metrics"
	"github.com/endlessblink/Gear-Pool/internal/observability/tracing"
	"github.com/endlessblink/Gear-Pool/internal/security"
)

// ReservationEngine validates reservation requests, expands equipment
// dependencies and books them without over-allocating any item.
type ReservationEngine struct {
	store  domain.Store
	authz  *security.AuthorizationService
	audits *AuditService
	logger *slog.Logger
	now    func() time.Time
}

// NewReservationEngine creates a new reservation engine
func NewReservationEngine(store domain.Store, authz *security.AuthorizationService, audits *AuditService, logger *slog.Logger) *ReservationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReservationEngine{
		store:  store,
		authz:  authz,
		audits: audits,
		logger: logger,
		now:    time.Now,
	}
}

// ItemRequest is one requested equipment line.
type ItemRequest struct {
	EquipmentID string `json:"equipmentId"`
	Quantity    int    `json:"quantity"`
}

// CreateReservationRequest captures a reservation request
type CreateReservationRequest struct {
	domain.Interval
	Items   []ItemRequest `json:"items"`
	Purpose string        `json:"purpose"`
}

// Availability reports whether a quantity of one item, together with the
// dependencies a reservation would pull in, is free over an interval. The
// top-level counts describe the requested item itself.
type Availability struct {
	EquipmentID   string              `json:"equipmentId"`
	Interval      domain.Interval     `json:"interval"`
	TotalQuantity int                 `json:"totalQuantity"`
	Committed     int                 `json:"committed"`
	Available     int                 `json:"available"`
	Requested     int                 `json:"requested"`
	IsAvailable   bool                `json:"isAvailable"`
	Conflicts     []domain.Allocation `json:"conflicts"`
	Lines         []LineAvailability  `json:"lines"`
	Shortages     []domain.Shortage   `json:"shortages"`
}

// LineAvailability is the booking rule applied to one expanded line.
type LineAvailability struct {
	EquipmentID   string              `json:"equipmentId"`
	RequiredBy    string              `json:"requiredBy,omitempty"`
	TotalQuantity int                 `json:"totalQuantity"`
	Committed     int                 `json:"committed"`
	Available     int                 `json:"available"`
	Requested     int                 `json:"requested"`
	IsActive      bool                `json:"isActive"`
	Fits          bool                `json:"fits"`
	Conflicts     []domain.Allocation `json:"conflicts"`
}

// CreateReservation books the requested items and their dependencies in
// one transaction. The reservation starts pending, or approved when the
// tenant skips approval.
func (e *ReservationEngine) CreateReservation(ctx context.Context, scope domain.TenantScope, req CreateReservationRequest) (*domain.Reservation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ReservationEngine.CreateReservation",
		trace.WithAttributes(
			attribute.String("tenant.id", scope.TenantID),
			attribute.Int("items", len(req.Items)),
		))
	defer span.End()

	start := time.Now()
	res, entry, err := e.createReservation(ctx, scope, req)
	if err != nil {
		code := domain.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		metrics.ObserveReservation(string(code), time.Since(start))
		e.audits.RecordFailure(ctx, scope, domain.ActionCreate, domain.ResourceReservation, "", err)
		if code == domain.CodeInternal {
			e.logger.Error("reservation create failed",
				slog.String("tenant_id", scope.TenantID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	metrics.ObserveReservation("success", time.Since(start))
	e.audits.Commit(ctx, entry)
	span.SetAttributes(attribute.String("reservation.id", res.ID))
	e.logger.Info("reservation created",
		slog.String("tenant_id", scope.TenantID),
		slog.String("reservation_id", res.ID),
		slog.String("user_id", res.UserID),
		slog.String("status", string(res.Status)),
		slog.Int("lines", len(res.Items)),
	)
	return res, nil
}

func (e *ReservationEngine) createReservation(ctx context.Context, scope domain.TenantScope, req CreateReservationRequest) (*domain.Reservation, *domain.AuditLogEntry, error) {
	if err := e.authz.ValidatePermission(scope, security.PermCreateReservation); err != nil {
		return nil, nil, err
	}
	if err := req.Interval.Validate(e.now(), scope.Settings); err != nil {
		return nil, nil, err
	}
	lines, err := requestLines(req.Items)
	if err != nil {
		return nil, nil, err
	}

	// Expansion reads the catalog outside the lock; quantities and activity
	// are re-checked under it.
	lookup := func(id string) (*domain.EquipmentItem, error) {
		item, err := e.store.Equipment().GetByID(ctx, scope.TenantID, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("unknown equipment", map[string]any{"equipmentId": id})
		}
		return item, err
	}
	lines, err = domain.ExpandDependencies(lines, lookup, scope.Settings.IncludeOptionalDependencies)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.EquipmentID
	}

	status := domain.StatusPending
	if scope.Settings.SkipApproval {
		status = domain.StatusApproved
	}
	res := &domain.Reservation{
		ID:       uuid.NewString(),
		TenantID: scope.TenantID,
		UserID:   scope.ActorID,
		Purpose:  strings.TrimSpace(req.Purpose),
		Interval: req.Interval,
		Status:   status,
	}
	if status == domain.StatusApproved {
		res.ApprovedBy = domain.SystemActorID
	}
	for _, l := range lines {
		res.Items = append(res.Items, domain.ReservationItem{
			ReservationID: res.ID,
			EquipmentID:   l.EquipmentID,
			Quantity:      l.Quantity,
			DerivedFrom:   l.DerivedFrom,
		})
	}

	var entry *domain.AuditLogEntry
	err = e.store.Atomic(ctx, ids, func(ctx context.Context, repos domain.Repositories) error {
		results, err := evaluateLines(ctx, repos, scope.TenantID, lines, req.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewValidationError("unknown equipment", map[string]any{"equipmentId": notFoundID(err)})
			}
			return err
		}
		var shortages []domain.Shortage
		for _, la := range results {
			if !la.IsActive {
				return domain.NewValidationError("equipment is not active", map[string]any{"equipmentId": la.EquipmentID})
			}
			if la.Requested > la.TotalQuantity {
				return domain.NewValidationError("requested quantity exceeds total quantity", map[string]any{
					"equipmentId":   la.EquipmentID,
					"requested":     la.Requested,
					"totalQuantity": la.TotalQuantity,
					"requiredBy":    la.RequiredBy,
				})
			}
			if !la.Fits {
				shortages = append(shortages, la.shortage())
			}
		}
		if len(shortages) > 0 {
			return domain.NewUnavailableError(shortages)
		}

		if err := repos.Reservations().Create(ctx, res); err != nil {
			return err
		}
		entry = e.audits.NewEntry(scope, domain.ActionCreate, domain.ResourceReservation, res.ID, nil, res)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return nil, nil, err
	}
	return res, entry, nil
}

// requestLines validates raw items and merges repeated equipment ids.
func requestLines(items []ItemRequest) ([]domain.Line, error) {
	if len(items) == 0 {
		return nil, domain.NewValidationError("at least one item is required", nil)
	}
	index := make(map[string]int, len(items))
	var lines []domain.Line
	for _, it := range items {
		if it.EquipmentID == "" {
			return nil, domain.NewValidationError("equipment id is required", nil)
		}
		if it.Quantity < 1 {
			return nil, domain.NewValidationError("quantity must be at least 1",
				map[string]any{"equipmentId": it.EquipmentID, "quantity": it.Quantity})
		}
		if i, ok := index[it.EquipmentID]; ok {
			lines[i].Quantity += it.Quantity
			continue
		}
		index[it.EquipmentID] = len(lines)
		lines = append(lines, domain.Line{EquipmentID: it.EquipmentID, Quantity: it.Quantity})
	}
	return lines, nil
}

// evaluateLines applies the booking rule to every line over iv. It is the
// single path behind both booking and availability checks.
func evaluateLines(ctx context.Context, repos domain.Repositories, tenantID string, lines []domain.Line, iv domain.Interval) ([]LineAvailability, error) {
	out := make([]LineAvailability, 0, len(lines))
	for _, l := range lines {
		item, err := repos.Equipment().GetByID(ctx, tenantID, l.EquipmentID)
		if err != nil {
			return nil, err
		}
		allocs, err := repos.Reservations().FindOverlapping(ctx, tenantID, item.ID, iv, "")
		if err != nil {
			return nil, err
		}
		committed := 0
		for _, a := range allocs {
			committed += a.Quantity
		}
		if allocs == nil {
			allocs = []domain.Allocation{}
		}
		out = append(out, LineAvailability{
			EquipmentID:   item.ID,
			RequiredBy:    l.DerivedFrom,
			TotalQuantity: item.TotalQuantity,
			Committed:     committed,
			Available:     max(item.TotalQuantity-committed, 0),
			Requested:     l.Quantity,
			IsActive:      item.IsActive,
			Fits:          committed+l.Quantity <= item.TotalQuantity,
			Conflicts:     allocs,
		})
	}
	return out, nil
}

func (la LineAvailability) shortage() domain.Shortage {
	conflicts := make([]string, 0, len(la.Conflicts))
	for _, a := range la.Conflicts {
		conflicts = append(conflicts, a.ReservationID)
	}
	return domain.Shortage{
		EquipmentID:    la.EquipmentID,
		Requested:      la.Requested,
		Committed:      la.Committed,
		TotalQuantity:  la.TotalQuantity,
		ConflictingIDs: conflicts,
		RequiredBy:     la.RequiredBy,
	}
}

// notFoundID pulls the missing id out of a not-found error, if it carries one.
func notFoundID(err error) any {
	var de *domain.Error
	if errors.As(err, &de) && de.Details != nil {
		return de.Details["id"]
	}
	return nil
}

// CheckAvailability applies the booking rule to one item and the
// dependencies a reservation for it would include, without reserving anything.
func (e *ReservationEngine) CheckAvailability(ctx context.Context, scope domain.TenantScope, equipmentID string, iv domain.Interval, quantity int) (*Availability, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ReservationEngine.CheckAvailability",
		trace.WithAttributes(attribute.String("equipment.id", equipmentID)))
	defer span.End()

	if iv.Start.IsZero() || iv.End.IsZero() || !iv.End.After(iv.Start) {
		return nil, domain.NewValidationError("end date must be after start date",
			map[string]any{"startDate": iv.Start, "endDate": iv.End})
	}
	if quantity == 0 {
		quantity = 1
	}
	lines, err := requestLines([]ItemRequest{{EquipmentID: equipmentID, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	lookup := func(id string) (*domain.EquipmentItem, error) {
		return e.store.Equipment().GetByID(ctx, scope.TenantID, id)
	}
	lines, err = domain.ExpandDependencies(lines, lookup, scope.Settings.IncludeOptionalDependencies)
	if err != nil {
		return nil, err
	}
	results, err := evaluateLines(ctx, e.store, scope.TenantID, lines, iv)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	root := results[0]
	out := &Availability{
		EquipmentID:   root.EquipmentID,
		Interval:      iv,
		TotalQuantity: root.TotalQuantity,
		Committed:     root.Committed,
		Available:     root.Available,
		Requested:     root.Requested,
		IsAvailable:   true,
		Conflicts:     root.Conflicts,
		Lines:         results,
		Shortages:     []domain.Shortage{},
	}
	for _, la := range results {
		if !la.IsActive || !la.Fits {
			out.IsAvailable = false
		}
		if !la.Fits {
			out.Shortages = append(out.Shortages, la.shortage())
		}
	}
	metrics.ObserveAvailabilityCheck(out.IsAvailable)
	return out, nil
}

// GetReservation returns a reservation visible to the caller.
func (e *ReservationEngine) GetReservation(ctx context.Context, scope domain.TenantScope, id string) (*domain.Reservation, error) {
	res, err := e.store.Reservations().GetByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := e.authz.ValidateOwnerOr(scope, res.UserID, security.PermViewAllReservations); err != nil {
		return nil, err
	}
	return present(res, e.now()), nil
}

// ListReservations lists reservations matching filter. Callers without the
// view-all permission only see their own.
func (e *ReservationEngine) ListReservations(ctx context.Context, scope domain.TenantScope, filter domain.ReservationFilter) ([]*domain.Reservation, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("unknown status", map[string]any{"status": filter.Status})
	}
	if !scope.System && !e.authz.HasPermission(scope.Role, security.PermViewAllReservations) {
		filter.UserID = scope.ActorID
	}

	want := filter.Status
	if want == domain.StatusOverdue {
		filter.Status = domain.StatusActive
	}
	list, err := e.store.Reservations().List(ctx, scope.TenantID, filter)
	if err != nil {
		return nil, err
	}

	now := e.now()
	out := make([]*domain.Reservation, 0, len(list))
	for _, r := range list {
		p := present(r, now)
		if want != "" && p.Status != want {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// present reports the derived overdue status to callers.
func present(r *domain.Reservation, now time.Time) *domain.Reservation {
	r.Status = r.EffectiveStatus(now)
	return r
}

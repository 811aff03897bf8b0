package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// ReservationHandler serves reservation requests and their workflow transitions.
type ReservationHandler struct {
	scopes   ScopeResolver
	engine   *service.ReservationEngine
	workflow *service.WorkflowService
	logger   *slog.Logger
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(scopes ScopeResolver, engine *service.ReservationEngine, workflow *service.WorkflowService, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{scopes: scopes, engine: engine, workflow: workflow, logger: logger}
}

// Create handles POST /tenants/{tenantId}/reservations
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	var req service.CreateReservationRequest
	if !h.scopes.decode(w, r, scope, &req) {
		return
	}
	res, err := h.engine.CreateReservation(r.Context(), scope, req)
	if err != nil {
		h.logger.Info("reservation rejected",
			slog.String("tenant_id", scope.TenantID),
			slog.String("code", string(domain.CodeOf(err))),
		)
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, res)
}

// List handles GET /tenants/{tenantId}/reservations
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := domain.ReservationFilter{
		Status:      domain.Status(q.Get("status")),
		UserID:      q.Get("userId"),
		EquipmentID: q.Get("equipmentId"),
		Limit:       limit,
	}
	if q.Has("startDate") || q.Has("endDate") {
		start, err := parseDate(r, "startDate")
		if err != nil {
			response.Error(w, r, err)
			return
		}
		end, err := parseDate(r, "endDate")
		if err != nil {
			response.Error(w, r, err)
			return
		}
		filter.Overlapping = &domain.Interval{Start: start, End: end}
	}
	list, err := h.engine.ListReservations(r.Context(), scope, filter)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"reservations": list, "count": len(list)})
}

// Get handles GET /tenants/{tenantId}/reservations/{id}
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	res, err := h.engine.GetReservation(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

type workflowMethod func(context.Context, domain.TenantScope, service.TransitionRequest) (*domain.Reservation, error)

// Approve handles POST .../reservations/{id}/approve
func (h *ReservationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.Approve)
}

// Reject handles POST .../reservations/{id}/reject
func (h *ReservationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.Reject)
}

// Cancel handles POST .../reservations/{id}/cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.Cancel)
}

// Checkout handles POST .../reservations/{id}/checkout
func (h *ReservationHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.Checkout)
}

// Checkin handles POST .../reservations/{id}/checkin
func (h *ReservationHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.Checkin)
}

func (h *ReservationHandler) transition(w http.ResponseWriter, r *http.Request, do workflowMethod) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	var req service.TransitionRequest
	// an empty body is a transition without note or version check
	if r.ContentLength != 0 {
		if !h.scopes.decode(w, r, scope, &req) {
			return
		}
	}
	req.ReservationID = r.PathValue("id")

	res, err := do(r.Context(), scope, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

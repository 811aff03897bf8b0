package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// EquipmentHandler serves the catalog and availability queries.
type EquipmentHandler struct {
	scopes  ScopeResolver
	catalog *service.CatalogService
	engine  *service.ReservationEngine
	logger  *slog.Logger
}

// NewEquipmentHandler creates a new equipment handler
func NewEquipmentHandler(scopes ScopeResolver, catalog *service.CatalogService, engine *service.ReservationEngine, logger *slog.Logger) *EquipmentHandler {
	return &EquipmentHandler{scopes: scopes, catalog: catalog, engine: engine, logger: logger}
}

// DependenciesRequest replaces an item's dependency list.
type DependenciesRequest struct {
	Dependencies []domain.Dependency `json:"dependencies"`
}

// Create handles POST /tenants/{tenantId}/equipment
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	var in service.EquipmentInput
	if !h.scopes.decode(w, r, scope, &in) {
		return
	}
	item, err := h.catalog.CreateEquipment(r.Context(), scope, in)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, item)
}

// List handles GET /tenants/{tenantId}/equipment
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := h.catalog.ListEquipment(r.Context(), scope, domain.EquipmentFilter{
		Category:   q.Get("category"),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"equipment": items, "count": len(items)})
}

// Get handles GET /tenants/{tenantId}/equipment/{id}
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	item, err := h.catalog.GetEquipment(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, item)
}

// Update handles PUT /tenants/{tenantId}/equipment/{id}
func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	var in service.EquipmentInput
	if !h.scopes.decode(w, r, scope, &in) {
		return
	}
	item, err := h.catalog.UpdateEquipment(r.Context(), scope, r.PathValue("id"), in)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, item)
}

// SetDependencies handles PUT /tenants/{tenantId}/equipment/{id}/dependencies
func (h *EquipmentHandler) SetDependencies(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	var req DependenciesRequest
	if !h.scopes.decode(w, r, scope, &req) {
		return
	}
	item, err := h.catalog.SetDependencies(r.Context(), scope, r.PathValue("id"), req.Dependencies)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, item)
}

// Availability handles GET /tenants/{tenantId}/equipment/{id}/availability
func (h *EquipmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
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
	quantity, err := queryInt(r, "quantity")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	avail, err := h.engine.CheckAvailability(r.Context(), scope, r.PathValue("id"),
		domain.Interval{Start: start, End: end}, quantity)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, avail)
}

// parseDate accepts RFC 3339 timestamps or plain dates (midnight UTC).
func parseDate(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, domain.NewValidationError(name+" is required", nil)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, domain.NewValidationError(name+" must be an RFC 3339 timestamp or a date",
		map[string]any{name: v})
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// UserHandler serves tenant account administration.
type UserHandler struct {
	scopes      ScopeResolver
	authService *service.AuthService
	audits      *service.AuditService
	logger      *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(scopes ScopeResolver, authService *service.AuthService, audits *service.AuditService, logger *slog.Logger) *UserHandler {
	return &UserHandler{scopes: scopes, authService: authService, audits: audits, logger: logger}
}

// Create handles POST /tenants/{tenantId}/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	var req service.CreateUserRequest
	if !h.scopes.decode(w, r, scope, &req) {
		return
	}
	user, err := h.authService.CreateUser(r.Context(), scope, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, user)
}

// Anonymize handles POST /tenants/{tenantId}/users/{id}/anonymize
func (h *UserHandler) Anonymize(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	n, err := h.audits.AnonymizeActor(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"anonymizedEntries": n})
}

package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// TenantHandler serves per-department policy.
type TenantHandler struct {
	scopes  ScopeResolver
	tenants *service.TenantContext
	logger  *slog.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(scopes ScopeResolver, tenants *service.TenantContext, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{scopes: scopes, tenants: tenants, logger: logger}
}

// SettingsRequest is a partial settings update. Durations use Go syntax ("15m", "72h").
type SettingsRequest struct {
	SkipApproval                *bool   `json:"skipApproval,omitempty"`
	GraceWindow                 *string `json:"graceWindow,omitempty"`
	IncludeOptionalDependencies *bool   `json:"includeOptionalDependencies,omitempty"`
	MaxReservationDuration      *string `json:"maxReservationDuration,omitempty"`
}

// SettingsResponse renders settings with readable durations.
type SettingsResponse struct {
	TenantID                    string `json:"tenantId"`
	SkipApproval                bool   `json:"skipApproval"`
	GraceWindow                 string `json:"graceWindow"`
	IncludeOptionalDependencies bool   `json:"includeOptionalDependencies"`
	MaxReservationDuration      string `json:"maxReservationDuration"`
}

func (req SettingsRequest) apply(s domain.TenantSettings) (domain.TenantSettings, error) {
	if req.SkipApproval != nil {
		s.SkipApproval = *req.SkipApproval
	}
	if req.IncludeOptionalDependencies != nil {
		s.IncludeOptionalDependencies = *req.IncludeOptionalDependencies
	}
	if req.GraceWindow != nil {
		d, err := time.ParseDuration(*req.GraceWindow)
		if err != nil {
			return s, domain.NewValidationError("graceWindow must be a duration", map[string]any{"graceWindow": *req.GraceWindow})
		}
		s.GraceWindow = d
	}
	if req.MaxReservationDuration != nil {
		d, err := time.ParseDuration(*req.MaxReservationDuration)
		if err != nil {
			return s, domain.NewValidationError("maxReservationDuration must be a duration",
				map[string]any{"maxReservationDuration": *req.MaxReservationDuration})
		}
		s.MaxReservationDuration = d
	}
	return s, nil
}

// UpdateSettings handles PATCH /tenants/{tenantId}/settings
func (h *TenantHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	var req SettingsRequest
	if !h.scopes.decode(w, r, scope, &req) {
		return
	}
	settings, err := req.apply(scope.Settings)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	tenant, err := h.tenants.UpdateSettings(r.Context(), scope, settings)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, SettingsResponse{
		TenantID:                    tenant.ID,
		SkipApproval:                tenant.Settings.SkipApproval,
		GraceWindow:                 tenant.Settings.GraceWindow.String(),
		IncludeOptionalDependencies: tenant.Settings.IncludeOptionalDependencies,
		MaxReservationDuration:      tenant.Settings.MaxReservationDuration.String(),
	})
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/security/audit"
	"github.com/endlessblink/Gear-Pool/internal/security/middleware"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// ScopeResolver turns the authenticated claims and the {tenantId} path
// segment into the scope every service call runs under.
type ScopeResolver struct {
	tenants  *service.TenantContext
	audits   *service.AuditService
	auditLog *audit.Logger
}

// NewScopeResolver creates a resolver; audits and auditLog may be nil.
func NewScopeResolver(tenants *service.TenantContext, audits *service.AuditService, auditLog *audit.Logger) ScopeResolver {
	return ScopeResolver{tenants: tenants, audits: audits, auditLog: auditLog}
}

const tenantRoutes = "/api/v1/tenants/{tenantId}"

type writeTarget struct {
	action   domain.AuditAction
	resource string
}

// writeTargets maps each mutating route pattern to the audit entry written
// when the request is refused before its service runs.
var writeTargets = map[string]writeTarget{
	"POST " + tenantRoutes + "/reservations":               {domain.ActionCreate, domain.ResourceReservation},
	"POST " + tenantRoutes + "/reservations/{id}/approve":  {domain.ActionApprove, domain.ResourceReservation},
	"POST " + tenantRoutes + "/reservations/{id}/reject":   {domain.ActionReject, domain.ResourceReservation},
	"POST " + tenantRoutes + "/reservations/{id}/cancel":   {domain.ActionCancel, domain.ResourceReservation},
	"POST " + tenantRoutes + "/reservations/{id}/checkout": {domain.ActionCheckout, domain.ResourceReservation},
	"POST " + tenantRoutes + "/reservations/{id}/checkin":  {domain.ActionCheckin, domain.ResourceReservation},
	"POST " + tenantRoutes + "/equipment":                  {domain.ActionCreate, domain.ResourceEquipment},
	"PUT " + tenantRoutes + "/equipment/{id}":              {domain.ActionUpdate, domain.ResourceEquipment},
	"PUT " + tenantRoutes + "/equipment/{id}/dependencies": {domain.ActionSetDependencies, domain.ResourceEquipment},
	"POST " + tenantRoutes + "/users":                      {domain.ActionCreate, domain.ResourceUser},
	"POST " + tenantRoutes + "/users/{id}/anonymize":       {domain.ActionAnonymize, domain.ResourceUser},
	"PATCH " + tenantRoutes + "/settings":                  {domain.ActionUpdateSettings, domain.ResourceTenant},
}

func (s ScopeResolver) resolve(w http.ResponseWriter, r *http.Request) (domain.TenantScope, bool) {
	var p service.Principal
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		p = service.Principal{UserID: claims.UserID, TenantID: claims.TenantID, Role: claims.Role}
	}
	reqID := response.RequestID(r.Context())
	scope, err := s.tenants.Resolve(r.Context(), p, r.PathValue("tenantId"), reqID)
	if err != nil {
		if s.auditLog != nil {
			s.auditLog.LogDenied(r.Context(), p.TenantID, p.UserID, err.Error(), reqID)
		}
		// The path tenant is unverified, so the refusal lands in the caller's own trail.
		if p.TenantID != "" {
			s.recordRefusal(r, domain.TenantScope{
				TenantID:  p.TenantID,
				ActorID:   p.UserID,
				Role:      p.Role,
				RequestID: reqID,
			}, err)
		}
		response.Error(w, r, err)
		return domain.TenantScope{}, false
	}
	return scope, true
}

// decode reads the JSON body of a mutating request, auditing a body that
// cannot be parsed.
func (s ScopeResolver) decode(w http.ResponseWriter, r *http.Request, scope domain.TenantScope, dst any) bool {
	if err := response.Decode(r, dst); err != nil {
		s.recordRefusal(r, scope, err)
		response.Error(w, r, err)
		return false
	}
	return true
}

func (s ScopeResolver) recordRefusal(r *http.Request, scope domain.TenantScope, cause error) {
	target, ok := writeTargets[r.Pattern]
	if !ok || s.audits == nil {
		return
	}
	resourceID := r.PathValue("id")
	if target.resource == domain.ResourceTenant {
		resourceID = r.PathValue("tenantId")
	}
	s.audits.RecordFailure(r.Context(), scope, target.action, target.resource, resourceID, cause)
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.NewValidationError(name+" must be an integer", map[string]any{name: v})
	}
	return n, nil
}

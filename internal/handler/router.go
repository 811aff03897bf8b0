package handler

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/endlessblink/Gear-Pool/internal/security/audit"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Tenants        *service.TenantContext
	Auth           *service.AuthService
	Catalog        *service.CatalogService
	Engine         *service.ReservationEngine
	Workflow       *service.WorkflowService
	Audits         *service.AuditService
	AuditLog       *audit.Logger
	Health         map[string]Pinger
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter registers every route on a fresh mux. Authentication and the
// other cross-cutting middleware are applied by the caller.
func NewRouter(d Deps) *http.ServeMux {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scopes := NewScopeResolver(d.Tenants, d.Audits, d.AuditLog)

	authH := NewAuthHandler(d.Auth, logger)
	resH := NewReservationHandler(scopes, d.Engine, d.Workflow, logger)
	eqH := NewEquipmentHandler(scopes, d.Catalog, d.Engine, logger)
	auditH := NewAuditHandler(scopes, d.Audits, logger, d.AllowedOrigins)
	userH := NewUserHandler(scopes, d.Auth, d.Audits, logger)
	tenantH := NewTenantHandler(scopes, d.Tenants, logger)
	healthH := NewHealthHandler(d.Health, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthH.Health)
	mux.HandleFunc("GET /readyz", healthH.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/auth/login", authH.Login)
	mux.HandleFunc("POST /api/v1/auth/logout", authH.Logout)

	const t = tenantRoutes
	mux.HandleFunc("POST "+t+"/reservations", resH.Create)
	mux.HandleFunc("GET "+t+"/reservations", resH.List)
	mux.HandleFunc("GET "+t+"/reservations/{id}", resH.Get)
	mux.HandleFunc("POST "+t+"/reservations/{id}/approve", resH.Approve)
	mux.HandleFunc("POST "+t+"/reservations/{id}/reject", resH.Reject)
	mux.HandleFunc("POST "+t+"/reservations/{id}/cancel", resH.Cancel)
	mux.HandleFunc("POST "+t+"/reservations/{id}/checkout", resH.Checkout)
	mux.HandleFunc("POST "+t+"/reservations/{id}/checkin", resH.Checkin)

	mux.HandleFunc("POST "+t+"/equipment", eqH.Create)
	mux.HandleFunc("GET "+t+"/equipment", eqH.List)
	mux.HandleFunc("GET "+t+"/equipment/{id}", eqH.Get)
	mux.HandleFunc("PUT "+t+"/equipment/{id}", eqH.Update)
	mux.HandleFunc("PUT "+t+"/equipment/{id}/dependencies", eqH.SetDependencies)
	mux.HandleFunc("GET "+t+"/equipment/{id}/availability", eqH.Availability)

	mux.HandleFunc("GET "+t+"/audit", auditH.List)
	mux.HandleFunc("GET "+t+"/audit/stream", auditH.Stream)

	mux.HandleFunc("POST "+t+"/users", userH.Create)
	mux.HandleFunc("POST "+t+"/users/{id}/anonymize", userH.Anonymize)

	mux.HandleFunc("PATCH "+t+"/settings", tenantH.UpdateSettings)

	return mux
}

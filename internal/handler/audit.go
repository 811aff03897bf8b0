package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/featureflags"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// AuditHandler serves the tenant audit trail and its live feed.
type AuditHandler struct {
	scopes         ScopeResolver
	audits         *service.AuditService
	logger         *slog.Logger
	allowedOrigins []string
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(scopes ScopeResolver, audits *service.AuditService, logger *slog.Logger, allowedOrigins []string) *AuditHandler {
	return &AuditHandler{scopes: scopes, audits: audits, logger: logger, allowedOrigins: allowedOrigins}
}

// List handles GET /tenants/{tenantId}/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	var after int64
	if v := q.Get("afterSequence"); v != "" {
		after, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Error(w, r, domain.NewValidationError("afterSequence must be an integer", nil))
			return
		}
	}
	entries, err := h.audits.List(r.Context(), scope, domain.AuditFilter{
		ResourceID:    q.Get("resourceId"),
		ActorID:       q.Get("actorId"),
		Action:        domain.AuditAction(q.Get("action")),
		AfterSequence: after,
		Limit:         limit,
	})
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *AuditHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// Stream handles GET /tenants/{tenantId}/audit/stream, pushing every new
// entry of the tenant to the client as a JSON text frame.
func (h *AuditHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if !featureflags.Enabled(featureflags.AuditFeed) {
		response.Error(w, r, domain.NewNotFoundError("audit feed", r.PathValue("tenantId")))
		return
	}
	scope, ok := h.scopes.resolve(w, r)
	if !ok {
		return
	}
	entries, unsubscribe, err := h.audits.Subscribe(scope)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	defer unsubscribe()

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	// The reader only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return
			}
			if err := ws.WriteJSON(e); err != nil {
				h.logger.Debug("audit stream ended",
					slog.String("tenant_id", scope.TenantID),
					slog.String("reason", err.Error()),
				)
				return
			}
		case <-ticker.C:
			_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/security/audit"
	"github.com/endlessblink/Gear-Pool/internal/security/auth"
	"github.com/endlessblink/Gear-Pool/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

var publicPaths = map[string]bool{
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/v1/auth/login": true,
}

func isPublic(r *http.Request) bool {
	return r.Method == http.MethodOptions || publicPaths[r.URL.Path]
}

// RequestID attaches a request id to the context and response headers and
// logs each completed request.
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" || len(reqID) > 64 {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := response.WithRequestID(r.Context(), reqID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration_ms", time.Since(start)),
			)
		})
	}
}

// CORS honours the configured origins.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if len(allowed) > 0 {
				w.Header().Set("Access-Control-Allow-Origin", allowed[0])
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// JWTMiddleware validates bearer tokens on every non-public route and
// rejects revoked token ids.
func JWTMiddleware(tm *auth.TokenManager, revoked auth.RevocationStore, auditLog *audit.Logger, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r) {
				next.ServeHTTP(w, r)
				return
			}
			reqID := response.RequestID(r.Context())

			tokenString, err := auth.ExtractToken(r.Header.Get("Authorization"))
			if err != nil {
				// websocket clients cannot set headers
				if q := r.URL.Query().Get("access_token"); q != "" && strings.HasSuffix(r.URL.Path, "/stream") {
					tokenString, err = q, nil
				}
			}
			if err != nil {
				auditLog.LogDenied(r.Context(), "", "", "missing or malformed authorization header", reqID)
				response.Error(w, r, domain.NewUnauthorizedError("missing or invalid authorization header"))
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				auditLog.LogDenied(r.Context(), "", "", err.Error(), reqID)
				response.Error(w, r, domain.NewUnauthorizedError("invalid token"))
				return
			}

			isRevoked, err := revoked.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				log.Error("token revocation check failed", slog.String("error", err.Error()))
				response.Error(w, r, err)
				return
			}
			if isRevoked {
				auditLog.LogDenied(r.Context(), claims.TenantID, claims.UserID, "token revoked", reqID)
				response.Error(w, r, domain.NewUnauthorizedError("token revoked"))
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware applies the per-tenant token bucket to authenticated requests.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(claims.TenantID) {
				log.Warn("rate limit exceeded",
					slog.String("tenant_id", claims.TenantID),
					slog.String("path", r.URL.Path),
				)
				response.Fail(w, r, domain.CodeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware logs every mutating request before it is handled.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodOptions && r.Method != http.MethodHead {
				tenantID, userID := "", ""
				if claims := GetClaimsFromContext(r.Context()); claims != nil {
					tenantID, userID = claims.TenantID, claims.UserID
				}
				auditLog.LogRequest(r.Context(), tenantID, userID, r.Method, r.URL.Path, response.RequestID(r.Context()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsContextKey{}).(*auth.Claims)
	return claims
}

// WithClaims stores claims on ctx; used by tests and internal callers.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey{}, claims)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

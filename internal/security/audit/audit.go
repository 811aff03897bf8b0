package audit

import (
	"context"
	"log/slog"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// Logger mirrors audit trail entries and access decisions into the structured log.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// LogEntry emits one "audit" line for a recorded entry.
func (al *Logger) LogEntry(ctx context.Context, e *domain.AuditLogEntry) {
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.Int64("sequence", e.Sequence),
		slog.String("action", string(e.Action)),
		slog.String("resource", e.ResourceType),
		slog.String("resource_id", e.ResourceID),
		slog.String("tenant_id", e.TenantID),
		slog.String("user_id", e.ActorID),
		slog.String("status", string(e.Result)),
		slog.String("error_code", string(e.ErrorCode)),
		slog.String("request_id", e.RequestID),
		slog.Time("timestamp", e.CreatedAt),
	)
}

// LogRequest records that a mutating request reached the API.
func (al *Logger) LogRequest(ctx context.Context, tenantID, userID, method, path, requestID string) {
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", "request"),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", "initiated"),
		slog.String("request_id", requestID),
	)
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason, requestID string) {
	al.logger.LogAttrs(ctx, slog.LevelWarn, "audit",
		slog.String("action", "access_denied"),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", "denied"),
		slog.String("details", reason),
		slog.String("request_id", requestID),
	)
}

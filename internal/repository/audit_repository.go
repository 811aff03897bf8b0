package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// PostgresAuditRepository implements domain.AuditRepository using PostgreSQL.
// Sequence numbers come from a BIGSERIAL column, so they only ever grow.
type PostgresAuditRepository struct {
	q      querier
	logger *slog.Logger
}

// Append inserts an entry and fills its sequence
func (r *PostgresAuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO audit_log (tenant_id, actor_id, action, resource_type, resource_id, before, after, result, error_code, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING sequence
	`,
		entry.TenantID, entry.ActorID, string(entry.Action), entry.ResourceType, entry.ResourceID,
		nullJSON(entry.Before), nullJSON(entry.After),
		string(entry.Result), string(entry.ErrorCode), entry.RequestID, entry.CreatedAt,
	).Scan(&entry.Sequence)
	if err != nil {
		r.logger.Error("failed to append audit entry",
			slog.String("action", string(entry.Action)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// List returns entries in sequence order
func (r *PostgresAuditRepository) List(ctx context.Context, tenantID string, filter domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	where := []string{"tenant_id = $1", "sequence > $2"}
	args := []any{tenantID, filter.AfterSequence}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = "+arg(filter.ResourceID))
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = "+arg(filter.ActorID))
	}
	if filter.Action != "" {
		where = append(where, "action = "+arg(string(filter.Action)))
	}
	query := `
		SELECT tenant_id, sequence, actor_id, action, resource_type, resource_id, before, after, result, error_code, request_id, created_at
		FROM audit_log
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY sequence`
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLogEntry
	for rows.Next() {
		e := &domain.AuditLogEntry{}
		var action, result, code string
		var before, after []byte
		err := rows.Scan(&e.TenantID, &e.Sequence, &e.ActorID, &action, &e.ResourceType, &e.ResourceID,
			&before, &after, &result, &code, &e.RequestID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = domain.AuditAction(action)
		e.Result = domain.AuditResult(result)
		e.ErrorCode = domain.ErrorCode(code)
		if len(before) > 0 {
			e.Before = json.RawMessage(before)
		}
		if len(after) > 0 {
			e.After = json.RawMessage(after)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AnonymizeActor rewrites an actor id on every entry of the tenant
func (r *PostgresAuditRepository) AnonymizeActor(ctx context.Context, tenantID, actorID string) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE audit_log SET actor_id = $1 WHERE tenant_id = $2 AND actor_id = $3`,
		domain.AnonymousActor, tenantID, actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize actor: %w", err)
	}
	return res.RowsAffected()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

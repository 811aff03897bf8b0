package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/security"
	"github.com/endlessblink/Gear-Pool/internal/security/audit"
)

const defaultAuditLimit = 100

// AuditService builds trail entries, mirrors committed ones to the log and
// the live feed, and serves audit queries.
type AuditService struct {
	store    domain.Store
	auditLog *audit.Logger
	feed     *audit.Feed
	authz    *security.AuthorizationService
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuditService creates a new audit service. feed may be nil.
func NewAuditService(
	store domain.Store,
	auditLog *audit.Logger,
	feed *audit.Feed,
	authz *security.AuthorizationService,
	logger *slog.Logger,
) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{
		store:    store,
		auditLog: auditLog,
		feed:     feed,
		authz:    authz,
		logger:   logger,
		now:      time.Now,
	}
}

// NewEntry prepares a success entry with JSON snapshots of before and after.
func (s *AuditService) NewEntry(scope domain.TenantScope, action domain.AuditAction, resourceType, resourceID string, before, after any) *domain.AuditLogEntry {
	return &domain.AuditLogEntry{
		TenantID:     scope.TenantID,
		ActorID:      scope.ActorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       s.snapshot(before),
		After:        s.snapshot(after),
		Result:       domain.ResultSuccess,
		RequestID:    scope.RequestID,
		CreatedAt:    s.now().UTC(),
	}
}

func (s *AuditService) snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to snapshot audit state", slog.String("error", err.Error()))
		return nil
	}
	if string(raw) == "null" {
		return nil
	}
	return raw
}

// Commit announces entries whose transaction has committed.
func (s *AuditService) Commit(ctx context.Context, entries ...*domain.AuditLogEntry) {
	for _, e := range entries {
		if e == nil {
			continue
		}
		s.auditLog.LogEntry(ctx, e)
		if s.feed != nil {
			s.feed.Publish(e)
		}
	}
}

// RecordFailure appends a failure entry for a rejected mutation in its own
// transaction. It never masks the original error, so problems are only logged.
func (s *AuditService) RecordFailure(ctx context.Context, scope domain.TenantScope, action domain.AuditAction, resourceType, resourceID string, cause error) {
	if cause == nil || errors.Is(cause, context.Canceled) {
		return
	}
	entry := &domain.AuditLogEntry{
		TenantID:     scope.TenantID,
		ActorID:      scope.ActorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Result:       domain.ResultFailure,
		ErrorCode:    domain.CodeOf(cause),
		RequestID:    scope.RequestID,
		CreatedAt:    s.now().UTC(),
	}
	// Detached so a cancelled request still leaves its failure in the trail.
	ctx = context.WithoutCancel(ctx)
	err := s.store.Atomic(ctx, nil, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		s.logger.Error("failed to record audit failure",
			slog.String("action", string(action)),
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.Commit(ctx, entry)
}

// List returns the tenant trail in sequence order.
func (s *AuditService) List(ctx context.Context, scope domain.TenantScope, filter domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	if err := s.authz.ValidatePermission(scope, security.PermViewAuditLog); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = defaultAuditLimit
	}
	return s.store.Audit().List(ctx, scope.TenantID, filter)
}

// AnonymizeActor replaces userID with the anonymous sentinel on every entry
// of the tenant. The erasure itself is recorded under the caller's id.
func (s *AuditService) AnonymizeActor(ctx context.Context, scope domain.TenantScope, userID string) (int64, error) {
	if err := s.authz.ValidatePermission(scope, security.PermEraseActor); err != nil {
		s.RecordFailure(ctx, scope, domain.ActionAnonymize, domain.ResourceUser, userID, err)
		return 0, err
	}
	if userID == "" || userID == domain.AnonymousActor {
		err := domain.NewValidationError("user id is required", nil)
		s.RecordFailure(ctx, scope, domain.ActionAnonymize, domain.ResourceUser, userID, err)
		return 0, err
	}

	var (
		count int64
		entry *domain.AuditLogEntry
	)
	err := s.store.Atomic(ctx, nil, func(ctx context.Context, repos domain.Repositories) error {
		n, err := repos.Audit().AnonymizeActor(ctx, scope.TenantID, userID)
		if err != nil {
			return err
		}
		count = n
		entry = s.NewEntry(scope, domain.ActionAnonymize, domain.ResourceUser, domain.AnonymousActor,
			nil, map[string]int64{"entries": n})
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		s.RecordFailure(ctx, scope, domain.ActionAnonymize, domain.ResourceUser, userID, err)
		return 0, err
	}
	s.Commit(ctx, entry)
	s.logger.Info("actor anonymized",
		slog.String("tenant_id", scope.TenantID),
		slog.Int64("entries", count),
	)
	return count, nil
}

// Subscribe opens a live feed of the tenant's new entries.
func (s *AuditService) Subscribe(scope domain.TenantScope) (<-chan *domain.AuditLogEntry, func(), error) {
	if err := s.authz.ValidatePermission(scope, security.PermViewAuditLog); err != nil {
		return nil, nil, err
	}
	if s.feed == nil {
		return nil, nil, domain.NewNotFoundError("audit feed", scope.TenantID)
	}
	ch, cancel := s.feed.Subscribe(scope.TenantID)
	return ch, cancel, nil
}

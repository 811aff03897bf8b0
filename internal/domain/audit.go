package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AnonymousActor replaces erased actor ids.
const AnonymousActor = "anonymous"

// AuditAction names the mutation an entry describes.
type AuditAction string

const (
	ActionCreate          AuditAction = "create"
	ActionApprove         AuditAction = "approve"
	ActionReject          AuditAction = "reject"
	ActionCancel          AuditAction = "cancel"
	ActionCheckout        AuditAction = "checkout"
	ActionCheckin         AuditAction = "checkin"
	ActionOverdue         AuditAction = "overdue"
	ActionUpdate          AuditAction = "update"
	ActionSetDependencies AuditAction = "set_dependencies"
	ActionUpdateSettings  AuditAction = "update_settings"
	ActionAnonymize       AuditAction = "anonymize"
)

// Resource types recorded in the trail.
const (
	ResourceReservation = "reservation"
	ResourceEquipment   = "equipment"
	ResourceUser        = "user"
	ResourceTenant      = "tenant"
)

// AuditResult distinguishes completed mutations from rejected attempts.
type AuditResult string

const (
	ResultSuccess AuditResult = "success"
	ResultFailure AuditResult = "failure"
)

// AuditLogEntry is an immutable record of one mutation attempt.
type AuditLogEntry struct {
	TenantID     string          `json:"tenantId"`
	Sequence     int64           `json:"sequence"`
	ActorID      string          `json:"actorId"`
	Action       AuditAction     `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	Result       AuditResult     `json:"result"`
	ErrorCode    ErrorCode       `json:"errorCode,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	ResourceID    string
	ActorID       string
	Action        AuditAction
	AfterSequence int64
	Limit         int
}

// AuditRepository is append-only apart from actor anonymization.
type AuditRepository interface {
	// Append assigns the next tenant sequence to entry.
	Append(ctx context.Context, entry *AuditLogEntry) error
	List(ctx context.Context, tenantID string, filter AuditFilter) ([]*AuditLogEntry, error)
	AnonymizeActor(ctx context.Context, tenantID, actorID string) (int64, error)
}

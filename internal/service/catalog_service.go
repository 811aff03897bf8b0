package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/security"
)

// CatalogService manages equipment items and their dependency graph.
type CatalogService struct {
	store  domain.Store
	authz  *security.AuthorizationService
	audits *AuditService
	logger *slog.Logger
	now    func() time.Time
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store domain.Store, authz *security.AuthorizationService, audits *AuditService, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{store: store, authz: authz, audits: audits, logger: logger, now: time.Now}
}

// EquipmentInput carries the writable fields of an equipment item.
type EquipmentInput struct {
	Category      string           `json:"category"`
	Name          string           `json:"name"`
	TotalQuantity int              `json:"totalQuantity"`
	Condition     domain.Condition `json:"condition"`
	IsActive      *bool            `json:"isActive,omitempty"`
}

// CreateEquipment adds an item to the tenant catalog.
func (s *CatalogService) CreateEquipment(ctx context.Context, scope domain.TenantScope, in EquipmentInput) (*domain.EquipmentItem, error) {
	item, err := s.createEquipment(ctx, scope, in)
	if err != nil {
		s.audits.RecordFailure(ctx, scope, domain.ActionCreate, domain.ResourceEquipment, "", err)
		return nil, err
	}
	return item, nil
}

func (s *CatalogService) createEquipment(ctx context.Context, scope domain.TenantScope, in EquipmentInput) (*domain.EquipmentItem, error) {
	if err := s.authz.ValidatePermission(scope, security.PermManageEquipment); err != nil {
		return nil, err
	}
	item := &domain.EquipmentItem{
		ID:            uuid.NewString(),
		TenantID:      scope.TenantID,
		Category:      strings.TrimSpace(in.Category),
		Name:          strings.TrimSpace(in.Name),
		TotalQuantity: in.TotalQuantity,
		Condition:     in.Condition,
		IsActive:      true,
	}
	if item.Condition == "" {
		item.Condition = domain.ConditionGood
	}
	if in.IsActive != nil {
		item.IsActive = *in.IsActive
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	var entry *domain.AuditLogEntry
	err := s.store.Atomic(ctx, []string{item.ID}, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Equipment().Create(ctx, item); err != nil {
			return err
		}
		entry = s.audits.NewEntry(scope, domain.ActionCreate, domain.ResourceEquipment, item.ID, nil, item)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audits.Commit(ctx, entry)
	s.logger.Info("equipment created",
		slog.String("tenant_id", scope.TenantID),
		slog.String("equipment_id", item.ID),
		slog.Int("total_quantity", item.TotalQuantity),
	)
	return item, nil
}

// UpdateEquipment replaces the writable fields of an item. Dependencies are
// managed separately through SetDependencies.
func (s *CatalogService) UpdateEquipment(ctx context.Context, scope domain.TenantScope, id string, in EquipmentInput) (*domain.EquipmentItem, error) {
	item, err := s.updateEquipment(ctx, scope, id, in)
	if err != nil {
		s.audits.RecordFailure(ctx, scope, domain.ActionUpdate, domain.ResourceEquipment, id, err)
		return nil, err
	}
	return item, nil
}

func (s *CatalogService) updateEquipment(ctx context.Context, scope domain.TenantScope, id string, in EquipmentInput) (*domain.EquipmentItem, error) {
	if err := s.authz.ValidatePermission(scope, security.PermManageEquipment); err != nil {
		return nil, err
	}

	var (
		updated *domain.EquipmentItem
		entry   *domain.AuditLogEntry
	)
	err := s.store.Atomic(ctx, []string{id}, func(ctx context.Context, repos domain.Repositories) error {
		before, err := repos.Equipment().GetByID(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		next := *before
		if in.Category != "" {
			next.Category = strings.TrimSpace(in.Category)
		}
		if in.Name != "" {
			next.Name = strings.TrimSpace(in.Name)
		}
		if in.TotalQuantity != 0 {
			next.TotalQuantity = in.TotalQuantity
		}
		if in.Condition != "" {
			next.Condition = in.Condition
		}
		if in.IsActive != nil {
			next.IsActive = *in.IsActive
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if next.TotalQuantity < before.TotalQuantity {
			if err := checkShrink(ctx, repos, scope.TenantID, &next, s.now()); err != nil {
				return err
			}
		}
		if err := repos.Equipment().Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		entry = s.audits.NewEntry(scope, domain.ActionUpdate, domain.ResourceEquipment, id, before, &next)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audits.Commit(ctx, entry)
	return updated, nil
}

// checkShrink rejects a pool size below what current and future committed
// reservations already hold at their busiest moment.
func checkShrink(ctx context.Context, repos domain.Repositories, tenantID string, item *domain.EquipmentItem, now time.Time) error {
	horizon := domain.Interval{Start: now, End: now.AddDate(100, 0, 0)}
	allocs, err := repos.Reservations().FindOverlapping(ctx, tenantID, item.ID, horizon, "")
	if err != nil {
		return err
	}
	if peak := domain.PeakCommitted(allocs); item.TotalQuantity < peak {
		return domain.NewValidationError("total quantity is below committed quantity", map[string]any{
			"equipmentId":   item.ID,
			"totalQuantity": item.TotalQuantity,
			"committed":     peak,
		})
	}
	return nil
}

// GetEquipment returns one catalog item.
func (s *CatalogService) GetEquipment(ctx context.Context, scope domain.TenantScope, id string) (*domain.EquipmentItem, error) {
	return s.store.Equipment().GetByID(ctx, scope.TenantID, id)
}

// ListEquipment lists the tenant catalog.
func (s *CatalogService) ListEquipment(ctx context.Context, scope domain.TenantScope, filter domain.EquipmentFilter) ([]*domain.EquipmentItem, error) {
	return s.store.Equipment().List(ctx, scope.TenantID, filter)
}

// SetDependencies replaces the dependency links of an item after checking
// the resulting tenant graph stays acyclic.
func (s *CatalogService) SetDependencies(ctx context.Context, scope domain.TenantScope, id string, deps []domain.Dependency) (*domain.EquipmentItem, error) {
	item, err := s.setDependencies(ctx, scope, id, deps)
	if err != nil {
		s.audits.RecordFailure(ctx, scope, domain.ActionSetDependencies, domain.ResourceEquipment, id, err)
		return nil, err
	}
	return item, nil
}

func (s *CatalogService) setDependencies(ctx context.Context, scope domain.TenantScope, id string, deps []domain.Dependency) (*domain.EquipmentItem, error) {
	if err := s.authz.ValidatePermission(scope, security.PermManageEquipment); err != nil {
		return nil, err
	}
	if deps == nil {
		deps = []domain.Dependency{}
	}

	// The tenant catalog lock keeps concurrent edits from closing a cycle
	// that neither sees.
	lockIDs := make([]string, 0, len(deps)+2)
	lockIDs = append(lockIDs, domain.CatalogLockKey(scope.TenantID), id)
	for _, d := range deps {
		lockIDs = append(lockIDs, d.EquipmentID)
	}

	var (
		updated *domain.EquipmentItem
		entry   *domain.AuditLogEntry
	)
	err := s.store.Atomic(ctx, lockIDs, func(ctx context.Context, repos domain.Repositories) error {
		before, err := repos.Equipment().GetByID(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		all, err := repos.Equipment().List(ctx, scope.TenantID, domain.EquipmentFilter{})
		if err != nil {
			return err
		}
		graph := make(map[string][]domain.Dependency, len(all))
		for _, e := range all {
			graph[e.ID] = e.Dependencies
		}
		if err := domain.ValidateDependencies(id, deps, graph); err != nil {
			return err
		}
		if err := repos.Equipment().SetDependencies(ctx, scope.TenantID, id, deps); err != nil {
			return err
		}
		after := *before
		after.Dependencies = deps
		updated = &after
		entry = s.audits.NewEntry(scope, domain.ActionSetDependencies, domain.ResourceEquipment, id,
			before.Dependencies, deps)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audits.Commit(ctx, entry)
	s.logger.Info("equipment dependencies set",
		slog.String("equipment_id", id),
		slog.Int("dependencies", len(deps)),
	)
	return updated, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// PostgresEquipmentRepository implements domain.EquipmentRepository using PostgreSQL
type PostgresEquipmentRepository struct {
	q      querier
	logger *slog.Logger
}

const equipmentColumns = `id, tenant_id, category, name, total_quantity, condition, is_active, created_at, updated_at`

// Create inserts an item and its dependency links
func (r *PostgresEquipmentRepository) Create(ctx context.Context, item *domain.EquipmentItem) error {
	query := `
		INSERT INTO equipment (id, tenant_id, category, name, total_quantity, condition, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		item.ID, item.TenantID, item.Category, item.Name, item.TotalQuantity, string(item.Condition), item.IsActive,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create equipment",
			slog.String("name", item.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create equipment: %w", err)
	}
	if len(item.Dependencies) > 0 {
		return r.insertDependencies(ctx, item.TenantID, item.ID, item.Dependencies)
	}
	return nil
}

// Update writes the mutable columns of an item; dependencies are untouched
func (r *PostgresEquipmentRepository) Update(ctx context.Context, item *domain.EquipmentItem) error {
	query := `
		UPDATE equipment
		SET category = $1, name = $2, total_quantity = $3, condition = $4, is_active = $5, updated_at = NOW()
		WHERE id = $6 AND tenant_id = $7
		RETURNING updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		item.Category, item.Name, item.TotalQuantity, string(item.Condition), item.IsActive, item.ID, item.TenantID,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFoundError("equipment", item.ID)
		}
		return fmt.Errorf("failed to update equipment: %w", err)
	}
	return nil
}

// GetByID retrieves an item with its dependency links
func (r *PostgresEquipmentRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.EquipmentItem, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE id = $1 AND tenant_id = $2`
	item, err := scanEquipment(r.q.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("equipment", id)
		}
		return nil, fmt.Errorf("failed to get equipment: %w", err)
	}
	deps, err := r.dependencies(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	item.Dependencies = deps[id]
	return item, nil
}

// List returns a tenant's catalog ordered by name
func (r *PostgresEquipmentRepository) List(ctx context.Context, tenantID string, filter domain.EquipmentFilter) ([]*domain.EquipmentItem, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment
		WHERE tenant_id = $1 AND ($2 = '' OR category = $2) AND (NOT $3 OR is_active)
		ORDER BY name, id`
	rows, err := r.q.QueryContext(ctx, query, tenantID, filter.Category, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer rows.Close()

	var items []*domain.EquipmentItem
	var ids []string
	for rows.Next() {
		item, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	deps, err := r.dependencies(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		item.Dependencies = deps[item.ID]
	}
	return items, nil
}

// SetDependencies replaces the outgoing dependency links of an item
func (r *PostgresEquipmentRepository) SetDependencies(ctx context.Context, tenantID, id string, deps []domain.Dependency) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM equipment_dependencies WHERE equipment_id = $1 AND tenant_id = $2`, id, tenantID); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", err)
	}
	return r.insertDependencies(ctx, tenantID, id, deps)
}

func (r *PostgresEquipmentRepository) insertDependencies(ctx context.Context, tenantID, id string, deps []domain.Dependency) error {
	for _, d := range deps {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO equipment_dependencies (equipment_id, depends_on_id, tenant_id, kind, quantity)
			VALUES ($1, $2, $3, $4, $5)
		`, id, d.EquipmentID, tenantID, string(d.Kind), d.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s: %w", d.EquipmentID, err)
		}
	}
	return nil
}

func (r *PostgresEquipmentRepository) dependencies(ctx context.Context, ids []string) (map[string][]domain.Dependency, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT equipment_id, depends_on_id, kind, quantity
		FROM equipment_dependencies
		WHERE equipment_id = ANY($1)
		ORDER BY equipment_id, depends_on_id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load dependencies: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Dependency)
	for rows.Next() {
		var owner, kind string
		var d domain.Dependency
		if err := rows.Scan(&owner, &d.EquipmentID, &kind, &d.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		d.Kind = domain.DependencyKind(kind)
		out[owner] = append(out[owner], d)
	}
	return out, rows.Err()
}

func scanEquipment(s scanner) (*domain.EquipmentItem, error) {
	e := &domain.EquipmentItem{}
	var condition string
	err := s.Scan(&e.ID, &e.TenantID, &e.Category, &e.Name, &e.TotalQuantity, &condition, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Condition = domain.Condition(condition)
	return e, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// PostgresTenantRepository implements domain.TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	q      querier
	logger *slog.Logger
}

// Create creates a new tenant
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	settings, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant settings: %w", err)
	}
	query := `
		INSERT INTO tenants (id, name, slug, settings, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = r.q.QueryRowContext(ctx, query, tenant.ID, tenant.Name, tenant.Slug, settings, tenant.IsActive).
		Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("tenant slug already exists", map[string]any{"slug": tenant.Slug})
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `
		SELECT id, name, slug, settings, is_active, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	t, err := scanTenant(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("tenant", id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// UpdateSettings replaces the tenant's policy settings
func (r *PostgresTenantRepository) UpdateSettings(ctx context.Context, id string, settings domain.TenantSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant settings: %w", err)
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE tenants SET settings = $1, updated_at = NOW() WHERE id = $2`, raw, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant settings: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("tenant", id)
	}
	return nil
}

// List returns every tenant
func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, slug, settings, is_active, created_at, updated_at
		FROM tenants
		ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			r.logger.Error("failed to scan tenant row", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanTenant(s scanner) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	var settings []byte
	if err := s.Scan(&t.ID, &t.Name, &t.Slug, &settings, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Settings = domain.DefaultTenantSettings()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("invalid tenant settings: %w", err)
		}
	}
	return t, nil
}

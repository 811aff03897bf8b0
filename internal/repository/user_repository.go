package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	q      querier
	logger *slog.Logger
}

const userColumns = `id, tenant_id, email, display_name, password_hash, role, is_active, created_at, updated_at`

// Create creates a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, tenant_id, email, display_name, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		user.ID,
		user.TenantID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("email already registered", map[string]any{"email": user.Email})
		}
		r.logger.Error("failed to create user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user of a tenant by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND tenant_id = $2`
	user, err := scanUser(r.q.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("user", id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email across tenants
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	user, err := scanUser(r.q.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("user", email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// ListByTenant lists all users for a tenant
func (r *PostgresUserRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 ORDER BY email`
	return r.list(ctx, query, tenantID)
}

// ListByRole lists active users at or above a role
func (r *PostgresUserRepository) ListByRole(ctx context.Context, tenantID string, minimum domain.Role) ([]*domain.User, error) {
	users, err := r.list(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND is_active = true ORDER BY email`, tenantID)
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if u.Role.AtLeast(minimum) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *PostgresUserRepository) list(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(s scanner) (*domain.User, error) {
	u := &domain.User{}
	var role string
	err := s.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/security"
	"github.com/endlessblink/Gear-Pool/internal/security/auth"
)

// AuthService handles authentication operations
type AuthService struct {
	store   domain.Store
	tokens  *auth.TokenManager
	revoked auth.RevocationStore
	ttl     time.Duration
	authz   *security.AuthorizationService
	audits  *AuditService
	logger  *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store domain.Store,
	tokens *auth.TokenManager,
	revoked auth.RevocationStore,
	ttl time.Duration,
	authz *security.AuthorizationService,
	audits *AuditService,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{
		store:   store,
		tokens:  tokens,
		revoked: revoked,
		ttl:     ttl,
		authz:   authz,
		audits:  audits,
		logger:  logger,
	}
}

// LoginResult represents login response
type LoginResult struct {
	UserID    string      `json:"userId"`
	TenantID  string      `json:"tenantId"`
	Role      domain.Role `json:"role"`
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expiresIn"` // seconds
	TokenType string      `json:"tokenType"`
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.NewValidationError("email and password are required", nil)
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		s.logger.Info("login attempt with unknown email", slog.String("email", email))
		return nil, domain.NewUnauthorizedError("invalid credentials")
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		s.logger.Info("login failed with wrong password", slog.String("user_id", user.ID))
		return nil, domain.NewUnauthorizedError("invalid credentials")
	}
	if !user.IsActive {
		s.logger.Info("login attempt by inactive user", slog.String("user_id", user.ID))
		return nil, domain.NewUnauthorizedError("invalid credentials")
	}

	token, _, err := s.tokens.GenerateToken(user, s.ttl)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
	)

	return &LoginResult{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.ttl.Seconds()),
		TokenType: "Bearer",
	}, nil
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return domain.NewUnauthorizedError("token has no id")
	}
	if err := s.revoked.Revoke(ctx, claims.ID, s.tokens.Remaining(claims)); err != nil {
		return err
	}
	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// CreateUserRequest is the admin input for a new account.
type CreateUserRequest struct {
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	Password    string      `json:"password"`
	Role        domain.Role `json:"role"`
}

// CreateUser adds an account to the caller's tenant. Admin only.
func (s *AuthService) CreateUser(ctx context.Context, scope domain.TenantScope, req CreateUserRequest) (*domain.User, error) {
	user, err := s.createUser(ctx, scope, req)
	if err != nil {
		s.audits.RecordFailure(ctx, scope, domain.ActionCreate, domain.ResourceUser, "", err)
		return nil, err
	}
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, scope domain.TenantScope, req CreateUserRequest) (*domain.User, error) {
	if err := s.authz.ValidatePermission(scope, security.PermManageUsers); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.NewValidationError("a valid email is required", map[string]any{"email": req.Email})
	}
	role, err := domain.ParseRole(string(req.Role))
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, domain.NewValidationError(err.Error(), nil)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		TenantID:     scope.TenantID,
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}

	var entry *domain.AuditLogEntry
	err = s.store.Atomic(ctx, nil, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Users().Create(ctx, user); err != nil {
			return err
		}
		entry = s.audits.NewEntry(scope, domain.ActionCreate, domain.ResourceUser, user.ID, nil, user)
		return repos.Audit().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audits.Commit(ctx, entry)
	s.logger.Info("user created",
		slog.String("tenant_id", user.TenantID),
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

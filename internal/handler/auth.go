package handler

import (
	"log/slog"
	"net/http"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
	"github.com/endlessblink/Gear-Pool/internal/security/middleware"
	"github.com/endlessblink/Gear-Pool/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authService: authService, logger: logger}
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login failed", slog.String("email", req.Email))
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Logout handles POST /api/v1/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		response.Error(w, r, domain.NewUnauthorizedError("missing token"))
		return
	}
	if err := h.authService.Logout(r.Context(), claims); err != nil {
		response.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

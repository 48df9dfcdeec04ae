package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/youcloud/sla-engine/internal/api/dto"
	"github.com/youcloud/sla-engine/internal/service"
	apperrors "github.com/youcloud/sla-engine/pkg/util"
)

// AuthHandler exposes operator login.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler returns a new handler instance.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login authenticates an operator and issues a token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewOperatorInputInvalid("invalid request body", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewOperatorInputInvalid("email and password are required", nil)
	}

	token, expiresAt, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.LoginResponse{AccessToken: token, ExpiresAt: expiresAt})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loyalty-scanner/internal/api/dto"
	"github.com/spec-kit/loyalty-scanner/internal/service"
	apperrors "github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

// OperatorsHandler exposes operator auth endpoints.
type OperatorsHandler struct {
	auth *service.AuthService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(authService *service.AuthService) *OperatorsHandler {
	return &OperatorsHandler{auth: authService}
}

// Login handles POST /auth/operators/login.
func (h *OperatorsHandler) Login(c *fiber.Ctx) error {
	var req dto.OperatorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	token, meta, err := h.auth.LoginOperator(c.UserContext(), req.PIN)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token, MerchantID: meta.MerchantID, ExpiresAt: meta.ExpiresAt},
	})
}

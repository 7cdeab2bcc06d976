package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
	apperrors "github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

// RequireOperator ensures an operator of merchantID is authenticated. Tokens
// issued for another merchant are rejected.
func RequireOperator(merchantID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeOperator {
			return apperrors.NewForbidden("operator required")
		}
		if principal.MerchantID != merchantID {
			return apperrors.NewForbidden("token issued for another merchant")
		}
		return c.Next()
	}
}

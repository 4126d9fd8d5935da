package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gatewayd-labs/auth-gateway/internal/auth"
	apperrors "github.com/gatewayd-labs/auth-gateway/pkg/util"
)

// IdentityHandler serves bearer-protected API resources.
type IdentityHandler struct{}

// NewIdentityHandler constructs handler.
func NewIdentityHandler() *IdentityHandler {
	return &IdentityHandler{}
}

// Me handles GET /api/v1/me.
func (h *IdentityHandler) Me(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromCtx(c)
	if !ok {
		return apperrors.NewUnauthorized("unauthenticated")
	}
	return c.JSON(fiber.Map{"data": identityResponse(identity)})
}

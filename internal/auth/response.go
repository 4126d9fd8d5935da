package auth

import (
	"github.com/gofiber/fiber/v2"
)

// WriteFailure renders a 401 for the classification and ends the request.
// The caller must return its result without calling c.Next.
func WriteFailure(c *fiber.Ctx, cl Classification) error {
	c.Status(fiber.StatusUnauthorized)
	if cl.HeaderFlag != "" {
		c.Set(cl.HeaderFlag, "true")
	}
	return c.JSON(fiber.Map{"error": cl.Message})
}

package server

import (
	"youniverse/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// RebootStation handles POST /api/admin/reboot: the hard reset that returns
// every non-graveyard song to the pool and restarts the cycle. Gated on the
// admin key; the reboot itself is idempotent, so a double-submit is harmless.
func (s *Server) RebootStation(c *fiber.Ctx) error {
	if s.config.AdminKeyHash == "" {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError("Admin access is not configured"))
	}

	key := c.Get("X-Admin-Key")
	if key == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("X-Admin-Key header required"))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminKeyHash), []byte(key)); err != nil {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError("Invalid admin key"))
	}

	if err := s.engine.Reboot(c.Context()); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"status": "rebooted",
	})
}

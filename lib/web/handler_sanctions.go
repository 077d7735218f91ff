package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/moderation"
)

// postSanction invokes a moderation action and returns the recorded case
func postSanction(c *fiber.Ctx, service *moderation.Service) error {
	var req moderation.SanctionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	record, err := service.InvokeSanction(&req)
	if err != nil {
		logging.Debugf("Sanction request rejected: %v", err)
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

package web

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/wardenkit/warden/lib/config"
)

// apiKeyMiddleware rejects requests whose X-API-Key header does not match
// the configured key. An empty configured key disables the check for local
// development.
func apiKeyMiddleware(c *fiber.Ctx) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "configuration unavailable"})
	}

	expected := cfg.Server.APIKey
	if expected == "" {
		return c.Next()
	}

	provided := c.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
	}

	return c.Next()
}

package web

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	jsoniter "github.com/json-iterator/go"

	"github.com/wardenkit/warden/lib/config"
	"github.com/wardenkit/warden/lib/moderation"
	"github.com/wardenkit/warden/lib/types"
	"github.com/wardenkit/warden/lib/workflow/report"
	"github.com/wardenkit/warden/lib/workflow/ticket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StartServer runs the HTTP API until the listener fails or the app is
// shut down
func StartServer(service *moderation.Service, tickets *ticket.Workflow, reports *report.Workflow) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app := NewApp(service, tickets, reports)

	return app.Listen(fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port))
}

// NewApp builds the fiber application with all routes registered. Split
// from StartServer so tests can drive it without a listener.
func NewApp(service *moderation.Service, tickets *ticket.Workflow, reports *report.Workflow) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	api := app.Group("/api")
	api.Use(apiKeyMiddleware)

	api.Post("/sanctions", func(c *fiber.Ctx) error {
		return postSanction(c, service)
	})
	api.Get("/communities/:communityId/users/:userId/cases", func(c *fiber.Ctx) error {
		return getCases(c, service)
	})
	api.Get("/communities/:communityId/users/:userId/stats", func(c *fiber.Ctx) error {
		return getCaseStats(c, service)
	})

	api.Post("/tickets", func(c *fiber.Ctx) error {
		return openTicket(c, tickets)
	})
	api.Post("/tickets/:ticketId/take", func(c *fiber.Ctx) error {
		return takeTicket(c, tickets)
	})
	api.Post("/tickets/:ticketId/close", func(c *fiber.Ctx) error {
		return closeTicket(c, tickets)
	})
	api.Post("/tickets/:ticketId/transcript", func(c *fiber.Ctx) error {
		return ticketTranscript(c, tickets)
	})

	api.Post("/reports", func(c *fiber.Ctx) error {
		return submitReport(c, reports)
	})
	api.Post("/reports/:reportId/take", func(c *fiber.Ctx) error {
		return takeReport(c, reports)
	})
	api.Post("/reports/:reportId/channel/open", func(c *fiber.Ctx) error {
		return openReportChannel(c, reports)
	})
	api.Post("/reports/:reportId/channel/close", func(c *fiber.Ctx) error {
		return closeReportChannel(c, reports)
	})
	api.Post("/reports/:reportId/verdict", func(c *fiber.Ctx) error {
		return giveVerdict(c, reports)
	})

	return app
}

// respondError maps the moderation error taxonomy onto HTTP statuses
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, types.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, types.ErrHierarchy):
		status = fiber.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, types.ErrState):
		status = fiber.StatusConflict
	case errors.Is(err, types.ErrNotConfigured):
		status = fiber.StatusPreconditionFailed
	case errors.Is(err, types.ErrInvalidDestination):
		status = fiber.StatusUnprocessableEntity
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

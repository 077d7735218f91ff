package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wardenkit/warden/lib/moderation"
	"github.com/wardenkit/warden/lib/types"
)

// getCases returns a subject's case history newest first. Supports the
// optional type and limit query parameters.
func getCases(c *fiber.Ctx, service *moderation.Service) error {
	filter := &types.CaseFilter{
		Type:  types.ActionType(c.Query("type")),
		Limit: c.QueryInt("limit"),
	}
	if filter.Type != "" && !types.ValidActionType(filter.Type) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown action type"})
	}

	cases, err := service.QueryCases(c.Params("communityId"), c.Params("userId"), filter)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"cases": cases})
}

// getCaseStats returns the aggregate case view for a subject
func getCaseStats(c *fiber.Ctx, service *moderation.Service) error {
	stats, err := service.AggregateStats(c.Params("communityId"), c.Params("userId"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(stats)
}

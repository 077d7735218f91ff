package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wardenkit/warden/lib/workflow/report"
)

// submitReport files a report against a member
func submitReport(c *fiber.Ctx, reports *report.Workflow) error {
	var req struct {
		CommunityID    string   `json:"community_id"`
		ReporterID     string   `json:"reporter_id"`
		ReportedUserID string   `json:"reported_user_id"`
		Reason         string   `json:"reason"`
		Evidence       []string `json:"evidence"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	submitted, err := reports.Submit(req.CommunityID, req.ReporterID, req.ReportedUserID, req.Reason, req.Evidence)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(submitted)
}

// takeReport assigns the report to a staff member
func takeReport(c *fiber.Ctx, reports *report.Workflow) error {
	var req struct {
		StaffID string `json:"staff_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	taken, err := reports.Take(c.Params("reportId"), req.StaffID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(taken)
}

// openReportChannel provisions (or returns) the report's discussion channel
func openReportChannel(c *fiber.Ctx, reports *report.Workflow) error {
	var req struct {
		StaffID string `json:"staff_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	channelRef, err := reports.OpenPrivateChannel(c.Params("reportId"), req.StaffID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"channel_ref": channelRef})
}

// closeReportChannel reclaims the report's discussion channel
func closeReportChannel(c *fiber.Ctx, reports *report.Workflow) error {
	var req struct {
		StaffID string `json:"staff_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := reports.ClosePrivateChannel(c.Params("reportId"), req.StaffID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"closed": true})
}

// giveVerdict closes the report with a terminal staff decision
func giveVerdict(c *fiber.Ctx, reports *report.Workflow) error {
	var req struct {
		StaffID     string `json:"staff_id"`
		VerdictText string `json:"verdict_text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	resolved, err := reports.GiveVerdict(c.Params("reportId"), req.StaffID, req.VerdictText)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(resolved)
}

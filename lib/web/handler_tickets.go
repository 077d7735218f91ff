package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wardenkit/warden/lib/workflow/ticket"
)

// openTicket opens a ticket for the requester. If the requester already
// has an active ticket, that ticket is returned with 200 instead of 201.
func openTicket(c *fiber.Ctx, tickets *ticket.Workflow) error {
	var req struct {
		CommunityID string `json:"community_id"`
		RequesterID string `json:"requester_id"`
		Category    string `json:"category"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	opened, existing, err := tickets.Open(req.CommunityID, req.RequesterID, req.Category)
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	if existing {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(opened)
}

// takeTicket assigns the ticket to a staff member
func takeTicket(c *fiber.Ctx, tickets *ticket.Workflow) error {
	var req struct {
		StaffID string `json:"staff_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	taken, err := tickets.Take(c.Params("ticketId"), req.StaffID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(taken)
}

// closeTicket closes the ticket and schedules channel reclamation
func closeTicket(c *fiber.Ctx, tickets *ticket.Workflow) error {
	var req struct {
		StaffID string `json:"staff_id"`
		Reason  string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	closed, err := tickets.Close(c.Params("ticketId"), req.StaffID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(closed)
}

// ticketTranscript archives the ticket channel's history and reports how
// many chunks were delivered
func ticketTranscript(c *fiber.Ctx, tickets *ticket.Workflow) error {
	chunks, err := tickets.Transcript(c.Params("ticketId"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"chunks_delivered": len(chunks)})
}

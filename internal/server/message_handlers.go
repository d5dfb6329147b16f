package server

import (
	"github.com/gofiber/fiber/v2"

	"whisperbox/internal/models"
)

// SendMessage handles POST /api/messages
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req struct {
		ReceiverID uint   `json:"receiverId"`
		Content    string `json:"content"`
		Anonymous  bool   `json:"anonymous"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c,
			models.NewValidationError("Invalid request body"))
	}
	if req.ReceiverID == 0 {
		return models.RespondWithError(c,
			models.NewValidationError("receiverId is required"))
	}

	// An authenticated sender may still choose to stay anonymous; an
	// unauthenticated one always is.
	var senderID *uint
	if user := currentUser(c); user != nil && !req.Anonymous {
		id := user.ID
		senderID = &id
	}

	message, err := s.messageService.Send(c.UserContext(), senderID, req.ReceiverID, req.Content)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

// ListInbox handles GET /api/messages
func (s *Server) ListInbox(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page, limit := parsePage(c)

	messages, meta, err := s.messageService.ListInbox(c.UserContext(), userID, page, limit)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": meta,
	})
}

// MarkMessageRead handles PATCH /api/messages/:id/read
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	message, err := s.messageService.MarkRead(c.UserContext(), userID, messageID)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

// DeleteMessage handles DELETE /api/messages/:id/delete
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.messageService.SoftDelete(c.UserContext(), userID, messageID); err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Message deleted successfully"})
}

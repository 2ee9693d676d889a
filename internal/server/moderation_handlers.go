package server

import (
	"confessions/internal/models"
	"confessions/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetModerationQueue returns all three partitions and the moderator's likes.
func (s *Server) GetModerationQueue(c *fiber.Ctx) error {
	return c.JSON(s.confessions.Snapshot(c.UserContext()))
}

// ApproveConfession publishes a pending or rejected confession.
func (s *Server) ApproveConfession(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	conf, err := s.confessions.Approve(c.UserContext(), id)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(conf)
}

// RejectConfession rejects a confession with an optional reason.
func (s *Server) RejectConfession(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var in validation.ModerationInput
	if err := bodyOptional(c, &in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if err := s.validator.Moderation(&in); err != nil {
		return respond(c, err)
	}

	conf, err := s.confessions.Reject(c.UserContext(), id, in.Reason)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(conf)
}

// GetModerationLog returns the audit trail of one confession.
func (s *Server) GetModerationLog(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	log, err := s.confessions.ModerationLog(c.UserContext(), id)
	if err != nil {
		return respond(c, err)
	}
	if log == nil {
		log = []models.ModerationEvent{}
	}
	return c.JSON(fiber.Map{"confession_id": id, "moderation_log": log})
}

// SyncConfessions replaces local state with the store's current content.
func (s *Server) SyncConfessions(c *fiber.Ctx) error {
	if err := s.confessions.Refresh(c.UserContext()); err != nil {
		return models.RespondWithError(c, fiber.StatusBadGateway,
			models.NewRemoteWriteError("sync", err))
	}
	view := s.confessions.Snapshot(c.UserContext())
	return c.JSON(fiber.Map{
		"pending":  len(view.Pending),
		"approved": len(view.Approved),
		"rejected": len(view.Rejected),
	})
}

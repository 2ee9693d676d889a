package server

import (
	"confessions/internal/models"
	"confessions/internal/service"
	"confessions/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetComments lists comments on a published confession, oldest first.
func (s *Server) GetComments(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if _, err := s.confessions.GetApproved(c.UserContext(), id); err != nil {
		return respond(c, err)
	}

	page := parsePagination(c, 50)
	comments, err := s.comments.ListComments(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return respond(c, err)
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return c.JSON(comments)
}

// CreateComment adds a comment as the current user.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var in validation.CommentInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if err := s.validator.Comment(&in); err != nil {
		return respond(c, err)
	}

	comment, err := s.comments.CreateComment(c.UserContext(), service.CreateCommentInput{
		ConfessionID: id,
		Content:      in.Content,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

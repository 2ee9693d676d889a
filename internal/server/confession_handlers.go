package server

import (
	"confessions/internal/models"
	"confessions/internal/ranking"
	"confessions/internal/service"
	"confessions/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetFeed returns the ranked published feed.
// Query: mode=recent|trending, interests=a,b, category, affiliation.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	res, err := s.confessions.Feed(c.UserContext(), service.FeedInput{
		Interests:   splitList(c.Query("interests")),
		Mode:        ranking.ParseMode(c.Query("mode")),
		Category:    c.Query("category"),
		Affiliation: c.Query("affiliation"),
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(res)
}

// GetConfession returns one published confession.
func (s *Server) GetConfession(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	conf, err := s.confessions.GetApproved(c.UserContext(), id)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(conf)
}

// SubmitConfession queues a new confession for moderation.
func (s *Server) SubmitConfession(c *fiber.Ctx) error {
	var in validation.SubmissionInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if err := s.validator.Submission(&in); err != nil {
		return respond(c, err)
	}

	conf, err := s.confessions.Submit(c.UserContext(), service.SubmitInput{
		Content:     in.Content,
		Category:    in.Category,
		Affiliation: in.Affiliation,
		MediaURL:    in.MediaURL,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conf)
}

// ToggleLike flips the caller's like on a published confession.
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	res, err := s.confessions.ToggleLike(c.UserContext(), id)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(res)
}

// GetMyLikes lists the ids the caller currently likes.
func (s *Server) GetMyLikes(c *fiber.Ctx) error {
	ids, err := s.confessions.LikedIDs(c.UserContext())
	if err != nil {
		return respond(c, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return c.JSON(fiber.Map{"liked_ids": ids})
}

// GetCatalog lists faculties and their programs.
func (s *Server) GetCatalog(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"faculties": s.catalog.Faculties})
}

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(userID),
	})
}

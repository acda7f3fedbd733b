package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"reverie/internal/models"
	"reverie/internal/services"
)

// ObservationHandler serves the curated observation views
type ObservationHandler struct {
	observations *services.ObservationStore
	categories   *services.CategoryService
	contexts     *services.ContextService
}

// NewObservationHandler creates a new observation handler
func NewObservationHandler(observations *services.ObservationStore, categories *services.CategoryService, contexts *services.ContextService) *ObservationHandler {
	return &ObservationHandler{
		observations: observations,
		categories:   categories,
		contexts:     contexts,
	}
}

func readTimeout(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), 10*time.Second)
}

// ListObservations returns a user's observations, newest first
// GET /api/users/:userID/observations
func (h *ObservationHandler) ListObservations(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	filters := services.ObservationFilters{
		Category:         c.Query("category"),
		IdentityOnly:     c.QueryBool("identity"),
		BreakthroughOnly: c.QueryBool("breakthrough"),
		HasFollowUp:      c.QueryBool("follow_up"),
		MinRelevance:     c.QueryInt("min_relevance"),
		Limit:            c.QueryInt("limit", 50),
	}
	if filters.Category != "" {
		filters.Category = models.NormalizeCategory(filters.Category)
	}
	if filters.Limit > 200 {
		filters.Limit = 200
	}

	ctx, cancel := readTimeout(c)
	defer cancel()

	observations, err := h.observations.List(ctx, userID, filters)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load observations",
		})
	}

	return c.JSON(fiber.Map{
		"observations": observations,
		"count":        len(observations),
	})
}

// GetFollowUps returns recent observations carrying an unasked follow-up
// question
// GET /api/users/:userID/observations/follow-ups
func (h *ObservationHandler) GetFollowUps(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := readTimeout(c)
	defer cancel()

	observations, err := h.observations.FollowUpOpportunities(ctx, userID, c.QueryInt("limit", 5))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load follow-up opportunities",
		})
	}

	return c.JSON(fiber.Map{
		"observations": observations,
		"count":        len(observations),
	})
}

// GetCategories returns per-category aggregates with trends
// GET /api/users/:userID/observations/categories
func (h *ObservationHandler) GetCategories(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := readTimeout(c)
	defer cancel()

	aggregates, err := h.categories.Aggregates(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load category aggregates",
		})
	}

	return c.JSON(fiber.Map{
		"categories": aggregates,
	})
}

// GetAreas returns the areas-to-work-on summary
// GET /api/users/:userID/observations/areas
func (h *ObservationHandler) GetAreas(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := readTimeout(c)
	defer cancel()

	areas, err := h.categories.AreasToWorkOn(ctx, userID, c.QueryInt("limit", 0))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load areas",
		})
	}

	return c.JSON(fiber.Map{
		"areas": areas,
	})
}

// GetContext returns the bounded context package for the next turn
// GET /api/users/:userID/context
func (h *ObservationHandler) GetContext(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := readTimeout(c)
	defer cancel()

	pkg, err := h.contexts.Assemble(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to assemble context",
		})
	}

	return c.JSON(pkg)
}

// GetStats returns the dashboard headline numbers
// GET /api/users/:userID/stats
func (h *ObservationHandler) GetStats(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := readTimeout(c)
	defer cancel()

	stats, err := h.categories.DashboardStats(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	return c.JSON(stats)
}

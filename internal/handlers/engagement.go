package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"reverie/internal/models"
	"reverie/internal/services"
)

// EngagementHandler serves engagement state and achievements
type EngagementHandler struct {
	engagement   *services.EngagementService
	achievements *services.AchievementService
}

// NewEngagementHandler creates a new engagement handler
func NewEngagementHandler(engagement *services.EngagementService, achievements *services.AchievementService) *EngagementHandler {
	return &EngagementHandler{
		engagement:   engagement,
		achievements: achievements,
	}
}

// GetEngagement returns relationship stats and streak status
// GET /api/users/:userID/engagement
func (h *EngagementHandler) GetEngagement(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.engagement.RelationshipStats(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load engagement state",
		})
	}

	streak, err := h.engagement.StreakStatus(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load streak status",
		})
	}

	return c.JSON(fiber.Map{
		"relationship": stats,
		"streak":       streak,
	})
}

// ListAchievements returns the catalog annotated with the user's unlocks
// GET /api/users/:userID/achievements
func (h *EngagementHandler) ListAchievements(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	unlocks, err := h.achievements.List(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load achievements",
		})
	}

	unlockedByKey := make(map[string]models.AchievementUnlock, len(unlocks))
	for _, u := range unlocks {
		unlockedByKey[u.AchievementKey] = u
	}

	type entry struct {
		models.AchievementDef
		Unlocked   bool       `json:"unlocked"`
		UnlockID   int64      `json:"unlock_id,omitempty"`
		UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
		Celebrated bool       `json:"celebrated"`
	}

	catalog := models.AchievementCatalog()
	entries := make([]entry, 0, len(catalog))
	for _, def := range catalog {
		e := entry{AchievementDef: def}
		if u, ok := unlockedByKey[def.Key]; ok {
			e.Unlocked = true
			e.UnlockID = u.ID
			e.UnlockedAt = &u.UnlockedAt
			e.Celebrated = u.Celebrated
		}
		entries = append(entries, e)
	}

	return c.JSON(fiber.Map{
		"achievements": entries,
		"unlocked":     len(unlocks),
	})
}

// EvaluateAchievements re-checks the catalog and unlocks anything earned
// POST /api/users/:userID/achievements/evaluate
func (h *EngagementHandler) EvaluateAchievements(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	unlocks, err := h.achievements.EvaluateAndUnlock(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to evaluate achievements",
		})
	}

	return c.JSON(fiber.Map{
		"newly_unlocked": unlocks,
	})
}

// CelebrateAchievement acknowledges an unlock so the UI stops surfacing it
// POST /api/users/:userID/achievements/:unlockID/celebrate
func (h *EngagementHandler) CelebrateAchievement(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	unlockID, err := c.ParamsInt("unlockID")
	if err != nil || unlockID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid unlock ID",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	found, err := h.achievements.Celebrate(ctx, userID, int64(unlockID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to celebrate achievement",
		})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Achievement unlock not found",
		})
	}

	return c.JSON(fiber.Map{
		"celebrated": true,
	})
}

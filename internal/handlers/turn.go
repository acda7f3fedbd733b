package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"reverie/internal/services"
)

// TurnHandler ingests completed conversation turns
type TurnHandler struct {
	turnService *services.TurnService
}

// NewTurnHandler creates a new turn handler
func NewTurnHandler(turnService *services.TurnService) *TurnHandler {
	return &TurnHandler{turnService: turnService}
}

// ProcessTurn runs the curation pipeline for one completed exchange
// POST /api/turns
func (h *TurnHandler) ProcessTurn(c *fiber.Ctx) error {
	var req struct {
		UserID        string `json:"user_id"`
		UserInput     string `json:"user_input"`
		AgentResponse string `json:"agent_response"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}
	if strings.TrimSpace(req.UserInput) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_input is required",
		})
	}

	// The pipeline includes one external extraction call; give it room
	// beyond the extraction timeout itself.
	ctx, cancel := context.WithTimeout(c.Context(), 60*time.Second)
	defer cancel()

	result, err := h.turnService.ProcessTurn(ctx, req.UserID, req.UserInput, req.AgentResponse)
	if err != nil {
		log.Printf("❌ [TURNS] Pipeline failed for user %s: %v", req.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process turn",
		})
	}

	return c.JSON(result)
}

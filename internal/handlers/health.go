package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"reverie/internal/database"
	"reverie/internal/jobs"
	"reverie/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *database.DB
	redis     *services.RedisService
	scheduler *jobs.JobScheduler
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, redis *services.RedisService, scheduler *jobs.JobScheduler) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, scheduler: scheduler}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "up"
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "down"
		}
	}

	body := fiber.Map{
		"status":    "healthy",
		"redis":     redisStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.scheduler != nil {
		body["jobs"] = h.scheduler.GetStatus()
	}
	return c.JSON(body)
}

package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"reverie/internal/config"
	"reverie/internal/database"
	"reverie/internal/handlers"
	"reverie/internal/jobs"
	"reverie/internal/logging"
	"reverie/internal/middleware"
	"reverie/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Reverie Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabasePath)

	// Initialize SQLite database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Optional Redis layer for unlock events and cross-instance locks
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, continuing without it: %v", err)
			redisService = nil
		}
	} else {
		log.Println("ℹ️  REDIS_URL not set, running without Redis")
	}

	// Prometheus metrics
	services.InitMetrics()

	// Generation provider for observation extraction
	var provider *config.GenerationProvider
	provider, err = config.LoadGeneration(cfg.GenerationConfigPath)
	if err != nil {
		log.Printf("⚠️  No generation provider configured, extraction disabled: %v", err)
	}

	// Services
	extractionService := services.NewExtractionService(provider, cfg.ExtractionTimeout)
	observationStore := services.NewObservationStore(db)
	interactionStore := services.NewInteractionStore(db)
	engagementService := services.NewEngagementService(db, cfg.Location())
	categoryService := services.NewCategoryService(observationStore, engagementService, interactionStore)
	contextService := services.NewContextService(observationStore, interactionStore, engagementService)
	achievementService := services.NewAchievementService(db, observationStore, engagementService, redisService)
	turnService := services.NewTurnService(
		interactionStore, observationStore, extractionService,
		engagementService, achievementService, categoryService, redisService,
	)

	// Hot-reload the generation config on changes
	if provider != nil && cfg.WatchGenerationConfig {
		go startGenerationFileWatcher(cfg.GenerationConfigPath, extractionService)
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Reverie",
		ErrorHandler: errorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("reverie")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Rate limiting
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Read=%d/min, Turns=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.ReadMax,
		rateLimitConfig.TurnMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: allowedOrigins != "*",
	}))

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Background jobs
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("engagement_snapshot", jobs.NewEngagementSnapshotJob(engagementService))
	jobScheduler.Register("interaction_retention", jobs.NewRetentionCleanupJob(db))
	if err := jobScheduler.Start(); err != nil {
		log.Printf("⚠️ Failed to start job scheduler: %v", err)
	}
	log.Printf("🕐 Background jobs: engagement snapshot (hourly), interaction retention (daily 3 AM)")

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, redisService, jobScheduler)
	turnHandler := handlers.NewTurnHandler(turnService)
	observationHandler := handlers.NewObservationHandler(observationStore, categoryService, contextService)
	engagementHandler := handlers.NewEngagementHandler(engagementService, achievementService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/turns", middleware.TurnRateLimiter(rateLimitConfig), turnHandler.ProcessTurn)

	users := api.Group("/users/:userID", middleware.ReadRateLimiter(rateLimitConfig))
	users.Get("/context", observationHandler.GetContext)
	users.Get("/observations", observationHandler.ListObservations)
	users.Get("/observations/follow-ups", observationHandler.GetFollowUps)
	users.Get("/observations/categories", observationHandler.GetCategories)
	users.Get("/observations/areas", observationHandler.GetAreas)
	users.Get("/stats", observationHandler.GetStats)
	users.Get("/engagement", engagementHandler.GetEngagement)
	users.Get("/achievements", engagementHandler.ListAchievements)
	users.Post("/achievements/evaluate", engagementHandler.EvaluateAchievements)
	users.Post("/achievements/:unlockID/celebrate", engagementHandler.CelebrateAchievement)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		jobScheduler.Stop()

		if redisService != nil {
			if err := redisService.Close(); err != nil {
				log.Printf("⚠️ Error closing Redis: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// startGenerationFileWatcher hot-reloads the generation provider config when
// the file changes on disk.
func startGenerationFileWatcher(filePath string, extractionService *services.ExtractionService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching
	// the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	// Debounce timer to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}

				debounceTimer = time.AfterFunc(debounceDuration, func() {
					log.Printf("🔄 Detected changes in %s, reloading generation provider...", filePath)

					provider, err := config.LoadGeneration(filePath)
					if err != nil {
						log.Printf("❌ Failed to reload generation config: %v", err)
						return
					}
					extractionService.SetProvider(provider)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}

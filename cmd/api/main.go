package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"canvas-grade-sync/internal/api"
	"canvas-grade-sync/internal/canvas"
	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/internal/queue"
	syncpkg "canvas-grade-sync/internal/sync"
	"canvas-grade-sync/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize repository
	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Initialize sync engine. API-triggered syncs run in-process so the
	// registry can arbitrate duplicates and serve cancellation.
	registry := syncpkg.NewActiveSyncRegistry()
	checkpoints := syncpkg.NewRedisCheckpointStore(redisClient.Client(), cfg.Sync.CheckpointTTL)
	clients := func(owner *model.Owner) syncpkg.CourseAPI {
		return canvas.NewClient(cfg.Canvas, owner.CanvasBaseURL, owner.CanvasToken)
	}

	orchestrator, err := syncpkg.NewOrchestrator(cfg, repo, checkpoints, registry, clients, redisClient.Client())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync orchestrator")
	}

	runner := worker.NewGoroutineRunner(orchestrator, registry)

	// Initialize API handler
	handler := api.NewHandler(repo, runner, registry, redisClient.Client(), cfg)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	// Setup routes
	api.SetupRoutes(router, handler)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown server
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

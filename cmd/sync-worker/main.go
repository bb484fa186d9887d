package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"canvas-grade-sync/internal/canvas"
	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/internal/queue"
	syncpkg "canvas-grade-sync/internal/sync"
	"canvas-grade-sync/internal/worker"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting sync worker")

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

	// Initialize sync engine
	registry := syncpkg.NewActiveSyncRegistry()
	checkpoints := syncpkg.NewRedisCheckpointStore(redisClient.Client(), cfg.Sync.CheckpointTTL)
	clients := func(owner *model.Owner) syncpkg.CourseAPI {
		return canvas.NewClient(cfg.Canvas, owner.CanvasBaseURL, owner.CanvasToken)
	}

	orchestrator, err := syncpkg.NewOrchestrator(cfg, repo, checkpoints, registry, clients, redisClient.Client())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync orchestrator")
	}

	// Create sync worker
	syncWorker := worker.NewSyncWorker(cfg, orchestrator, redisClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := syncWorker.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("Sync worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync worker...")

	// Cancel context to stop worker
	cancel()
	syncWorker.Stop()

	log.Info().Msg("Sync worker exited")
}

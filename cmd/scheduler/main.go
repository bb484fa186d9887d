package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/internal/queue"

	"github.com/robfig/cron/v3"
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

	log.Info().Str("version", cfg.App.Version).
		Str("cron_spec", cfg.Scheduler.CronSpec).
		Msg("Starting scheduler")

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

	producer := queue.NewProducer(redisClient, cfg)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Scheduler.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		enqueueScheduledSyncs(ctx, cfg, repo, producer)
		pruneProgressRecords(ctx, cfg, repo)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid cron spec")
	}

	scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down scheduler...")
	<-scheduler.Stop().Done()
	log.Info().Msg("Scheduler exited")
}

// enqueueScheduledSyncs queues one all-scope sync per owner that has
// Canvas credentials configured.
func enqueueScheduledSyncs(ctx context.Context, cfg *config.Config, repo db.Repository, producer *queue.Producer) {
	log := logger.Get()

	owners, err := repo.ListOwnersWithCredentials(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list owners for scheduled sync")
		return
	}

	enqueued := 0
	for _, owner := range owners {
		job := model.SyncJob{
			OwnerID:     owner.ID,
			Scope:       model.ScopeAll,
			Incremental: cfg.Scheduler.Incremental,
		}
		if err := producer.EnqueueSyncJob(ctx, job); err != nil {
			log.Error().Err(err).Int64("owner_id", owner.ID).Msg("Failed to enqueue scheduled sync")
			continue
		}
		enqueued++
	}

	log.Info().Int("owners", len(owners)).Int("enqueued", enqueued).Msg("Scheduled syncs enqueued")
}

// pruneProgressRecords deletes completed progress rows older than the
// configured retention.
func pruneProgressRecords(ctx context.Context, cfg *config.Config, repo db.Repository) {
	log := logger.Get()

	cutoff := time.Now().UTC().Add(-cfg.Sync.ProgressRetention)
	deleted, err := repo.DeleteSyncProgressBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune sync progress records")
		return
	}

	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Pruned sync progress records")
	}
}

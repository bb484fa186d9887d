package worker

import (
	"context"
	"encoding/json"

	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/internal/queue"
	"canvas-grade-sync/internal/sync"

	"github.com/rs/zerolog"
)

// SyncWorker consumes sync jobs from the Redis queue and runs them
// through the orchestrator on a bounded worker pool.
type SyncWorker struct {
	cfg          *config.Config
	orchestrator *sync.Orchestrator
	consumer     *queue.Consumer
	workerPool   *WorkerPool
	log          zerolog.Logger
}

func NewSyncWorker(
	cfg *config.Config,
	orchestrator *sync.Orchestrator,
	redisClient *queue.RedisClient,
) *SyncWorker {
	return &SyncWorker{
		cfg:          cfg,
		orchestrator: orchestrator,
		consumer:     queue.NewConsumer(redisClient, cfg),
		workerPool:   NewWorkerPool(cfg.Workers.Sync.Count),
		log:          logger.Get(),
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting sync worker")

	// Start worker pool
	w.workerPool.Start(ctx)

	// Start consuming messages
	return w.consumer.ConsumeSyncQueue(ctx, w.handleMessage)
}

func (w *SyncWorker) Stop() {
	w.log.Info().Msg("Stopping sync worker")
	w.workerPool.Stop()
}

func (w *SyncWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal sync job")
		return err
	}

	w.log.Info().
		Int64("owner_id", job.OwnerID).
		Str("scope", string(job.Scope)).
		Str("attempt_id", job.AttemptID).
		Msg("Processing sync job")

	// Submit job to worker pool
	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		_, err := w.orchestrator.Run(ctx, job, nil)
		return err
	})
}

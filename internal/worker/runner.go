package worker

import (
	"context"

	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/internal/queue"
	"canvas-grade-sync/internal/sync"
	"canvas-grade-sync/pkg/errors"

	"github.com/google/uuid"
)

// TaskRunner dispatches a sync job for asynchronous execution and
// returns the attempt id the caller can poll progress with.
type TaskRunner interface {
	Dispatch(ctx context.Context, job model.SyncJob) (string, error)
}

// QueueRunner hands jobs to the Redis sync queue for a separate worker
// process to pick up.
type QueueRunner struct {
	producer *queue.Producer
	registry *sync.ActiveSyncRegistry
}

func NewQueueRunner(producer *queue.Producer, registry *sync.ActiveSyncRegistry) *QueueRunner {
	return &QueueRunner{
		producer: producer,
		registry: registry,
	}
}

func (r *QueueRunner) Dispatch(ctx context.Context, job model.SyncJob) (string, error) {
	if r.registry != nil && r.registry.Running(job.OwnerID, job.Scope) {
		return "", errors.ErrSyncInProgress
	}

	if job.AttemptID == "" {
		job.AttemptID = uuid.NewString()
	}
	if err := r.producer.EnqueueSyncJob(ctx, job); err != nil {
		return "", err
	}
	return job.AttemptID, nil
}

// GoroutineRunner executes the orchestrator in-process. Used when no
// queue is configured and in tests.
type GoroutineRunner struct {
	orchestrator *sync.Orchestrator
	registry     *sync.ActiveSyncRegistry
}

func NewGoroutineRunner(orchestrator *sync.Orchestrator, registry *sync.ActiveSyncRegistry) *GoroutineRunner {
	return &GoroutineRunner{
		orchestrator: orchestrator,
		registry:     registry,
	}
}

func (r *GoroutineRunner) Dispatch(_ context.Context, job model.SyncJob) (string, error) {
	// Advisory pre-check so duplicates fail fast with a 409 instead of
	// in the background. The registry inside Run still arbitrates races.
	if r.registry.Running(job.OwnerID, job.Scope) {
		return "", errors.ErrSyncInProgress
	}

	if job.AttemptID == "" {
		job.AttemptID = uuid.NewString()
	}

	go func() {
		// The request context ends when the response is written; the
		// sync outlives it.
		if _, err := r.orchestrator.Run(context.Background(), job, nil); err != nil {
			log := logger.Get()
			log.Error().Err(err).
				Int64("owner_id", job.OwnerID).
				Str("attempt_id", job.AttemptID).
				Msg("Background sync failed")
		}
	}()

	return job.AttemptID, nil
}

package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// ProgressFunc receives progress updates during a sync attempt. It is
// supplied by the caller and may fail; the reporter never lets a
// callback error or panic abort the sync.
type ProgressFunc func(model.ProgressUpdate)

func progressKey(ownerID int64) string {
	return fmt.Sprintf("sync:progress:%d", ownerID)
}

func eventsChannel(ownerID int64) string {
	return fmt.Sprintf("sync:events:%d", ownerID)
}

// Reporter fans one attempt's progress out to three sinks: the
// persisted sync_progress row, a Redis snapshot + pub/sub channel for
// polling and push clients, and the optional caller callback. Every
// sink failure is logged and swallowed.
type Reporter struct {
	repo     db.Repository
	redis    *redis.Client
	ttl      time.Duration
	callback ProgressFunc
	job      model.SyncJob
	started  time.Time
	log      zerolog.Logger
}

func NewReporter(repo db.Repository, redisClient *redis.Client, ttl time.Duration, job model.SyncJob, callback ProgressFunc) *Reporter {
	return &Reporter{
		repo:     repo,
		redis:    redisClient,
		ttl:      ttl,
		callback: callback,
		job:      job,
		started:  time.Now(),
		log: logger.Get().With().
			Int64("owner_id", job.OwnerID).
			Str("scope", string(job.Scope)).
			Str("attempt_id", job.AttemptID).
			Logger(),
	}
}

// Start creates the persisted progress record and emits the initial
// update.
func (r *Reporter) Start(ctx context.Context) {
	record := &model.SyncProgress{
		OwnerID:          r.job.OwnerID,
		AttemptID:        r.job.AttemptID,
		Scope:            r.job.Scope,
		TargetID:         r.job.TargetID,
		CurrentOperation: "Initializing Canvas sync",
	}
	if _, err := r.repo.CreateSyncProgress(ctx, record); err != nil {
		r.log.Error().Err(err).Msg("Failed to create sync progress record")
	}

	r.Update(ctx, 0, 0, "Initializing Canvas sync", "", nil)
}

// Update emits one progress update to all sinks.
func (r *Reporter) Update(ctx context.Context, completed, total int, operation, item string, errs []string) {
	r.emit(ctx, r.build(completed, total, operation, item, errs, false))
}

// Complete marks the attempt finished. The operation string carries the
// outcome ("Canvas sync completed", "failed: ...", "cancelled by user");
// percent is the final value to record (100 on success, the last real
// percentage on failure or cancel).
func (r *Reporter) Complete(ctx context.Context, percent, completed, total int, operation string, errs []string) {
	update := r.build(completed, total, operation, "", errs, true)
	update.ProgressPercent = percent
	r.emit(ctx, update)
}

func (r *Reporter) percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return completed * 100 / total
}

func (r *Reporter) build(completed, total int, operation, item string, errs []string, complete bool) model.ProgressUpdate {
	elapsed := time.Since(r.started).Seconds()
	update := model.ProgressUpdate{
		AttemptID:        r.job.AttemptID,
		OwnerID:          r.job.OwnerID,
		Scope:            r.job.Scope,
		TargetID:         r.job.TargetID,
		ProgressPercent:  r.percent(completed, total),
		CompletedItems:   completed,
		TotalItems:       total,
		CurrentOperation: operation,
		CurrentItem:      item,
		ElapsedSeconds:   elapsed,
		Errors:           errs,
		IsComplete:       complete,
	}

	// Estimate remaining time once past 5% so early noise is ignored.
	if update.ProgressPercent > 5 && !complete {
		estimatedTotal := elapsed / (float64(update.ProgressPercent) / 100)
		remaining := estimatedTotal - elapsed
		if remaining < 0 {
			remaining = 0
		}
		update.EstimatedRemaining = &remaining
	}

	return update
}

func (r *Reporter) emit(ctx context.Context, update model.ProgressUpdate) {
	record := &model.SyncProgress{
		OwnerID:          update.OwnerID,
		AttemptID:        update.AttemptID,
		Scope:            update.Scope,
		TargetID:         update.TargetID,
		ProgressPercent:  update.ProgressPercent,
		CompletedItems:   update.CompletedItems,
		TotalItems:       update.TotalItems,
		CurrentOperation: update.CurrentOperation,
		CurrentItem:      update.CurrentItem,
		ElapsedSeconds:   update.ElapsedSeconds,
		IsComplete:       update.IsComplete,
	}
	record.SetErrors(update.Errors)

	if err := r.repo.UpdateSyncProgress(ctx, record); err != nil {
		r.log.Error().Err(err).Msg("Failed to persist sync progress")
	}

	if r.redis != nil {
		if data, err := json.Marshal(update); err == nil {
			if err := r.redis.Set(ctx, progressKey(update.OwnerID), data, r.ttl).Err(); err != nil {
				r.log.Warn().Err(err).Msg("Failed to cache progress snapshot")
			}
			if err := r.redis.Publish(ctx, eventsChannel(update.OwnerID), data).Err(); err != nil {
				r.log.Warn().Err(err).Msg("Failed to publish progress event")
			}
		}
	}

	if r.callback != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error().Interface("panic", rec).Msg("Progress callback panicked")
				}
			}()
			r.callback(update)
		}()
	}

	r.log.Debug().Int("percent", update.ProgressPercent).
		Str("operation", update.CurrentOperation).Str("item", update.CurrentItem).
		Msg("Sync progress")
}

// LatestProgress reads the cached snapshot for polling clients, falling
// back to the persisted record when the cache is cold.
func LatestProgress(ctx context.Context, repo db.Repository, redisClient *redis.Client, ownerID int64) (*model.ProgressUpdate, error) {
	if redisClient != nil {
		data, err := redisClient.Get(ctx, progressKey(ownerID)).Bytes()
		if err == nil {
			var update model.ProgressUpdate
			if err := json.Unmarshal(data, &update); err == nil {
				return &update, nil
			}
		} else if err != redis.Nil {
			log := logger.Get()
			log.Warn().Err(err).Int64("owner_id", ownerID).
				Msg("Failed to read progress snapshot")
		}
	}

	record, err := repo.GetLatestSyncProgress(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	return &model.ProgressUpdate{
		AttemptID:        record.AttemptID,
		OwnerID:          record.OwnerID,
		Scope:            record.Scope,
		TargetID:         record.TargetID,
		ProgressPercent:  record.ProgressPercent,
		CompletedItems:   record.CompletedItems,
		TotalItems:       record.TotalItems,
		CurrentOperation: record.CurrentOperation,
		CurrentItem:      record.CurrentItem,
		ElapsedSeconds:   record.ElapsedSeconds,
		Errors:           record.ErrorList(),
		IsComplete:       record.IsComplete,
	}, nil
}

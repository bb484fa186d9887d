package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"
	syncpkg "canvas-grade-sync/internal/sync"
	"canvas-grade-sync/internal/worker"
	"canvas-grade-sync/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type Handler struct {
	repo     db.Repository
	runner   worker.TaskRunner
	registry *syncpkg.ActiveSyncRegistry
	redis    *redis.Client
	cfg      *config.Config
	log      zerolog.Logger
}

func NewHandler(
	repo db.Repository,
	runner worker.TaskRunner,
	registry *syncpkg.ActiveSyncRegistry,
	redisClient *redis.Client,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:     repo,
		runner:   runner,
		registry: registry,
		redis:    redisClient,
		cfg:      cfg,
		log:      logger.Get(),
	}
}

// ownerID resolves the acting owner from the X-Owner-ID header.
// Authentication is handled upstream; the header is trusted here.
func (h *Handler) ownerID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-Owner-ID")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing X-Owner-ID header"})
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid X-Owner-ID header"})
		return 0, false
	}
	return id, true
}

func (h *Handler) dispatch(c *gin.Context, job model.SyncJob) {
	attemptID, err := h.runner.Dispatch(c.Request.Context(), job)
	if err != nil {
		if stderrors.Is(err, errors.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A sync is already running for this scope"})
			return
		}
		h.log.Error().Err(err).Int64("owner_id", job.OwnerID).
			Str("scope", string(job.Scope)).Msg("Failed to dispatch sync job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sync"})
		return
	}

	h.log.Info().
		Int64("owner_id", job.OwnerID).
		Str("scope", string(job.Scope)).
		Str("attempt_id", attemptID).
		Msg("Sync job dispatched")

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Sync started",
		"attempt_id": attemptID,
		"scope":      job.Scope,
	})
}

func (h *Handler) SyncAll(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	var req model.SyncAllRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	incremental := true
	if req.Incremental != nil {
		incremental = *req.Incremental
	}

	owner, err := h.repo.GetOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.log.Error().Err(err).Int64("owner_id", ownerID).Msg("Owner not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Owner not found"})
		return
	}
	if !owner.HasCredentials() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Canvas credentials are not configured"})
		return
	}

	h.dispatch(c, model.SyncJob{
		OwnerID:     ownerID,
		Scope:       model.ScopeAll,
		Incremental: incremental,
	})
}

func (h *Handler) SyncTerm(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	termID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid term ID"})
		return
	}

	var req model.SyncTermRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.repo.GetTerm(c.Request.Context(), termID, ownerID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Term not found"})
		return
	}

	h.dispatch(c, model.SyncJob{
		OwnerID:   ownerID,
		Scope:     model.ScopeTerm,
		TargetID:  termID,
		ForceFull: req.ForceFull,
	})
}

func (h *Handler) SyncCourse(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	courseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}

	course, err := h.repo.GetCourse(c.Request.Context(), courseID, ownerID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}
	if course.CanvasCourseID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Course is not linked to Canvas"})
		return
	}

	h.dispatch(c, model.SyncJob{
		OwnerID:  ownerID,
		Scope:    model.ScopeCourse,
		TargetID: courseID,
	})
}

func (h *Handler) SyncProgress(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	update, err := syncpkg.LatestProgress(c.Request.Context(), h.repo, h.redis, ownerID)
	if err != nil {
		h.log.Error().Err(err).Int64("owner_id", ownerID).Msg("Failed to read sync progress")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if update == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sync attempts found"})
		return
	}

	c.JSON(http.StatusOK, update)
}

func (h *Handler) CancelSync(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	if !h.registry.Cancel(ownerID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No running sync to cancel"})
		return
	}

	h.log.Info().Int64("owner_id", ownerID).Msg("Sync cancellation requested")
	c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested"})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

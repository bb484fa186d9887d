package sync

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/metrics"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/pkg/errors"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CourseAPI is the remote surface the orchestrator needs. Satisfied by
// *canvas.Client; faked in tests.
type CourseAPI interface {
	TestConnection(ctx context.Context) (*model.CanvasUser, error)
	GetCourses(ctx context.Context, since *time.Time) ([]model.CanvasCourse, error)
	GetAssignmentGroups(ctx context.Context, courseID string) ([]model.CanvasAssignmentGroup, error)
	GetAssignments(ctx context.Context, courseID string) ([]model.CanvasAssignment, error)
	GetSubmissions(ctx context.Context, courseID string) ([]model.CanvasSubmission, error)
	GetSubmission(ctx context.Context, courseID, assignmentID string) (*model.CanvasSubmission, error)
}

// ClientFactory builds a CourseAPI from one owner's credentials.
type ClientFactory func(owner *model.Owner) CourseAPI

// Attempt states. CONNECTING always precedes FETCHING: credentials are
// verified against the remote before anything is fetched or written.
const (
	stateInit        = "INIT"
	stateConnecting  = "CONNECTING"
	stateFetching    = "FETCHING"
	stateReconciling = "RECONCILING"
	stateFinalizing  = "FINALIZING"
	stateCompleted   = "COMPLETED"
	stateFailed      = "FAILED"
	stateCancelled   = "CANCELLED"
)

// Orchestrator drives one sync attempt end to end for one of the three
// scopes, reporting progress and checkpointing after each chunk.
type Orchestrator struct {
	cfg         *config.Config
	repo        db.Repository
	checkpoints CheckpointStore
	registry    *ActiveSyncRegistry
	clients     ClientFactory
	redis       *redis.Client
	loc         *time.Location
	log         zerolog.Logger
}

func NewOrchestrator(
	cfg *config.Config,
	repo db.Repository,
	checkpoints CheckpointStore,
	registry *ActiveSyncRegistry,
	clients ClientFactory,
	redisClient *redis.Client,
) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cfg.Sync.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid local timezone %q: %w", cfg.Sync.LocalTimezone, err)
	}

	return &Orchestrator{
		cfg:         cfg,
		repo:        repo,
		checkpoints: checkpoints,
		registry:    registry,
		clients:     clients,
		redis:       redisClient,
		loc:         loc,
		log:         logger.Get(),
	}, nil
}

// Run executes one sync attempt. A second Run for the same
// (owner, scope) while one is in flight returns ErrSyncInProgress.
func (o *Orchestrator) Run(ctx context.Context, job model.SyncJob, callback ProgressFunc) (*model.SyncResult, error) {
	if job.AttemptID == "" {
		job.AttemptID = uuid.NewString()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.registry.Begin(job.OwnerID, job.Scope, cancel); err != nil {
		return nil, err
	}
	defer o.registry.End(job.OwnerID, job.Scope)

	log := o.log.With().
		Int64("owner_id", job.OwnerID).
		Str("scope", string(job.Scope)).
		Str("attempt_id", job.AttemptID).
		Logger()
	log.Info().Str("state", stateInit).Msg("Starting Canvas sync")

	reporter := NewReporter(o.repo, o.redis, o.cfg.Sync.ProgressTTL, job, callback)
	reporter.Start(runCtx)

	owner, err := o.repo.GetOwner(runCtx, job.OwnerID)
	if err != nil {
		return nil, o.finishFailed(reporter, job, log, err)
	}
	if !owner.HasCredentials() {
		return nil, o.finishFailed(reporter, job, log, errors.ErrCredentialsMissing)
	}

	client := o.clients(owner)

	log.Info().Str("state", stateConnecting).Msg("Testing Canvas connection")
	reporter.Update(runCtx, 0, 0, "Testing Canvas connection", "", nil)
	if _, err := client.TestConnection(runCtx); err != nil {
		return nil, o.finishFailed(reporter, job, log, err)
	}

	var result *model.SyncResult
	switch job.Scope {
	case model.ScopeTerm:
		result, err = o.syncTerm(runCtx, client, owner, job, reporter, log)
	case model.ScopeCourse:
		result, err = o.syncCourse(runCtx, client, owner, job, reporter, log)
	default:
		result, err = o.syncAll(runCtx, client, owner, job, reporter, log)
	}

	if err != nil {
		if runCtx.Err() != nil || stderrors.Is(err, errors.ErrSyncCancelled) {
			return nil, o.finishCancelled(reporter, job, log)
		}
		return nil, o.finishFailed(reporter, job, log, err)
	}

	log.Info().Str("state", stateFinalizing).Msg("Finalizing sync")
	if err := o.checkpoints.Clear(context.Background(), job.OwnerID, job.Scope); err != nil {
		log.Warn().Err(err).Msg("Failed to clear checkpoint after success")
	}

	reporter.Complete(context.Background(), 100, result.CoursesProcessed, result.CoursesProcessed,
		"Canvas sync completed", result.Errors)
	metrics.ObserveSyncAttempt(string(job.Scope), "completed")
	log.Info().Str("state", stateCompleted).
		Int("courses", result.CoursesProcessed).
		Int("assignments", result.AssignmentsProcessed).
		Int("errors", len(result.Errors)).
		Msg("Canvas sync completed")
	return result, nil
}

func (o *Orchestrator) finishFailed(reporter *Reporter, job model.SyncJob, log zerolog.Logger, err error) error {
	// Checkpoint is retained so the next attempt can resume.
	reporter.Complete(context.Background(), 0, 0, 0,
		"Canvas sync failed: "+err.Error(), []string{err.Error()})
	metrics.ObserveSyncAttempt(string(job.Scope), "failed")
	log.Error().Err(err).Str("state", stateFailed).Msg("Canvas sync failed")
	return err
}

func (o *Orchestrator) finishCancelled(reporter *Reporter, job model.SyncJob, log zerolog.Logger) error {
	// A cancelled run must not silently resume later.
	if err := o.checkpoints.Clear(context.Background(), job.OwnerID, job.Scope); err != nil {
		log.Warn().Err(err).Msg("Failed to clear checkpoint after cancel")
	}

	reporter.Complete(context.Background(), 0, 0, 0, "cancelled by user", nil)
	metrics.ObserveSyncAttempt(string(job.Scope), "cancelled")
	log.Info().Str("state", stateCancelled).Msg("Canvas sync cancelled")
	return errors.ErrSyncCancelled
}

func (o *Orchestrator) syncAll(
	ctx context.Context,
	client CourseAPI,
	owner *model.Owner,
	job model.SyncJob,
	reporter *Reporter,
	log zerolog.Logger,
) (*model.SyncResult, error) {
	var since *time.Time
	if job.Incremental && owner.LastFullSync != nil {
		since = owner.LastFullSync
		log.Info().Time("since", *since).Msg("Using incremental sync")
	}

	log.Info().Str("state", stateFetching).Msg("Fetching courses from Canvas")
	reporter.Update(ctx, 0, 0, "Fetching courses from Canvas", "", nil)
	courses, err := client.GetCourses(ctx, since)
	if err != nil {
		// Failing the initial course list aborts the whole attempt.
		return nil, err
	}

	resolver := NewTermResolver(o.repo)
	termFor := func(course model.CanvasCourse) (int64, error) {
		label := ""
		if course.Term != nil {
			label = course.Term.Name
		}
		season, year := ParseTermLabel(label)
		return resolver.ResolveOrCreate(ctx, owner.ID, season, year)
	}

	result, err := o.processCourses(ctx, client, job, reporter, log, courses, termFor)
	if err != nil {
		return nil, err
	}

	if err := o.repo.SetOwnerLastFullSync(ctx, owner.ID, time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("Failed to update last full sync watermark")
	}

	return result, nil
}

func (o *Orchestrator) syncTerm(
	ctx context.Context,
	client CourseAPI,
	owner *model.Owner,
	job model.SyncJob,
	reporter *Reporter,
	log zerolog.Logger,
) (*model.SyncResult, error) {
	term, err := o.repo.GetTerm(ctx, job.TargetID, owner.ID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTermNotFound
		}
		return nil, err
	}

	log.Info().Str("state", stateFetching).Str("term", term.Nickname).
		Msg("Fetching courses for term")
	reporter.Update(ctx, 0, 0, "Fetching courses for term: "+term.Nickname, "", nil)

	// The remote term metadata is not trusted for filtering; every
	// fetched course is attached to the requested local term.
	courses, err := client.GetCourses(ctx, nil)
	if err != nil {
		return nil, err
	}

	if job.ForceFull {
		if err := o.purgeTermCourses(ctx, term.ID, log); err != nil {
			return nil, err
		}
	}

	termFor := func(model.CanvasCourse) (int64, error) {
		return term.ID, nil
	}

	return o.processCourses(ctx, client, job, reporter, log, courses, termFor)
}

// purgeTermCourses deletes assignments and categories for every course
// already in the term. Destructive on purpose: it is how manually
// recategorized data gets refreshed, and it only runs when the caller
// explicitly asked for a force-full term sync.
func (o *Orchestrator) purgeTermCourses(ctx context.Context, termID int64, log zerolog.Logger) error {
	courses, err := o.repo.ListCoursesByTerm(ctx, termID)
	if err != nil {
		return err
	}

	log.Warn().Int64("term_id", termID).Int("courses", len(courses)).
		Msg("Force full sync: purging existing assignments and categories")

	for _, course := range courses {
		if err := o.repo.DeleteAssignmentsByCourse(ctx, course.ID); err != nil {
			return err
		}
		if err := o.repo.DeleteCategoriesByCourse(ctx, course.ID); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) syncCourse(
	ctx context.Context,
	client CourseAPI,
	owner *model.Owner,
	job model.SyncJob,
	reporter *Reporter,
	log zerolog.Logger,
) (*model.SyncResult, error) {
	course, err := o.repo.GetCourse(ctx, job.TargetID, owner.ID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrCourseNotFound
		}
		return nil, err
	}
	if course.CanvasCourseID == nil {
		return nil, errors.ErrCourseNotLinked
	}

	log.Info().Str("state", stateFetching).Str("course", course.Name).Msg("Syncing single course")
	reporter.Update(ctx, 0, 1, "Syncing course", course.Name, nil)

	reconciler := NewReconciler(o.repo, o.loc)
	childResult, err := o.syncCourseChildren(ctx, client, reconciler, course, log)
	if err != nil {
		// A single-course sync has no other units to fall back on.
		return nil, err
	}

	if err := o.repo.TouchCourseSynced(ctx, course.ID, time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("Failed to update course sync timestamp")
	}

	result := &childResult
	result.CoursesProcessed = 1
	result.CoursesUpdated = 1
	if result.Errors == nil {
		result.Errors = []string{}
	}

	reporter.Update(ctx, 1, 1, "Course sync completed", course.Name, result.Errors)
	return result, nil
}

// processCourses reconciles a fetched course list in chunks, seeding
// counts and the processed-id set from any checkpoint so resumed
// attempts skip completed work. A per-course failure is recorded and
// processing continues; cancellation stops between units.
func (o *Orchestrator) processCourses(
	ctx context.Context,
	client CourseAPI,
	job model.SyncJob,
	reporter *Reporter,
	log zerolog.Logger,
	courses []model.CanvasCourse,
	termFor func(model.CanvasCourse) (int64, error),
) (*model.SyncResult, error) {
	result := &model.SyncResult{Errors: []string{}}
	processed := make(map[string]bool)

	checkpoint, err := o.checkpoints.Get(ctx, job.OwnerID, job.Scope)
	if err != nil {
		log.Warn().Err(err).Msg("Checkpoint read failed, starting without resume")
	} else if checkpoint != nil {
		*result = checkpoint.Counts
		if result.Errors == nil {
			result.Errors = []string{}
		}
		processed = checkpoint.ProcessedSet()
		log.Info().Int("skipping", len(processed)).Msg("Resuming from checkpoint")
		reporter.Update(ctx, result.CoursesProcessed, len(courses),
			"Resuming from previous checkpoint", "", result.Errors)
	}

	log.Info().Str("state", stateReconciling).Int("courses", len(courses)).
		Int("chunk_size", o.cfg.Sync.ChunkSize).Msg("Reconciling courses")

	reconciler := NewReconciler(o.repo, o.loc)
	total := len(courses)
	chunkSize := o.cfg.Sync.ChunkSize

	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)

		for _, remote := range courses[start:end] {
			if ctx.Err() != nil {
				return nil, errors.ErrSyncCancelled
			}
			if processed[remote.ID] {
				continue
			}

			reporter.Update(ctx, result.CoursesProcessed, total, "Syncing course", remote.Name, result.Errors)

			courseResult, err := o.syncOneCourse(ctx, client, reconciler, remote, termFor, log)
			if err != nil {
				if ctx.Err() != nil {
					return nil, errors.ErrSyncCancelled
				}
				msg := fmt.Sprintf("failed to sync course %s: %v", remote.Name, err)
				log.Error().Err(err).Str("course", remote.Name).Msg("Course sync failed")
				result.Errors = append(result.Errors, msg)
				continue
			}

			result.Merge(courseResult)
			processed[remote.ID] = true
		}

		o.saveCheckpoint(ctx, job, result, processed, total, log)

		// Cooperative pause between chunks so a long sync does not
		// hammer the Canvas API.
		if end < total {
			select {
			case <-ctx.Done():
				return nil, errors.ErrSyncCancelled
			case <-time.After(o.cfg.Sync.ChunkPause):
			}
		}
	}

	return result, nil
}

func (o *Orchestrator) saveCheckpoint(
	ctx context.Context,
	job model.SyncJob,
	result *model.SyncResult,
	processed map[string]bool,
	total int,
	log zerolog.Logger,
) {
	ids := make([]string, 0, len(processed))
	for id := range processed {
		ids = append(ids, id)
	}

	percent := 0
	if total > 0 {
		percent = result.CoursesProcessed * 100 / total
	}

	checkpoint := &model.Checkpoint{
		AttemptID:          job.AttemptID,
		ProcessedCanvasIDs: ids,
		Counts:             *result,
		ProgressPercent:    percent,
	}

	// Checkpoint failures degrade to "no resume available".
	if err := o.checkpoints.Save(ctx, job.OwnerID, job.Scope, checkpoint); err != nil {
		log.Warn().Err(err).Msg("Failed to save checkpoint")
	}
}

func (o *Orchestrator) syncOneCourse(
	ctx context.Context,
	client CourseAPI,
	reconciler *Reconciler,
	remote model.CanvasCourse,
	termFor func(model.CanvasCourse) (int64, error),
	log zerolog.Logger,
) (model.SyncResult, error) {
	termID, err := termFor(remote)
	if err != nil {
		return model.SyncResult{}, err
	}

	course, created, err := reconciler.ReconcileCourse(ctx, remote, termID)
	if err != nil {
		return model.SyncResult{}, err
	}

	result, err := o.syncCourseChildren(ctx, client, reconciler, course, log)
	if err != nil {
		return model.SyncResult{}, err
	}

	result.CoursesProcessed = 1
	if created {
		result.CoursesCreated = 1
	} else {
		result.CoursesUpdated = 1
	}
	return result, nil
}

// syncCourseChildren fetches a course's groups, assignments and
// submissions concurrently, then reconciles sequentially: categories
// before assignments, one batched flush per course. A submissions
// failure degrades to syncing without submission data; the other two
// fetches are required.
func (o *Orchestrator) syncCourseChildren(
	ctx context.Context,
	client CourseAPI,
	reconciler *Reconciler,
	course *model.Course,
	log zerolog.Logger,
) (model.SyncResult, error) {
	canvasID := *course.CanvasCourseID

	var (
		groups      []model.CanvasAssignmentGroup
		assignments []model.CanvasAssignment
		submissions []model.CanvasSubmission
		groupsErr   error
		assignErr   error
		subsErr     error
	)

	fetches := []func(){
		func() { groups, groupsErr = client.GetAssignmentGroups(ctx, canvasID) },
		func() { assignments, assignErr = client.GetAssignments(ctx, canvasID) },
		func() { submissions, subsErr = client.GetSubmissions(ctx, canvasID) },
	}

	// fetch_workers bounds how many of the child fetches run at once;
	// setting it to 1 serializes them for rate-limited Canvas instances.
	workers := o.cfg.Sync.FetchWorkers
	if workers <= 0 || workers > len(fetches) {
		workers = len(fetches)
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for _, fetch := range fetches {
		fetch := fetch
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			fetch()
		}()
	}
	wg.Wait()

	if assignErr != nil {
		return model.SyncResult{}, assignErr
	}
	if groupsErr != nil {
		return model.SyncResult{}, groupsErr
	}
	if subsErr != nil {
		log.Warn().Err(subsErr).Str("course", course.Name).
			Msg("Bulk submissions fetch failed, falling back to per-assignment lookups")
		submissions = o.fetchSubmissionsSingly(ctx, client, canvasID, assignments, log)
	}

	mapping, categoriesCreated, err := reconciler.ReconcileCategories(ctx, groups, course.ID)
	if err != nil {
		return model.SyncResult{}, err
	}

	subsByAssignment := make(map[string]*model.CanvasSubmission, len(submissions))
	for i := range submissions {
		subsByAssignment[submissions[i].AssignmentID] = &submissions[i]
	}

	created, updated, recErrs, err := reconciler.ReconcileAssignments(
		ctx, assignments, course, mapping, subsByAssignment)
	if err != nil {
		return model.SyncResult{}, err
	}

	return model.SyncResult{
		AssignmentsProcessed: created + updated,
		AssignmentsCreated:   created,
		AssignmentsUpdated:   updated,
		CategoriesCreated:    categoriesCreated,
		Errors:               recErrs,
	}, nil
}

// fetchSubmissionsSingly is the fallback when the bulk submissions
// endpoint fails: one call per assignment, skipping assignments whose
// lookup also fails. A course with no reachable submission data at all
// still syncs, just without submission state.
func (o *Orchestrator) fetchSubmissionsSingly(
	ctx context.Context,
	client CourseAPI,
	canvasCourseID string,
	assignments []model.CanvasAssignment,
	log zerolog.Logger,
) []model.CanvasSubmission {
	var submissions []model.CanvasSubmission
	for _, assignment := range assignments {
		if ctx.Err() != nil {
			return submissions
		}

		submission, err := client.GetSubmission(ctx, canvasCourseID, assignment.ID)
		if err != nil {
			log.Debug().Err(err).Str("assignment", assignment.Name).
				Msg("Single submission lookup failed, skipping")
			continue
		}
		if submission == nil {
			continue
		}
		if submission.AssignmentID == "" {
			submission.AssignmentID = assignment.ID
		}
		submissions = append(submissions, *submission)
	}

	log.Info().Int("fetched", len(submissions)).Int("assignments", len(assignments)).
		Msg("Recovered submissions via per-assignment fallback")
	return submissions
}

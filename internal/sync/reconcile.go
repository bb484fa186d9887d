package sync

import (
	"context"
	"time"

	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/metrics"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/pkg/errors"

	"github.com/rs/zerolog"
)

// Reconciler holds the find-or-create/update logic that maps one remote
// entity to one local row. All writes for a course are batched into a
// single flush; the reconciler never talks to the network.
type Reconciler struct {
	repo db.Repository
	loc  *time.Location
	log  zerolog.Logger
}

func NewReconciler(repo db.Repository, loc *time.Location) *Reconciler {
	return &Reconciler{
		repo: repo,
		loc:  loc,
		log:  logger.Get(),
	}
}

// ReconcileCourse upserts one Canvas course into the given term, keyed
// by (canvas_course_id, term_id). Name is the only mutable field;
// last_synced_at is always refreshed.
func (r *Reconciler) ReconcileCourse(ctx context.Context, remote model.CanvasCourse, termID int64) (*model.Course, bool, error) {
	now := time.Now().UTC()

	course, err := r.repo.FindCourseByCanvasID(ctx, remote.ID, termID)
	if err != nil {
		return nil, false, err
	}

	if course == nil {
		canvasID := remote.ID
		course = &model.Course{
			Name:           remote.Name,
			Credits:        3.0, // placeholder, owner adjusts later
			TermID:         termID,
			IsWeighted:     true,
			CanvasCourseID: &canvasID,
			LastSyncedAt:   &now,
		}
		if _, err := r.repo.CreateCourse(ctx, course); err != nil {
			return nil, false, err
		}
		metrics.ObserveCourse(true)
		r.log.Info().Str("course", remote.Name).Int64("term_id", termID).Msg("Created course")
		return course, true, nil
	}

	if course.Name != remote.Name {
		if err := r.repo.UpdateCourseName(ctx, course.ID, remote.Name); err != nil {
			return nil, false, err
		}
		course.Name = remote.Name
	}
	if err := r.repo.TouchCourseSynced(ctx, course.ID, now); err != nil {
		return nil, false, err
	}
	course.LastSyncedAt = &now

	metrics.ObserveCourse(false)
	return course, false, nil
}

// ReconcileCategories upserts a course's assignment groups as grade
// categories, keyed by (course_id, name) since groups carry no stable
// local remote-id column. Missing categories are created in one batch;
// a changed remote weight is updated in place. Returns the canvas group
// id -> local category id mapping plus the created count.
func (r *Reconciler) ReconcileCategories(ctx context.Context, groups []model.CanvasAssignmentGroup, courseID int64) (map[string]int64, int, error) {
	existing, err := r.repo.ListCategoriesByCourse(ctx, courseID)
	if err != nil {
		return nil, 0, err
	}

	byName := make(map[string]model.GradeCategory, len(existing))
	for _, category := range existing {
		byName[category.Name] = category
	}

	mapping := make(map[string]int64, len(groups))
	var toCreate []model.GradeCategory
	var createIDs []string

	for _, group := range groups {
		weight := group.GroupWeight / 100.0 // Canvas sends percent

		category, ok := byName[group.Name]
		if !ok {
			toCreate = append(toCreate, model.GradeCategory{
				Name:     group.Name,
				Weight:   weight,
				CourseID: courseID,
			})
			createIDs = append(createIDs, group.ID)
			continue
		}

		if category.Weight != weight {
			if err := r.repo.UpdateCategoryWeight(ctx, category.ID, weight); err != nil {
				return nil, 0, err
			}
		}
		mapping[group.ID] = category.ID
	}

	if len(toCreate) > 0 {
		ids, err := r.repo.CreateCategories(ctx, toCreate)
		if err != nil {
			return nil, 0, err
		}
		for i, id := range ids {
			mapping[createIDs[i]] = id
		}
		r.log.Info().Int("count", len(toCreate)).Int64("course_id", courseID).
			Msg("Created grade categories")
	}

	return mapping, len(toCreate), nil
}

// ApplySubmissionState sets the assignment's submission flags from
// remote submission data. Missing takes priority: a missing assignment
// is never submitted or completed regardless of the remote workflow
// state. A nil submission means unsubmitted, incomplete, not missing.
// The score is only touched when the remote carries one; a hidden or
// ungraded submission must not wipe a stored grade.
func ApplySubmissionState(a *model.Assignment, submission *model.CanvasSubmission) {
	if submission == nil {
		a.IsSubmitted = false
		a.Completed = false
		a.IsMissing = false
		return
	}

	if submission.Missing {
		a.IsMissing = true
		a.IsSubmitted = false
		a.Completed = false
	} else {
		a.IsMissing = false
		a.IsSubmitted = submission.Submitted()
		a.Completed = a.IsSubmitted
	}

	if submission.Score != nil {
		score := *submission.Score
		a.Score = &score
	}
}

// ReconcileAssignments upserts a course's assignments, keyed by
// (canvas_assignment_id, course_id). Rows are accumulated and flushed
// in two batches (creates, updates) to avoid per-assignment writes.
func (r *Reconciler) ReconcileAssignments(
	ctx context.Context,
	remotes []model.CanvasAssignment,
	course *model.Course,
	categoryIDs map[string]int64,
	submissions map[string]*model.CanvasSubmission,
) (created, updated int, errs []string, err error) {
	now := time.Now().UTC()

	var toCreate, toUpdate []model.Assignment
	for _, remote := range remotes {
		existing, findErr := r.repo.FindAssignmentByCanvasID(ctx, remote.ID, course.ID)
		if findErr != nil {
			return 0, 0, errs, findErr
		}

		dueDate, parseErr := r.parseDueDate(remote.DueAt)
		if parseErr != nil {
			recErr := errors.NewReconcileError("assignment", remote.Name, parseErr)
			r.log.Warn().Err(recErr).Str("due_at", remote.DueAt).Msg("Skipping assignment")
			errs = append(errs, recErr.Error())
			continue
		}

		var categoryID *int64
		if id, ok := categoryIDs[remote.AssignmentGroupID]; ok {
			categoryID = &id
		}

		row := model.Assignment{
			Name:               remote.Name,
			MaxScore:           remote.PointsPossible,
			CourseID:           course.ID,
			CategoryID:         categoryID,
			DueDate:            dueDate,
			CanvasAssignmentID: remote.ID,
			LastSyncedAt:       &now,
		}
		if course.CanvasCourseID != nil {
			row.CanvasCourseID = *course.CanvasCourseID
		}
		// Carry the stored score forward so a submission without one
		// (ungraded, grade hidden) cannot erase it on re-sync.
		if existing != nil {
			row.ID = existing.ID
			row.Score = existing.Score
		}
		ApplySubmissionState(&row, submissions[remote.ID])

		if existing == nil {
			toCreate = append(toCreate, row)
			metrics.ObserveAssignment(true)
		} else {
			toUpdate = append(toUpdate, row)
			metrics.ObserveAssignment(false)
		}
	}

	if err := r.repo.CreateAssignments(ctx, toCreate); err != nil {
		return 0, 0, errs, err
	}
	if err := r.repo.UpdateAssignments(ctx, toUpdate); err != nil {
		return len(toCreate), 0, errs, err
	}

	return len(toCreate), len(toUpdate), errs, nil
}

// parseDueDate converts the Canvas UTC timestamp into the configured
// local zone. The zone is an IANA identifier from config, not a fixed
// offset, so daylight-saving transitions resolve correctly.
func (r *Reconciler) parseDueDate(dueAt string) (*time.Time, error) {
	if dueAt == "" {
		return nil, nil
	}

	utc, err := time.Parse(time.RFC3339, dueAt)
	if err != nil {
		return nil, err
	}

	local := utc.In(r.loc)
	return &local, nil
}

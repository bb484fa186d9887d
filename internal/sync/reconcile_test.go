package sync

import (
	"context"
	"testing"
	"time"

	"canvas-grade-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(repo *fakeRepo) *Reconciler {
	return NewReconciler(repo, time.UTC)
}

func TestApplySubmissionState(t *testing.T) {
	score := 42.5

	tests := []struct {
		name       string
		submission *model.CanvasSubmission
		submitted  bool
		completed  bool
		missing    bool
		wantScore  *float64
	}{
		{
			name:       "nil submission resets flags but keeps score",
			submission: nil,
			wantScore:  &score,
		},
		{
			name:       "graded is submitted and completed",
			submission: &model.CanvasSubmission{WorkflowState: "graded", Score: &score},
			submitted:  true,
			completed:  true,
			wantScore:  &score,
		},
		{
			name:       "pending review counts as submitted",
			submission: &model.CanvasSubmission{WorkflowState: "pending_review"},
			submitted:  true,
			completed:  true,
			wantScore:  &score, // remote carries no score, local kept
		},
		{
			name:       "unsubmitted stays incomplete",
			submission: &model.CanvasSubmission{WorkflowState: "unsubmitted"},
			wantScore:  &score,
		},
		{
			name:       "missing wins over submitted workflow state",
			submission: &model.CanvasSubmission{WorkflowState: "graded", Missing: true, Score: &score},
			missing:    true,
			wantScore:  &score,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignment := &model.Assignment{
				IsSubmitted: true,
				Completed:   true,
				IsMissing:   true,
				Score:       &score,
			}
			ApplySubmissionState(assignment, tt.submission)

			assert.Equal(t, tt.submitted, assignment.IsSubmitted)
			assert.Equal(t, tt.completed, assignment.Completed)
			assert.Equal(t, tt.missing, assignment.IsMissing)
			if tt.wantScore == nil {
				assert.Nil(t, assignment.Score)
			} else {
				require.NotNil(t, assignment.Score)
				assert.Equal(t, *tt.wantScore, *assignment.Score)
			}
		})
	}
}

func TestApplySubmissionState_ScoreKeptWithoutRemoteScore(t *testing.T) {
	existing := 10.0
	assignment := &model.Assignment{Score: &existing}

	ApplySubmissionState(assignment, &model.CanvasSubmission{WorkflowState: "submitted"})

	require.NotNil(t, assignment.Score)
	assert.Equal(t, existing, *assignment.Score)
}

func TestReconcileCourse_CreateThenUpdate(t *testing.T) {
	repo := newFakeRepo()
	reconciler := newTestReconciler(repo)
	remote := model.CanvasCourse{ID: "101", Name: "Calculus I"}

	course, created, err := reconciler.ReconcileCourse(context.Background(), remote, 1)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Calculus I", course.Name)
	require.NotNil(t, course.LastSyncedAt)

	remote.Name = "Calculus I (Honors)"
	again, created, err := reconciler.ReconcileCourse(context.Background(), remote, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, course.ID, again.ID)
	assert.Len(t, repo.courses, 1)
	assert.Equal(t, "Calculus I (Honors)", repo.courses[0].Name)
}

func TestReconcileCourse_SameCanvasIDDifferentTerms(t *testing.T) {
	repo := newFakeRepo()
	reconciler := newTestReconciler(repo)
	remote := model.CanvasCourse{ID: "101", Name: "Calculus I"}

	_, created, err := reconciler.ReconcileCourse(context.Background(), remote, 1)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = reconciler.ReconcileCourse(context.Background(), remote, 2)
	require.NoError(t, err)
	assert.True(t, created, "identity is (canvas_course_id, term_id)")
	assert.Len(t, repo.courses, 2)
}

func TestReconcileCategories_NoDuplicates(t *testing.T) {
	repo := newFakeRepo()
	reconciler := newTestReconciler(repo)
	groups := []model.CanvasAssignmentGroup{
		{ID: "g1", Name: "Homework", GroupWeight: 40},
		{ID: "g2", Name: "Exams", GroupWeight: 60},
	}

	mapping, created, err := reconciler.ReconcileCategories(context.Background(), groups, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Len(t, mapping, 2)
	assert.InDelta(t, 0.4, repo.categories[0].Weight, 1e-9)

	mapping, created, err = reconciler.ReconcileCategories(context.Background(), groups, 1)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, mapping, 2)
	assert.Len(t, repo.categories, 2)
}

func TestReconcileCategories_WeightUpdatedInPlace(t *testing.T) {
	repo := newFakeRepo()
	reconciler := newTestReconciler(repo)

	_, _, err := reconciler.ReconcileCategories(context.Background(),
		[]model.CanvasAssignmentGroup{{ID: "g1", Name: "Homework", GroupWeight: 40}}, 1)
	require.NoError(t, err)

	_, created, err := reconciler.ReconcileCategories(context.Background(),
		[]model.CanvasAssignmentGroup{{ID: "g1", Name: "Homework", GroupWeight: 55}}, 1)
	require.NoError(t, err)

	assert.Zero(t, created)
	require.Len(t, repo.categories, 1)
	assert.InDelta(t, 0.55, repo.categories[0].Weight, 1e-9)
}

func TestReconcileAssignments_CreateAndUpdate(t *testing.T) {
	repo := newFakeRepo()
	reconciler := newTestReconciler(repo)
	canvasID := "101"
	course := &model.Course{ID: 1, CanvasCourseID: &canvasID}
	categoryIDs := map[string]int64{"g1": 7}

	remotes := []model.CanvasAssignment{
		{ID: "a1", Name: "Week 1", PointsPossible: 10, AssignmentGroupID: "g1", DueAt: "2025-03-01T07:59:00Z"},
	}
	score := 8.0
	submissions := map[string]*model.CanvasSubmission{
		"a1": {AssignmentID: "a1", WorkflowState: "graded", Score: &score},
	}

	created, updated, errs, err := reconciler.ReconcileAssignments(
		context.Background(), remotes, course, categoryIDs, submissions)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Zero(t, updated)
	assert.Empty(t, errs)

	require.Len(t, repo.assignments, 1)
	stored := repo.assignments[0]
	require.NotNil(t, stored.CategoryID)
	assert.Equal(t, int64(7), *stored.CategoryID)
	assert.True(t, stored.IsSubmitted)
	require.NotNil(t, stored.DueDate)
	assert.Equal(t, time.March, stored.DueDate.Month())

	remotes[0].PointsPossible = 20
	created, updated, errs, err = reconciler.ReconcileAssignments(
		context.Background(), remotes, course, categoryIDs, submissions)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, 1, updated)
	assert.Empty(t, errs)
	require.Len(t, repo.assignments, 1)
	assert.Equal(t, 20.0, repo.assignments[0].MaxScore)
}

func TestReconcileAssignments_ScoreSurvivesResync(t *testing.T) {
	repo := newFakeRepo()
	reconciler := newTestReconciler(repo)
	canvasID := "101"
	course := &model.Course{ID: 1, CanvasCourseID: &canvasID}

	remotes := []model.CanvasAssignment{
		{ID: "a1", Name: "Essay", PointsPossible: 10},
	}
	score := 8.0
	graded := map[string]*model.CanvasSubmission{
		"a1": {AssignmentID: "a1", WorkflowState: "graded", Score: &score},
	}

	_, _, _, err := reconciler.ReconcileAssignments(context.Background(), remotes, course, nil, graded)
	require.NoError(t, err)
	require.Len(t, repo.assignments, 1)
	require.NotNil(t, repo.assignments[0].Score)

	// Re-sync where the submission comes back without a score (grade
	// hidden, regrade in progress).
	scoreless := map[string]*model.CanvasSubmission{
		"a1": {AssignmentID: "a1", WorkflowState: "submitted"},
	}
	_, updated, _, err := reconciler.ReconcileAssignments(context.Background(), remotes, course, nil, scoreless)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	require.NotNil(t, repo.assignments[0].Score)
	assert.Equal(t, 8.0, *repo.assignments[0].Score)
	assert.True(t, repo.assignments[0].IsSubmitted)

	// Re-sync with no submission data at all (bulk fetch degraded).
	_, updated, _, err = reconciler.ReconcileAssignments(context.Background(), remotes, course, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	require.NotNil(t, repo.assignments[0].Score)
	assert.Equal(t, 8.0, *repo.assignments[0].Score)
	assert.False(t, repo.assignments[0].IsSubmitted)
}

func TestReconcileAssignments_BadDueDateSkipped(t *testing.T) {
	repo := newFakeRepo()
	reconciler := newTestReconciler(repo)
	canvasID := "101"
	course := &model.Course{ID: 1, CanvasCourseID: &canvasID}

	remotes := []model.CanvasAssignment{
		{ID: "a1", Name: "Good", PointsPossible: 10},
		{ID: "a2", Name: "Bad", PointsPossible: 10, DueAt: "not-a-date"},
	}

	created, updated, errs, err := reconciler.ReconcileAssignments(
		context.Background(), remotes, course, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Zero(t, updated)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Bad")
	assert.Len(t, repo.assignments, 1)
}

func TestParseDueDate_ConvertsToLocalZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	reconciler := NewReconciler(newFakeRepo(), loc)

	// 07:59 UTC on March 1 is 23:59 the previous day in Pacific time.
	due, err := reconciler.parseDueDate("2025-03-01T07:59:00Z")
	require.NoError(t, err)
	require.NotNil(t, due)
	assert.Equal(t, 28, due.Day())
	assert.Equal(t, time.February, due.Month())
	assert.Equal(t, 23, due.Hour())

	none, err := reconciler.parseDueDate("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

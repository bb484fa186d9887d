package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"canvas-grade-sync/internal/model"
)

type Repository interface {
	// Owners
	GetOwner(ctx context.Context, ownerID int64) (*model.Owner, error)
	ListOwnersWithCredentials(ctx context.Context) ([]model.Owner, error)
	SetOwnerLastFullSync(ctx context.Context, ownerID int64, at time.Time) error

	// Terms
	GetTerm(ctx context.Context, termID, ownerID int64) (*model.Term, error)
	FindTerm(ctx context.Context, ownerID int64, season string, year int) (*model.Term, error)
	CreateTermExclusive(ctx context.Context, term *model.Term) (int64, error)

	// Courses
	GetCourse(ctx context.Context, courseID, ownerID int64) (*model.Course, error)
	FindCourseByCanvasID(ctx context.Context, canvasCourseID string, termID int64) (*model.Course, error)
	ListCoursesByTerm(ctx context.Context, termID int64) ([]model.Course, error)
	CreateCourse(ctx context.Context, course *model.Course) (int64, error)
	UpdateCourseName(ctx context.Context, courseID int64, name string) error
	TouchCourseSynced(ctx context.Context, courseID int64, at time.Time) error

	// Categories
	ListCategoriesByCourse(ctx context.Context, courseID int64) ([]model.GradeCategory, error)
	CreateCategories(ctx context.Context, categories []model.GradeCategory) ([]int64, error)
	UpdateCategoryWeight(ctx context.Context, categoryID int64, weight float64) error
	DeleteCategoriesByCourse(ctx context.Context, courseID int64) error

	// Assignments
	FindAssignmentByCanvasID(ctx context.Context, canvasAssignmentID string, courseID int64) (*model.Assignment, error)
	CreateAssignments(ctx context.Context, assignments []model.Assignment) error
	UpdateAssignments(ctx context.Context, assignments []model.Assignment) error
	DeleteAssignmentsByCourse(ctx context.Context, courseID int64) error

	// Sync progress records
	CreateSyncProgress(ctx context.Context, progress *model.SyncProgress) (int64, error)
	UpdateSyncProgress(ctx context.Context, progress *model.SyncProgress) error
	GetLatestSyncProgress(ctx context.Context, ownerID int64) (*model.SyncProgress, error)
	DeleteSyncProgressBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetOwner(ctx context.Context, ownerID int64) (*model.Owner, error) {
	query := `SELECT id, canvas_base_url, canvas_token, last_full_sync FROM owners WHERE id = ?`

	var owner model.Owner
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&owner.ID, &owner.CanvasBaseURL, &owner.CanvasToken, &owner.LastFullSync,
	)
	if err != nil {
		return nil, err
	}

	return &owner, nil
}

func (r *repository) ListOwnersWithCredentials(ctx context.Context) ([]model.Owner, error) {
	query := `SELECT id, canvas_base_url, canvas_token, last_full_sync FROM owners
			  WHERE canvas_base_url <> '' AND canvas_token <> ''`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		var owner model.Owner
		if err := rows.Scan(&owner.ID, &owner.CanvasBaseURL, &owner.CanvasToken, &owner.LastFullSync); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}

	return owners, rows.Err()
}

func (r *repository) SetOwnerLastFullSync(ctx context.Context, ownerID int64, at time.Time) error {
	query := `UPDATE owners SET last_full_sync = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, ownerID)
	return err
}

func (r *repository) GetTerm(ctx context.Context, termID, ownerID int64) (*model.Term, error) {
	query := `SELECT id, nickname, season, year, school_name, active, owner_id
			  FROM terms WHERE id = ? AND owner_id = ?`

	var term model.Term
	err := r.db.QueryRowContext(ctx, query, termID, ownerID).Scan(
		&term.ID, &term.Nickname, &term.Season, &term.Year,
		&term.SchoolName, &term.Active, &term.OwnerID,
	)
	if err != nil {
		return nil, err
	}

	return &term, nil
}

func (r *repository) FindTerm(ctx context.Context, ownerID int64, season string, year int) (*model.Term, error) {
	query := `SELECT id, nickname, season, year, school_name, active, owner_id
			  FROM terms WHERE owner_id = ? AND season = ? AND year = ?`

	var term model.Term
	err := r.db.QueryRowContext(ctx, query, ownerID, season, year).Scan(
		&term.ID, &term.Nickname, &term.Season, &term.Year,
		&term.SchoolName, &term.Active, &term.OwnerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &term, nil
}

// CreateTermExclusive inserts the term and deactivates the owner's other
// terms in the same transaction, preserving the single-active-term
// invariant.
func (r *repository) CreateTermExclusive(ctx context.Context, term *model.Term) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if term.Active {
		deactivate := `UPDATE terms SET active = FALSE WHERE owner_id = ? AND active = TRUE`
		if _, err := tx.ExecContext(ctx, deactivate, term.OwnerID); err != nil {
			return 0, err
		}
	}

	insert := `INSERT INTO terms (nickname, season, year, school_name, active, owner_id)
			   VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insert, term.Nickname, term.Season, term.Year,
		term.SchoolName, term.Active, term.OwnerID)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	term.ID = id
	return id, nil
}

func (r *repository) GetCourse(ctx context.Context, courseID, ownerID int64) (*model.Course, error) {
	query := `SELECT c.id, c.name, c.credits, c.term_id, c.is_weighted, c.canvas_course_id, c.last_synced_at
			  FROM courses c JOIN terms t ON t.id = c.term_id
			  WHERE c.id = ? AND t.owner_id = ?`

	var course model.Course
	err := r.db.QueryRowContext(ctx, query, courseID, ownerID).Scan(
		&course.ID, &course.Name, &course.Credits, &course.TermID,
		&course.IsWeighted, &course.CanvasCourseID, &course.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}

	return &course, nil
}

func (r *repository) FindCourseByCanvasID(ctx context.Context, canvasCourseID string, termID int64) (*model.Course, error) {
	query := `SELECT id, name, credits, term_id, is_weighted, canvas_course_id, last_synced_at
			  FROM courses WHERE canvas_course_id = ? AND term_id = ?`

	var course model.Course
	err := r.db.QueryRowContext(ctx, query, canvasCourseID, termID).Scan(
		&course.ID, &course.Name, &course.Credits, &course.TermID,
		&course.IsWeighted, &course.CanvasCourseID, &course.LastSyncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &course, nil
}

func (r *repository) ListCoursesByTerm(ctx context.Context, termID int64) ([]model.Course, error) {
	query := `SELECT id, name, credits, term_id, is_weighted, canvas_course_id, last_synced_at
			  FROM courses WHERE term_id = ?`

	rows, err := r.db.QueryContext(ctx, query, termID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		var course model.Course
		err := rows.Scan(&course.ID, &course.Name, &course.Credits, &course.TermID,
			&course.IsWeighted, &course.CanvasCourseID, &course.LastSyncedAt)
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}

	return courses, rows.Err()
}

func (r *repository) CreateCourse(ctx context.Context, course *model.Course) (int64, error) {
	query := `INSERT INTO courses (name, credits, term_id, is_weighted, canvas_course_id, last_synced_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, course.Name, course.Credits, course.TermID,
		course.IsWeighted, course.CanvasCourseID, course.LastSyncedAt)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	course.ID = id
	return id, nil
}

func (r *repository) UpdateCourseName(ctx context.Context, courseID int64, name string) error {
	query := `UPDATE courses SET name = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, name, courseID)
	return err
}

func (r *repository) TouchCourseSynced(ctx context.Context, courseID int64, at time.Time) error {
	query := `UPDATE courses SET last_synced_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, courseID)
	return err
}

func (r *repository) ListCategoriesByCourse(ctx context.Context, courseID int64) ([]model.GradeCategory, error) {
	query := `SELECT id, name, weight, course_id FROM grade_categories WHERE course_id = ?`

	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []model.GradeCategory
	for rows.Next() {
		var category model.GradeCategory
		if err := rows.Scan(&category.ID, &category.Name, &category.Weight, &category.CourseID); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}

	return categories, rows.Err()
}

func (r *repository) CreateCategories(ctx context.Context, categories []model.GradeCategory) ([]int64, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `INSERT INTO grade_categories (name, weight, course_id) VALUES (?, ?, ?)`

	ids := make([]int64, 0, len(categories))
	for _, category := range categories {
		res, err := tx.ExecContext(ctx, query, category.Name, category.Weight, category.CourseID)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *repository) UpdateCategoryWeight(ctx context.Context, categoryID int64, weight float64) error {
	query := `UPDATE grade_categories SET weight = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, weight, categoryID)
	return err
}

func (r *repository) DeleteCategoriesByCourse(ctx context.Context, courseID int64) error {
	query := `DELETE FROM grade_categories WHERE course_id = ?`
	_, err := r.db.ExecContext(ctx, query, courseID)
	return err
}

func (r *repository) FindAssignmentByCanvasID(ctx context.Context, canvasAssignmentID string, courseID int64) (*model.Assignment, error) {
	query := `SELECT id, name, score, max_score, course_id, category_id, due_date,
			  completed, is_submitted, is_missing, canvas_assignment_id, canvas_course_id, last_synced_at
			  FROM assignments WHERE canvas_assignment_id = ? AND course_id = ?`

	var a model.Assignment
	err := r.db.QueryRowContext(ctx, query, canvasAssignmentID, courseID).Scan(
		&a.ID, &a.Name, &a.Score, &a.MaxScore, &a.CourseID, &a.CategoryID, &a.DueDate,
		&a.Completed, &a.IsSubmitted, &a.IsMissing, &a.CanvasAssignmentID, &a.CanvasCourseID, &a.LastSyncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// CreateAssignments flushes a whole course's new assignments in one
// transaction. Categories must already exist so category_id references
// resolve.
func (r *repository) CreateAssignments(ctx context.Context, assignments []model.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO assignments
			  (name, score, max_score, course_id, category_id, due_date,
			   completed, is_submitted, is_missing, canvas_assignment_id, canvas_course_id, last_synced_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, a := range assignments {
		_, err := tx.ExecContext(ctx, query, a.Name, a.Score, a.MaxScore, a.CourseID,
			a.CategoryID, a.DueDate, a.Completed, a.IsSubmitted, a.IsMissing,
			a.CanvasAssignmentID, a.CanvasCourseID, a.LastSyncedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *repository) UpdateAssignments(ctx context.Context, assignments []model.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE assignments SET name = ?, score = ?, max_score = ?, category_id = ?,
			  due_date = ?, completed = ?, is_submitted = ?, is_missing = ?, last_synced_at = ?
			  WHERE id = ?`

	for _, a := range assignments {
		_, err := tx.ExecContext(ctx, query, a.Name, a.Score, a.MaxScore, a.CategoryID,
			a.DueDate, a.Completed, a.IsSubmitted, a.IsMissing, a.LastSyncedAt, a.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *repository) DeleteAssignmentsByCourse(ctx context.Context, courseID int64) error {
	query := `DELETE FROM assignments WHERE course_id = ?`
	_, err := r.db.ExecContext(ctx, query, courseID)
	return err
}

func (r *repository) CreateSyncProgress(ctx context.Context, progress *model.SyncProgress) (int64, error) {
	query := `INSERT INTO sync_progress
			  (owner_id, attempt_id, scope, target_id, progress_percent, completed_items,
			   total_items, current_operation, current_item, elapsed_seconds, errors, is_complete)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, progress.OwnerID, progress.AttemptID,
		string(progress.Scope), progress.TargetID, progress.ProgressPercent,
		progress.CompletedItems, progress.TotalItems, progress.CurrentOperation,
		progress.CurrentItem, progress.ElapsedSeconds, progress.Errors, progress.IsComplete)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	progress.ID = id
	return id, nil
}

func (r *repository) UpdateSyncProgress(ctx context.Context, progress *model.SyncProgress) error {
	query := `UPDATE sync_progress SET progress_percent = ?, completed_items = ?, total_items = ?,
			  current_operation = ?, current_item = ?, elapsed_seconds = ?, errors = ?,
			  is_complete = ?, updated_at = NOW()
			  WHERE attempt_id = ?`

	_, err := r.db.ExecContext(ctx, query, progress.ProgressPercent, progress.CompletedItems,
		progress.TotalItems, progress.CurrentOperation, progress.CurrentItem,
		progress.ElapsedSeconds, progress.Errors, progress.IsComplete, progress.AttemptID)
	return err
}

func (r *repository) GetLatestSyncProgress(ctx context.Context, ownerID int64) (*model.SyncProgress, error) {
	query := `SELECT id, owner_id, attempt_id, scope, target_id, progress_percent, completed_items,
			  total_items, current_operation, current_item, elapsed_seconds, errors, is_complete,
			  created_at, updated_at
			  FROM sync_progress WHERE owner_id = ? ORDER BY created_at DESC LIMIT 1`

	var p model.SyncProgress
	var scope string
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&p.ID, &p.OwnerID, &p.AttemptID, &scope, &p.TargetID, &p.ProgressPercent,
		&p.CompletedItems, &p.TotalItems, &p.CurrentOperation, &p.CurrentItem,
		&p.ElapsedSeconds, &p.Errors, &p.IsComplete, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Scope = model.Scope(strings.ToLower(scope))
	return &p, nil
}

func (r *repository) DeleteSyncProgressBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sync_progress WHERE created_at < ? AND is_complete = TRUE`

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

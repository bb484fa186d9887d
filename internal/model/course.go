package model

import "time"

type Course struct {
	ID             int64      `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Credits        float64    `json:"credits" db:"credits"`
	TermID         int64      `json:"term_id" db:"term_id"`
	IsWeighted     bool       `json:"is_weighted" db:"is_weighted"`
	CanvasCourseID *string    `json:"canvas_course_id,omitempty" db:"canvas_course_id"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`
}

// GradeCategory weight is a 0..1 fraction. Categories are denormalized
// per-course, so (course_id, name) is the reconciliation key rather than
// any remote id.
type GradeCategory struct {
	ID       int64   `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Weight   float64 `json:"weight" db:"weight"`
	CourseID int64   `json:"course_id" db:"course_id"`
}

package model

import "time"

// Assignment state rule: IsMissing=true forces IsSubmitted=false and
// Completed=false; otherwise IsSubmitted=true implies Completed=true.
// Missing always wins when the remote flags conflict.
type Assignment struct {
	ID                 int64      `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	Score              *float64   `json:"score,omitempty" db:"score"`
	MaxScore           float64    `json:"max_score" db:"max_score"`
	CourseID           int64      `json:"course_id" db:"course_id"`
	CategoryID         *int64     `json:"category_id,omitempty" db:"category_id"`
	DueDate            *time.Time `json:"due_date,omitempty" db:"due_date"`
	Completed          bool       `json:"completed" db:"completed"`
	IsSubmitted        bool       `json:"is_submitted" db:"is_submitted"`
	IsMissing          bool       `json:"is_missing" db:"is_missing"`
	CanvasAssignmentID string     `json:"canvas_assignment_id" db:"canvas_assignment_id"`
	CanvasCourseID     string     `json:"canvas_course_id" db:"canvas_course_id"`
	LastSyncedAt       *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`
}

package model

// Scope selects how much of the remote account one sync attempt covers.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeTerm   Scope = "term"
	ScopeCourse Scope = "course"
)

// SyncAllRequest is the body of POST /api/v1/sync/all. Incremental
// defaults to true; pass false to force a full pull.
type SyncAllRequest struct {
	Incremental *bool `json:"incremental"`
}

// SyncTermRequest is the body of POST /api/v1/sync/terms/:id. ForceFull
// purges the term's assignments and categories before resyncing.
type SyncTermRequest struct {
	ForceFull bool `json:"force_full"`
}

type SyncJob struct {
	OwnerID     int64  `json:"owner_id"`
	Scope       Scope  `json:"scope"`
	TargetID    int64  `json:"target_id,omitempty"` // term or course id for scoped syncs
	ForceFull   bool   `json:"force_full,omitempty"`
	Incremental bool   `json:"incremental,omitempty"`
	AttemptID   string `json:"attempt_id,omitempty"`
}

type SyncResult struct {
	CoursesProcessed     int      `json:"courses_processed"`
	CoursesCreated       int      `json:"courses_created"`
	CoursesUpdated       int      `json:"courses_updated"`
	AssignmentsProcessed int      `json:"assignments_processed"`
	AssignmentsCreated   int      `json:"assignments_created"`
	AssignmentsUpdated   int      `json:"assignments_updated"`
	CategoriesCreated    int      `json:"categories_created"`
	Errors               []string `json:"errors"`
}

func (r *SyncResult) Merge(other SyncResult) {
	r.CoursesProcessed += other.CoursesProcessed
	r.CoursesCreated += other.CoursesCreated
	r.CoursesUpdated += other.CoursesUpdated
	r.AssignmentsProcessed += other.AssignmentsProcessed
	r.AssignmentsCreated += other.AssignmentsCreated
	r.AssignmentsUpdated += other.AssignmentsUpdated
	r.CategoriesCreated += other.CategoriesCreated
	r.Errors = append(r.Errors, other.Errors...)
}

// ProgressUpdate is the payload handed to the caller-supplied progress
// callback and cached for polling clients.
type ProgressUpdate struct {
	AttemptID          string   `json:"attempt_id"`
	OwnerID            int64    `json:"owner_id"`
	Scope              Scope    `json:"scope"`
	TargetID           int64    `json:"target_id,omitempty"`
	ProgressPercent    int      `json:"progress_percent"`
	CompletedItems     int      `json:"completed_items"`
	TotalItems         int      `json:"total_items"`
	CurrentOperation   string   `json:"current_operation"`
	CurrentItem        string   `json:"current_item"`
	ElapsedSeconds     float64  `json:"elapsed_seconds"`
	EstimatedRemaining *float64 `json:"estimated_remaining,omitempty"`
	Errors             []string `json:"errors"`
	IsComplete         bool     `json:"is_complete"`
}

// Checkpoint is the durable snapshot written after each chunk, keyed by
// (owner, scope) in the checkpoint store with a retention TTL.
type Checkpoint struct {
	AttemptID          string     `json:"attempt_id"`
	ProcessedCanvasIDs []string   `json:"processed_canvas_ids"`
	Counts             SyncResult `json:"counts"`
	ProgressPercent    int        `json:"progress_percent"`
}

func (c *Checkpoint) ProcessedSet() map[string]bool {
	set := make(map[string]bool, len(c.ProcessedCanvasIDs))
	for _, id := range c.ProcessedCanvasIDs {
		set[id] = true
	}
	return set
}

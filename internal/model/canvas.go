package model

// Canvas wire payloads. Requests are sent with the canvas-string-ids
// accept header so every remote id arrives as a string.

type CanvasUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CanvasTerm struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CanvasCourse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Term      *CanvasTerm `json:"term,omitempty"`
	UpdatedAt string      `json:"updated_at,omitempty"`
}

// GroupWeight is a percentage (0-100) on the wire; the reconciler stores
// it as a 0..1 fraction.
type CanvasAssignmentGroup struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	GroupWeight float64 `json:"group_weight"`
}

type CanvasAssignment struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	PointsPossible    float64 `json:"points_possible"`
	DueAt             string  `json:"due_at,omitempty"`
	AssignmentGroupID string  `json:"assignment_group_id,omitempty"`
}

// Canvas workflow_state values: unsubmitted, submitted, graded, pending_review.
type CanvasSubmission struct {
	AssignmentID  string   `json:"assignment_id"`
	Score         *float64 `json:"score,omitempty"`
	WorkflowState string   `json:"workflow_state"`
	Missing       bool     `json:"missing"`
}

func (s *CanvasSubmission) Submitted() bool {
	switch s.WorkflowState {
	case "submitted", "graded", "pending_review":
		return true
	}
	return false
}

package model

import (
	"encoding/json"
	"time"
)

// SyncProgress is the persisted record of one sync attempt, mutated
// throughout the run and marked complete on success, failure or cancel.
type SyncProgress struct {
	ID               int64     `json:"id" db:"id"`
	OwnerID          int64     `json:"owner_id" db:"owner_id"`
	AttemptID        string    `json:"attempt_id" db:"attempt_id"`
	Scope            Scope     `json:"scope" db:"scope"`
	TargetID         int64     `json:"target_id" db:"target_id"`
	ProgressPercent  int       `json:"progress_percent" db:"progress_percent"`
	CompletedItems   int       `json:"completed_items" db:"completed_items"`
	TotalItems       int       `json:"total_items" db:"total_items"`
	CurrentOperation string    `json:"current_operation" db:"current_operation"`
	CurrentItem      string    `json:"current_item" db:"current_item"`
	ElapsedSeconds   float64   `json:"elapsed_seconds" db:"elapsed_seconds"`
	Errors           string    `json:"-" db:"errors"` // JSON-encoded list
	IsComplete       bool      `json:"is_complete" db:"is_complete"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

func (p *SyncProgress) SetErrors(errs []string) {
	if len(errs) == 0 {
		p.Errors = ""
		return
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return
	}
	p.Errors = string(data)
}

func (p *SyncProgress) ErrorList() []string {
	if p.Errors == "" {
		return nil
	}
	var errs []string
	if err := json.Unmarshal([]byte(p.Errors), &errs); err != nil {
		return nil
	}
	return errs
}

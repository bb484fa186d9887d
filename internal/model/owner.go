package model

import "time"

// Owner holds the Canvas credentials and the incremental-sync watermark
// for one account.
type Owner struct {
	ID            int64      `json:"id" db:"id"`
	CanvasBaseURL string     `json:"canvas_base_url" db:"canvas_base_url"`
	CanvasToken   string     `json:"-" db:"canvas_token"`
	LastFullSync  *time.Time `json:"last_full_sync,omitempty" db:"last_full_sync"`
}

func (o *Owner) HasCredentials() bool {
	return o != nil && o.CanvasBaseURL != "" && o.CanvasToken != ""
}

package model

import "time"

// Setting is a named text value edited by admins, such as the team notice.
// UpdatedBy is nil for seeded values and after the editor is deleted.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedBy *int64    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

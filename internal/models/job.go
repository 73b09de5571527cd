package models

import "time"

// Job is one worksheet's row-by-row generation run.
// NextRowIndex is the 0-based cursor of the next row to process and always
// satisfies 0 <= NextRowIndex <= TotalRows.
type Job struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	SheetName  string `json:"sheet_name"`
	OutputPath string `json:"output_path"`

	Status       Status     `json:"status"`
	NextRowIndex int        `json:"next_row_index"`
	TotalRows    int        `json:"total_rows"` // Fixed at creation
	ErrorCount   int        `json:"error_count"`
	ErrorMessage string     `json:"error_message,omitempty"` // Last error; empty when none
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	// Replacement configuration captured at creation so a restored job runs
	// exactly as it was requested
	TextConfigs  []TextConfig  `json:"text_configs"`
	ImageConfigs []ImageConfig `json:"image_configs"`

	// Progress is derived on read
	Progress float64 `json:"progress"`
}

// Clone returns a deep copy safe to hand outside the job store
func (j Job) Clone() Job {
	j.TextConfigs = cloneTextConfigs(j.TextConfigs)
	j.ImageConfigs = cloneImageConfigs(j.ImageConfigs)
	j.StartedAt = cloneTime(j.StartedAt)
	j.CompletedAt = cloneTime(j.CompletedAt)
	return j
}

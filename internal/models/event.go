package models

import "time"

// GroupEvent is the payload of group_* events
type GroupEvent struct {
	GroupID    string    `json:"group_id"`
	Status     Status    `json:"status"`
	Progress   float64   `json:"progress"`
	ErrorCount int       `json:"error_count"`
	Timestamp  time.Time `json:"timestamp"`
	Group      *Group    `json:"group,omitempty"` // Set on group_created
}

// JobEvent is the payload of job_* events
type JobEvent struct {
	JobID        string                 `json:"job_id"`
	GroupID      string                 `json:"group_id"`
	SheetName    string                 `json:"sheet_name,omitempty"`
	Status       Status                 `json:"status"`
	NextRowIndex int                    `json:"next_row_index"`
	TotalRows    int                    `json:"total_rows"`
	Progress     float64                `json:"progress"`
	ErrorCount   int                    `json:"error_count"`
	Message      string                 `json:"message,omitempty"`
	Level        string                 `json:"level,omitempty"` // job_log only
	Row          int                    `json:"row,omitempty"`   // 1-based row number for job_error
	Data         map[string]interface{} `json:"data,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

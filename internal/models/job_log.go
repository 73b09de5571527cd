package models

import "time"

// Log levels used for job log entries
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// JobLogEntry is an append-only diagnostic record for a job.
// Entries are replayed by the UI and are never consulted to rebuild job state.
type JobLogEntry struct {
	JobID     string                 `json:"job_id" badgerhold:"index"`
	GroupID   string                 `json:"group_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`

	// Sequence orders entries written within the same nanosecond.
	// Format: UnixNano timestamp + counter, zero padded so it sorts lexically.
	Sequence string `json:"sequence" badgerhold:"index"`
}

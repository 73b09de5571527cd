package models

// Status is the lifecycle state shared by groups and jobs.
//
// Transitions:
//
//	pending -> running -> paused | completed | failed | cancelled
//	paused  -> pending (resume re-enqueues) | cancelled
//
// completed, failed and cancelled are absorbing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the entity is queued or executing
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is wrapped by every ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is wrapped by every NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrJobsActive means the group still has non-terminal jobs
	ErrJobsActive = errors.New("jobs active")
	// ErrInvalidTransition means the action does not apply to the entity's status
	ErrInvalidTransition = errors.New("invalid transition")
)

// ValidationError rejects a creation request. No group is registered.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// NotFoundError references an unknown group or job
type NotFoundError struct {
	Kind string // "group" or "job"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// PreconditionError rejects an action the entity's current state does not allow.
// Err is ErrJobsActive or ErrInvalidTransition.
type PreconditionError struct {
	Kind   string
	ID     string
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// JobFatalError stops a job and marks it failed
type JobFatalError struct {
	JobID string
	Err   error
}

func (e *JobFatalError) Error() string {
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Err)
}

func (e *JobFatalError) Unwrap() error {
	return e.Err
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func invalidTransition(kind, id, reason string) error {
	return &PreconditionError{Kind: kind, ID: id, Reason: reason, Err: ErrInvalidTransition}
}

package common

import (
	"github.com/google/uuid"
)

// NewGroupID generates a unique group ID with the "grp_" prefix
func NewGroupID() string {
	return "grp_" + uuid.New().String()
}

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

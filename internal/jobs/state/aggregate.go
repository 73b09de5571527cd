// Package state computes job progress and derives group status and progress
// from the jobs a group owns. Every function is pure.
package state

import (
	"github.com/ternarybob/slidegen/internal/models"
)

// JobProgress returns nextRowIndex/totalRows, or 1 for a job without rows
func JobProgress(nextRowIndex, totalRows int) float64 {
	if totalRows <= 0 {
		return 1.0
	}
	if nextRowIndex <= 0 {
		return 0
	}
	if nextRowIndex >= totalRows {
		return 1.0
	}
	return float64(nextRowIndex) / float64(totalRows)
}

// GroupProgress is the unweighted mean of job progress values, so every
// worksheet contributes equally regardless of its row count.
func GroupProgress(jobProgress []float64) float64 {
	if len(jobProgress) == 0 {
		return 0
	}
	var sum float64
	for _, p := range jobProgress {
		sum += p
	}
	return sum / float64(len(jobProgress))
}

// DeriveGroupStatus applies the precedence rules:
//
//	any running                      -> running
//	any pending                      -> pending
//	any paused (rest paused/terminal) -> paused
//	all terminal, any failed          -> failed
//	all terminal, any cancelled       -> cancelled
//	otherwise                         -> completed
//
// A group without jobs is completed.
func DeriveGroupStatus(statuses []models.Status) models.Status {
	var running, pending, paused, failed, cancelled bool
	for _, s := range statuses {
		switch s {
		case models.StatusRunning:
			running = true
		case models.StatusPending:
			pending = true
		case models.StatusPaused:
			paused = true
		case models.StatusFailed:
			failed = true
		case models.StatusCancelled:
			cancelled = true
		}
	}

	switch {
	case running:
		return models.StatusRunning
	case pending:
		return models.StatusPending
	case paused:
		return models.StatusPaused
	case failed:
		return models.StatusFailed
	case cancelled:
		return models.StatusCancelled
	default:
		return models.StatusCompleted
	}
}

// Summary is the aggregate view of a group's jobs
type Summary struct {
	Status     models.Status         `json:"status"`
	Progress   float64               `json:"progress"`
	ErrorCount int                   `json:"error_count"`
	Counts     map[models.Status]int `json:"counts"`
}

// Summarize derives status, progress and error total for a set of jobs
func Summarize(jobs []models.Job) Summary {
	statuses := make([]models.Status, 0, len(jobs))
	progress := make([]float64, 0, len(jobs))
	summary := Summary{Counts: make(map[models.Status]int, len(models.AllStatuses))}

	for _, job := range jobs {
		statuses = append(statuses, job.Status)
		progress = append(progress, JobProgress(job.NextRowIndex, job.TotalRows))
		summary.ErrorCount += job.ErrorCount
		summary.Counts[job.Status]++
	}

	summary.Status = DeriveGroupStatus(statuses)
	summary.Progress = GroupProgress(progress)
	return summary
}

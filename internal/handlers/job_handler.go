package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/models"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// JobHandler handles job-related API requests
type JobHandler struct {
	jobs   JobService
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// GetJobHandler returns one job
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	segments := PathSegments(r.URL.Path, "/api/jobs/")
	if len(segments) != 1 {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	job, err := h.jobs.Job(segments[0])
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetJobLogsHandler returns the most recent log entries of a job, oldest first
// GET /api/jobs/{id}/logs?limit=100
func (h *JobHandler) GetJobLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	segments := PathSegments(r.URL.Path, "/api/jobs/")
	if len(segments) != 2 || segments[1] != "logs" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	limit, err := GetLimitParam(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, err := h.jobs.JobLogs(r.Context(), segments[0], limit)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if logs == nil {
		logs = []models.JobLogEntry{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": segments[0],
		"logs":   logs,
		"count":  len(logs),
	})
}

// JobActionHandler applies pause, resume or cancel to one job
// POST /api/jobs/{id}/{action}
func (h *JobHandler) JobActionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	segments := PathSegments(r.URL.Path, "/api/jobs/")
	if len(segments) != 2 {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	var action func(context.Context, string) (models.Job, error)
	switch segments[1] {
	case "pause":
		action = h.jobs.PauseJob
	case "resume":
		action = h.jobs.ResumeJob
	case "cancel":
		action = h.jobs.CancelJob
	default:
		WriteError(w, http.StatusNotFound, "Unknown action: "+segments[1])
		return
	}

	job, err := action(r.Context(), segments[0])
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

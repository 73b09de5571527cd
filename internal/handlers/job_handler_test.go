package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/jobs"
	"github.com/ternarybob/slidegen/internal/models"
)

func TestJobHandler_Get(t *testing.T) {
	service := &mockJobService{}
	service.On("Job", "job_1").Return(models.Job{ID: "job_1", TotalRows: 4, NextRowIndex: 2, Progress: 0.5}, nil)
	service.On("Job", "job_x").Return(models.Job{}, &jobs.NotFoundError{Kind: "job", ID: "job_x"})
	handler := NewJobHandler(service, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.5, decodeBody(t, rec)["progress"])

	rec = httptest.NewRecorder()
	handler.GetJobHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job_x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobHandler_Logs(t *testing.T) {
	service := &mockJobService{}
	service.On("JobLogs", "job_1", defaultLogLimit).Return([]models.JobLogEntry{{JobID: "job_1", Message: "Job started"}}, nil)
	service.On("JobLogs", "job_1", maxLogLimit).Return(nil, nil)
	handler := NewJobHandler(service, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.GetJobLogsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job_1/logs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = httptest.NewRecorder()
	handler.GetJobLogsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job_1/logs?limit=50000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, decodeBody(t, rec)["logs"], "limit is capped and empty logs encode as a list")

	rec = httptest.NewRecorder()
	handler.GetJobLogsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job_1/logs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobHandler_Actions(t *testing.T) {
	service := &mockJobService{}
	service.On("PauseJob", "PauseJob", "job_1").Return(models.Job{ID: "job_1", Status: models.StatusPaused}, nil)
	service.On("CancelJob", "CancelJob", "job_1").Return(models.Job{}, &jobs.PreconditionError{
		Kind: "job", ID: "job_1", Reason: "job is completed", Err: jobs.ErrInvalidTransition,
	})
	handler := NewJobHandler(service, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.JobActionHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/job_1/pause", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.JobActionHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/job_1/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestControlHandler(t *testing.T) {
	service := &mockJobService{}
	service.On("PauseAll", "PauseAll").Return([]models.Group{{ID: "grp_1"}})
	service.On("CancelAll", "CancelAll").Return(nil)
	handler := NewControlHandler(service, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.PauseAllHandler(rec, httptest.NewRequest(http.MethodPost, "/api/control/pause", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["groups"], 1)

	rec = httptest.NewRecorder()
	handler.CancelAllHandler(rec, httptest.NewRequest(http.MethodPost, "/api/control/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, decodeBody(t, rec)["groups"])

	rec = httptest.NewRecorder()
	handler.ResumeAllHandler(rec, httptest.NewRequest(http.MethodGet, "/api/control/resume", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPathSegments(t *testing.T) {
	assert.Equal(t, []string{"g1", "pause"}, PathSegments("/api/groups/g1/pause", "/api/groups/"))
	assert.Equal(t, []string{"g1"}, PathSegments("/api/groups/g1/", "/api/groups/"))
	assert.Nil(t, PathSegments("/api/groups/", "/api/groups/"))
}

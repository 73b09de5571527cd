package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ternarybob/slidegen/internal/models"
)

// mockJobService implements GroupService, JobService and ControlService
type mockJobService struct {
	mock.Mock
}

func (m *mockJobService) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (models.GroupDetail, error) {
	args := m.Called(req)
	return args.Get(0).(models.GroupDetail), args.Error(1)
}

func (m *mockJobService) Groups() []models.Group {
	return m.Called().Get(0).([]models.Group)
}

func (m *mockJobService) GroupDetail(id string) (models.GroupDetail, error) {
	args := m.Called(id)
	return args.Get(0).(models.GroupDetail), args.Error(1)
}

func (m *mockJobService) groupAction(name, id string) (models.Group, error) {
	args := m.MethodCalled(name, name, id)
	return args.Get(0).(models.Group), args.Error(1)
}

func (m *mockJobService) PauseGroup(ctx context.Context, id string) (models.Group, error) {
	return m.groupAction("PauseGroup", id)
}

func (m *mockJobService) ResumeGroup(ctx context.Context, id string) (models.Group, error) {
	return m.groupAction("ResumeGroup", id)
}

func (m *mockJobService) CancelGroup(ctx context.Context, id string) (models.Group, error) {
	return m.groupAction("CancelGroup", id)
}

func (m *mockJobService) RemoveGroup(ctx context.Context, id string) (models.Group, error) {
	return m.groupAction("RemoveGroup", id)
}

func (m *mockJobService) StopGroup(ctx context.Context, id string) (models.Group, error) {
	if _, ok := ctx.Deadline(); !ok {
		panic("StopGroup called without a deadline")
	}
	return m.groupAction("StopGroup", id)
}

func (m *mockJobService) Job(id string) (models.Job, error) {
	args := m.Called(id)
	return args.Get(0).(models.Job), args.Error(1)
}

func (m *mockJobService) JobLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	args := m.Called(jobID, limit)
	logs, _ := args.Get(0).([]models.JobLogEntry)
	return logs, args.Error(1)
}

func (m *mockJobService) jobAction(name, id string) (models.Job, error) {
	args := m.MethodCalled(name, name, id)
	return args.Get(0).(models.Job), args.Error(1)
}

func (m *mockJobService) PauseJob(ctx context.Context, id string) (models.Job, error) {
	return m.jobAction("PauseJob", id)
}

func (m *mockJobService) ResumeJob(ctx context.Context, id string) (models.Job, error) {
	return m.jobAction("ResumeJob", id)
}

func (m *mockJobService) CancelJob(ctx context.Context, id string) (models.Job, error) {
	return m.jobAction("CancelJob", id)
}

func (m *mockJobService) controlAction(name string) []models.Group {
	groups, _ := m.MethodCalled(name, name).Get(0).([]models.Group)
	return groups
}

func (m *mockJobService) PauseAll(ctx context.Context) []models.Group {
	return m.controlAction("PauseAll")
}

func (m *mockJobService) ResumeAll(ctx context.Context) []models.Group {
	return m.controlAction("ResumeAll")
}

func (m *mockJobService) CancelAll(ctx context.Context) []models.Group {
	return m.controlAction("CancelAll")
}

func (m *mockJobService) Running() int {
	return m.Called().Int(0)
}

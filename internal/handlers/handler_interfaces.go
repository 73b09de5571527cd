package handlers

import (
	"context"

	"github.com/ternarybob/slidegen/internal/models"
)

// GroupService is the group half of the job service used by GroupHandler
type GroupService interface {
	CreateGroup(ctx context.Context, req models.CreateGroupRequest) (models.GroupDetail, error)
	Groups() []models.Group
	GroupDetail(id string) (models.GroupDetail, error)
	PauseGroup(ctx context.Context, id string) (models.Group, error)
	ResumeGroup(ctx context.Context, id string) (models.Group, error)
	CancelGroup(ctx context.Context, id string) (models.Group, error)
	RemoveGroup(ctx context.Context, id string) (models.Group, error)
	StopGroup(ctx context.Context, id string) (models.Group, error)
}

// JobService is the job half of the job service used by JobHandler
type JobService interface {
	Job(id string) (models.Job, error)
	JobLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
	PauseJob(ctx context.Context, id string) (models.Job, error)
	ResumeJob(ctx context.Context, id string) (models.Job, error)
	CancelJob(ctx context.Context, id string) (models.Job, error)
}

// ControlService applies an action to every group
type ControlService interface {
	PauseAll(ctx context.Context) []models.Group
	ResumeAll(ctx context.Context) []models.Group
	CancelAll(ctx context.Context) []models.Group
	Running() int
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/slidegen/internal/app"
	"github.com/ternarybob/slidegen/internal/models"
)

// loadRequest reads a group request from a YAML file
func loadRequest(path string) (models.CreateGroupRequest, error) {
	var req models.CreateGroupRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read request file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse request file %s: %w", path, err)
	}
	return req, nil
}

// runOnce creates one group, waits for it to finish and returns the process
// exit code. An interrupt cancels the group before returning.
func runOnce(ctx context.Context, application *app.App, path string, logger arbor.ILogger) int {
	req, err := loadRequest(path)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid request")
		return 2
	}

	detail, err := application.JobService.CreateGroup(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("request", path).Msg("Failed to create group")
		return 2
	}

	logger.Info().
		Str("group_id", detail.Group.ID).
		Int("jobs", len(detail.Jobs)).
		Msg("Group started")

	group, err := application.JobService.WaitGroup(ctx, detail.Group.ID)
	if err != nil {
		logger.Warn().Err(err).Str("group_id", detail.Group.ID).Msg("Interrupted, cancelling group")
		application.JobService.CancelGroup(context.WithoutCancel(ctx), detail.Group.ID)
		return 130
	}

	jobs, _ := application.JobService.GroupJobs(group.ID)
	for _, job := range jobs {
		event := logger.Info()
		if job.Status != models.StatusCompleted {
			event = logger.Warn()
		}
		event.
			Str("sheet", job.SheetName).
			Str("status", string(job.Status)).
			Int("rows", job.TotalRows).
			Str("output", job.OutputPath).
			Int("errors", job.ErrorCount).
			Str("last_error", job.ErrorMessage).
			Msg("Job finished")
	}

	if group.Status != models.StatusCompleted {
		logger.Error().Str("group_id", group.ID).Str("status", string(group.Status)).Msg("Group did not complete")
		return 1
	}
	logger.Info().Str("group_id", group.ID).Msg("Group completed")
	return 0
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/slidegen/internal/models"
)

// enqueuer accepts jobs that are ready to run
type enqueuer interface {
	Enqueue(jobID string)
}

// Coordinator applies pause, resume and cancel requests to jobs and groups
// and keeps group status in step with job transitions.
type Coordinator struct {
	store       *Store
	persistence *Persistence
	notifier    *Notifier
	queue       enqueuer
	logger      arbor.ILogger

	// Serializes snapshot writes with group removal so a removed group is
	// never written back
	mu sync.Mutex
}

// NewCoordinator creates a coordinator. queue receives resumed jobs.
func NewCoordinator(store *Store, persistence *Persistence, notifier *Notifier, queue enqueuer, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		store:       store,
		persistence: persistence,
		notifier:    notifier,
		queue:       queue,
		logger:      logger,
	}
}

// PauseJob pauses a queued job immediately or asks a running loop to park
// after its current row. Pausing a paused job does nothing.
func (c *Coordinator) PauseJob(ctx context.Context, jobID string) (models.Job, error) {
	job, changed, err := c.store.control(jobID, func(e *jobEntry) (bool, error) {
		switch {
		case e.job.Status.IsTerminal():
			return false, invalidTransition("job", jobID, fmt.Sprintf("cannot pause a %s job", e.job.Status))
		case e.job.Status == models.StatusPaused:
			return false, nil
		case e.claimed:
			e.pausePending = true
			return false, nil
		default:
			e.job.Status = models.StatusPaused
			return true, nil
		}
	})
	if err != nil {
		return job, err
	}

	if changed {
		c.OnJobTransition(ctx, job, models.LogLevelInfo, "Job paused")
	} else {
		c.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Pause requested")
	}
	return job, nil
}

// ResumeJob re-enqueues a paused job from its persisted cursor. A running job
// with a pause request keeps running.
func (c *Coordinator) ResumeJob(ctx context.Context, jobID string) (models.Job, error) {
	job, changed, err := c.store.control(jobID, func(e *jobEntry) (bool, error) {
		switch {
		case e.job.Status.IsTerminal():
			return false, invalidTransition("job", jobID, fmt.Sprintf("cannot resume a %s job", e.job.Status))
		case e.claimed:
			e.pausePending = false
			return false, nil
		case e.job.Status == models.StatusPaused:
			e.job.Status = models.StatusPending
			return true, nil
		default:
			return false, nil
		}
	})
	if err != nil {
		return job, err
	}

	if changed {
		c.OnJobTransition(ctx, job, models.LogLevelInfo, fmt.Sprintf("Job resumed at row %d", job.NextRowIndex+1))
		c.queue.Enqueue(job.ID)
	}
	return job, nil
}

// CancelJob cancels a queued or paused job immediately. A running loop is
// signalled and discards its in-flight row.
func (c *Coordinator) CancelJob(ctx context.Context, jobID string) (models.Job, error) {
	job, changed, err := c.store.control(jobID, func(e *jobEntry) (bool, error) {
		switch {
		case e.job.Status.IsTerminal():
			return false, invalidTransition("job", jobID, fmt.Sprintf("cannot cancel a %s job", e.job.Status))
		case e.claimed:
			e.cancelPending = true
			if e.stop != nil {
				e.stop()
			}
			return false, nil
		default:
			e.job.Status = models.StatusCancelled
			now := time.Now()
			e.job.CompletedAt = &now
			return true, nil
		}
	})
	if err != nil {
		return job, err
	}

	if changed {
		c.OnJobTransition(ctx, job, models.LogLevelInfo, "Job cancelled")
	} else {
		c.logger.Debug().Str("job_id", jobID).Msg("Cancel requested")
	}
	return job, nil
}

// PauseGroup pauses every non-terminal job of the group
func (c *Coordinator) PauseGroup(ctx context.Context, groupID string) (models.Group, error) {
	return c.cascade(ctx, groupID, "pause", c.PauseJob)
}

// ResumeGroup resumes every paused job of the group
func (c *Coordinator) ResumeGroup(ctx context.Context, groupID string) (models.Group, error) {
	return c.cascade(ctx, groupID, "resume", c.ResumeJob)
}

// CancelGroup cancels every non-terminal job of the group
func (c *Coordinator) CancelGroup(ctx context.Context, groupID string) (models.Group, error) {
	return c.cascade(ctx, groupID, "cancel", c.CancelJob)
}

func (c *Coordinator) cascade(ctx context.Context, groupID, action string, apply func(context.Context, string) (models.Job, error)) (models.Group, error) {
	group, err := c.store.Group(groupID)
	if err != nil {
		return models.Group{}, err
	}
	if group.Status.IsTerminal() {
		return group, invalidTransition("group", groupID, fmt.Sprintf("cannot %s a %s group", action, group.Status))
	}

	for _, jobID := range group.JobIDs {
		if _, err := apply(ctx, jobID); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			return models.Group{}, err
		}
	}

	c.logger.Info().Str("group_id", groupID).Str("action", action).Msg("Group action applied")
	return c.store.Group(groupID)
}

// PauseAll pauses every non-terminal group
func (c *Coordinator) PauseAll(ctx context.Context) []models.Group {
	return c.all(ctx, c.PauseGroup)
}

// ResumeAll resumes every non-terminal group
func (c *Coordinator) ResumeAll(ctx context.Context) []models.Group {
	return c.all(ctx, c.ResumeGroup)
}

// CancelAll cancels every non-terminal group
func (c *Coordinator) CancelAll(ctx context.Context) []models.Group {
	return c.all(ctx, c.CancelGroup)
}

func (c *Coordinator) all(ctx context.Context, apply func(context.Context, string) (models.Group, error)) []models.Group {
	var affected []models.Group
	for _, group := range c.store.Groups() {
		if group.Status.IsTerminal() {
			continue
		}
		updated, err := apply(ctx, group.ID)
		if err != nil {
			c.logger.Warn().Err(err).Str("group_id", group.ID).Msg("Group action skipped")
			continue
		}
		affected = append(affected, updated)
	}
	return affected
}

// RemoveGroup evicts a group whose jobs are all terminal and deletes its
// snapshots and logs
func (c *Coordinator) RemoveGroup(ctx context.Context, groupID string) (models.Group, error) {
	c.mu.Lock()
	group, _, err := c.store.RemoveGroup(groupID)
	if err != nil {
		c.mu.Unlock()
		return models.Group{}, err
	}
	c.persistence.DeleteGroup(ctx, group)
	c.mu.Unlock()

	c.notifier.GroupRemoved(ctx, group)

	c.logger.Info().Str("group_id", groupID).Msg("Group removed")
	return group, nil
}

// StopGroup cancels a group, waits for every job to reach a terminal status
// and removes it
func (c *Coordinator) StopGroup(ctx context.Context, groupID string) (models.Group, error) {
	if _, err := c.CancelGroup(ctx, groupID); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return models.Group{}, err
	}
	if _, err := c.WaitTerminal(ctx, groupID); err != nil {
		return models.Group{}, err
	}
	return c.RemoveGroup(ctx, groupID)
}

// WaitTerminal blocks until every job of the group is terminal
func (c *Coordinator) WaitTerminal(ctx context.Context, groupID string) (models.Group, error) {
	for {
		changes := c.store.Changes()

		jobs, err := c.store.GroupJobs(groupID)
		if err != nil {
			return models.Group{}, err
		}
		if allTerminal(jobs) {
			return c.store.Group(groupID)
		}

		select {
		case <-ctx.Done():
			return models.Group{}, ctx.Err()
		case <-changes:
		}
	}
}

// OnJobTransition persists and announces a job status change, appends a job
// log entry and re-derives the owning group
func (c *Coordinator) OnJobTransition(ctx context.Context, job models.Job, level, message string) {
	c.mu.Lock()
	// Snapshot the live job: a later transition may already have landed in
	// the store, and the snapshot must never lag behind it
	current, err := c.store.Job(job.ID)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.persistence.SaveJob(ctx, current)
	entry := c.persistence.AppendLog(ctx, models.JobLogEntry{
		JobID:   current.ID,
		GroupID: current.GroupID,
		Level:   level,
		Message: message,
		Data: map[string]interface{}{
			"status":         string(current.Status),
			"next_row_index": current.NextRowIndex,
			"total_rows":     current.TotalRows,
		},
	})
	c.mu.Unlock()

	c.notifier.JobStatusChanged(ctx, current)
	c.notifier.JobProgress(ctx, current)
	c.notifier.JobLog(ctx, entry)

	c.logger.Info().
		Str("job_id", current.ID).
		Str("group_id", current.GroupID).
		Str("status", string(current.Status)).
		Int("next_row_index", current.NextRowIndex).
		Msg(message)

	c.refreshGroup(ctx, current.GroupID, true)
}

// OnJobProgress re-derives the owning group after a committed row
func (c *Coordinator) OnJobProgress(ctx context.Context, job models.Job, errorAdded bool) {
	c.refreshGroup(ctx, job.GroupID, errorAdded)
}

func (c *Coordinator) refreshGroup(ctx context.Context, groupID string, save bool) {
	c.mu.Lock()
	group, changed, err := c.store.RecomputeGroup(groupID)
	if err != nil {
		c.mu.Unlock()
		return
	}
	if save || changed {
		c.persistence.SaveGroup(ctx, group)
	}
	c.mu.Unlock()

	if changed {
		c.logger.Info().
			Str("group_id", group.ID).
			Str("status", string(group.Status)).
			Msg("Group status changed")
		c.notifier.GroupStatusChanged(ctx, group)
	}
	c.notifier.GroupProgress(ctx, group)
}

func (c *Coordinator) log(ctx context.Context, job models.Job, level, message string, data map[string]interface{}) {
	entry := c.persistence.AppendLog(ctx, models.JobLogEntry{
		JobID:   job.ID,
		GroupID: job.GroupID,
		Level:   level,
		Message: message,
		Data:    data,
	})
	c.notifier.JobLog(ctx, entry)

	c.logger.Debug().
		Str("job_id", job.ID).
		Str("level", level).
		Msg(message)
}

func allTerminal(jobs []models.Job) bool {
	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			return false
		}
	}
	return true
}

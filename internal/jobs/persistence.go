package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

const (
	groupKeyPrefix = "group/"
	jobKeyPrefix   = "job/"
)

// Persistence snapshots groups and jobs and records job logs.
// Write failures are logged and counted, never returned to the caller.
type Persistence struct {
	snapshots interfaces.SnapshotStorage
	logs      interfaces.JobLogStorage
	logger    arbor.ILogger

	saveFailures atomic.Int64
	logFailures  atomic.Int64
	sequence     atomic.Uint64
}

// NewPersistence creates a persistence manager over a storage backend
func NewPersistence(storage interfaces.StorageManager, logger arbor.ILogger) *Persistence {
	return &Persistence{
		snapshots: storage.SnapshotStorage(),
		logs:      storage.JobLogStorage(),
		logger:    logger,
	}
}

// SaveGroup writes the group snapshot
func (p *Persistence) SaveGroup(ctx context.Context, group models.Group) {
	p.put(ctx, groupKeyPrefix+group.ID, group)
}

// SaveJob writes the job snapshot
func (p *Persistence) SaveJob(ctx context.Context, job models.Job) {
	p.put(ctx, jobKeyPrefix+job.ID, job)
}

func (p *Persistence) put(ctx context.Context, key string, value interface{}) {
	blob, err := json.Marshal(value)
	if err == nil {
		err = p.snapshots.Put(ctx, key, blob)
	}
	if err != nil {
		p.saveFailures.Add(1)
		p.logger.Warn().Err(err).Str("key", key).Msg("Failed to save snapshot")
	}
}

// RestoreAll loads every snapshot. Running jobs come back paused, jobs whose
// group is missing are deleted, and groups keep only the jobs that restored.
func (p *Persistence) RestoreAll(ctx context.Context) ([]models.Group, []models.Job, error) {
	groupBlobs, err := p.snapshots.GetAll(ctx, groupKeyPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load group snapshots: %w", err)
	}
	jobBlobs, err := p.snapshots.GetAll(ctx, jobKeyPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load job snapshots: %w", err)
	}

	groups := make(map[string]*models.Group, len(groupBlobs))
	order := make([]string, 0, len(groupBlobs))
	for _, blob := range groupBlobs {
		var group models.Group
		if err := json.Unmarshal(blob, &group); err != nil || group.ID == "" {
			p.logger.Warn().Err(err).Msg("Skipping unreadable group snapshot")
			continue
		}
		groups[group.ID] = &group
		order = append(order, group.ID)
	}

	jobs := make(map[string]models.Job, len(jobBlobs))
	for _, blob := range jobBlobs {
		var job models.Job
		if err := json.Unmarshal(blob, &job); err != nil || job.ID == "" {
			p.logger.Warn().Err(err).Msg("Skipping unreadable job snapshot")
			continue
		}

		if _, ok := groups[job.GroupID]; !ok {
			p.logger.Warn().
				Str("job_id", job.ID).
				Str("group_id", job.GroupID).
				Msg("Dropping job without group snapshot")
			p.deleteSnapshot(ctx, jobKeyPrefix+job.ID)
			if err := p.logs.DeleteLogs(ctx, job.ID); err != nil {
				p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to delete job logs")
			}
			continue
		}

		if normalizeRestoredJob(&job) {
			p.SaveJob(ctx, job)
		}
		jobs[job.ID] = job
	}

	restoredGroups := make([]models.Group, 0, len(order))
	restoredJobs := make([]models.Job, 0, len(jobs))
	for _, id := range order {
		group := groups[id]
		kept := group.JobIDs[:0]
		for _, jobID := range group.JobIDs {
			job, ok := jobs[jobID]
			if !ok || job.GroupID != group.ID {
				continue
			}
			kept = append(kept, jobID)
			restoredJobs = append(restoredJobs, job)
		}
		group.JobIDs = kept

		if len(group.JobIDs) == 0 {
			p.logger.Warn().Str("group_id", group.ID).Msg("Dropping group without job snapshots")
			p.deleteSnapshot(ctx, groupKeyPrefix+group.ID)
			continue
		}
		restoredGroups = append(restoredGroups, *group)
	}

	p.logger.Info().
		Int("groups", len(restoredGroups)).
		Int("jobs", len(restoredJobs)).
		Msg("Restored job state")

	return restoredGroups, restoredJobs, nil
}

// normalizeRestoredJob repairs state that cannot be resumed as stored and
// reports whether the job changed
func normalizeRestoredJob(job *models.Job) bool {
	changed := false
	if job.Status == models.StatusRunning || !job.Status.IsValid() {
		job.Status = models.StatusPaused
		changed = true
	}
	if job.NextRowIndex < 0 {
		job.NextRowIndex = 0
		changed = true
	}
	if job.NextRowIndex > job.TotalRows {
		job.NextRowIndex = job.TotalRows
		changed = true
	}
	return changed
}

// DeleteGroup removes the group and job snapshots and the job logs
func (p *Persistence) DeleteGroup(ctx context.Context, group models.Group) {
	for _, jobID := range group.JobIDs {
		p.deleteSnapshot(ctx, jobKeyPrefix+jobID)
		if err := p.logs.DeleteLogs(ctx, jobID); err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to delete job logs")
		}
	}
	p.deleteSnapshot(ctx, groupKeyPrefix+group.ID)
}

func (p *Persistence) deleteSnapshot(ctx context.Context, key string) {
	if err := p.snapshots.Delete(ctx, key); err != nil {
		p.saveFailures.Add(1)
		p.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete snapshot")
	}
}

// AppendLog records a job log entry. Timestamp and Sequence are filled in
// when empty and the entry is mirrored to the application log at debug level.
func (p *Persistence) AppendLog(ctx context.Context, entry models.JobLogEntry) models.JobLogEntry {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Sequence == "" {
		entry.Sequence = fmt.Sprintf("%020d_%010d", entry.Timestamp.UnixNano(), p.sequence.Add(1))
	}

	p.logger.Debug().
		Str("job_id", entry.JobID).
		Str("level", entry.Level).
		Msg(entry.Message)

	if err := p.logs.AppendLog(ctx, entry); err != nil {
		p.logFailures.Add(1)
		p.logger.Warn().Err(err).Str("job_id", entry.JobID).Msg("Failed to append job log")
	}
	return entry
}

// Logs returns the most recent limit log entries for a job, oldest first
func (p *Persistence) Logs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	entries, err := p.logs.GetLogs(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for job %s: %w", jobID, err)
	}
	return entries, nil
}

// SaveFailures returns the number of snapshot writes that failed
func (p *Persistence) SaveFailures() int64 {
	return p.saveFailures.Load()
}

// LogFailures returns the number of job log appends that failed
func (p *Persistence) LogFailures() int64 {
	return p.logFailures.Load()
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

// Config tunes the job service
type Config struct {
	Executor          ExecutorConfig
	ProgressInterval  time.Duration
	MinEventLevel     string
	RetentionSchedule string
	RetentionAge      time.Duration
}

// NewConfig derives the service configuration from the application config
func NewConfig(cfg *common.Config) Config {
	return Config{
		Executor: ExecutorConfig{
			MaxConcurrentJobs: cfg.Jobs.MaxConcurrentJobs,
			WorkDir:           cfg.Jobs.WorkDir,
			DownloadTimeout:   common.ParseDuration(cfg.Downloads.Timeout, 60*time.Second),
		},
		ProgressInterval:  common.ParseDuration(cfg.Notifications.ProgressInterval, 250*time.Millisecond),
		MinEventLevel:     cfg.Logging.MinEventLevel,
		RetentionSchedule: cfg.Jobs.RetentionSchedule,
		RetentionAge:      common.ParseDuration(cfg.Jobs.RetentionAge, 7*24*time.Hour),
	}
}

// Dependencies are the external collaborators of the job service
type Dependencies struct {
	Sheets    interfaces.SheetService
	Slides    interfaces.SlideService
	Downloads interfaces.DownloadService
	Images    interfaces.ImageService
	Events    interfaces.EventService
	Storage   interfaces.StorageManager
}

// Service is the control surface over groups and jobs. Request handlers and
// the CLI talk to it; it never exposes the store's internals.
type Service struct {
	store       *Store
	persistence *Persistence
	notifier    *Notifier
	coordinator *Coordinator
	executor    *Executor
	retention   *Retention
	logger      arbor.ILogger
}

// NewService wires the store, persistence, notifier, coordinator, executor
// and retention sweep
func NewService(config Config, deps Dependencies, logger arbor.ILogger) *Service {
	store := NewStore(deps.Sheets, deps.Slides, logger)
	persistence := NewPersistence(deps.Storage, logger)
	notifier := NewNotifier(deps.Events, config.ProgressInterval, config.MinEventLevel, logger)
	executor := NewExecutor(store, persistence, notifier, deps.Slides, deps.Downloads, deps.Images, config.Executor, logger)
	coordinator := NewCoordinator(store, persistence, notifier, executor, logger)
	executor.SetCoordinator(coordinator)

	return &Service{
		store:       store,
		persistence: persistence,
		notifier:    notifier,
		coordinator: coordinator,
		executor:    executor,
		retention:   NewRetention(coordinator, store, config.RetentionSchedule, config.RetentionAge, logger),
		logger:      logger,
	}
}

// Start restores persisted state, starts the executor and re-enqueues every
// pending job. Jobs that were running when the process stopped come back paused.
func (s *Service) Start(ctx context.Context) error {
	groups, jobs, err := s.persistence.RestoreAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore job state: %w", err)
	}
	s.store.Restore(groups, jobs)
	for _, group := range s.store.Groups() {
		s.persistence.SaveGroup(ctx, group)
	}

	s.executor.Start(ctx)

	queued := 0
	for _, group := range s.store.Groups() {
		jobs, err := s.store.GroupJobs(group.ID)
		if err != nil {
			continue
		}
		for _, job := range jobs {
			if job.Status == models.StatusPending {
				s.executor.Enqueue(job.ID)
				queued++
			}
		}
	}

	if err := s.retention.Start(); err != nil {
		s.executor.Stop()
		return err
	}

	s.logger.Info().
		Int("groups", len(groups)).
		Int("queued_jobs", queued).
		Msg("Job service started")
	return nil
}

// Stop halts the retention sweep and the executor and closes open workbooks
func (s *Service) Stop() {
	s.retention.Stop()
	s.executor.Stop()
	s.store.Close()
	s.logger.Info().Msg("Job service stopped")
}

// CreateGroup registers a group, persists and announces it and queues its jobs
func (s *Service) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (models.GroupDetail, error) {
	group, jobs, err := s.store.CreateGroup(ctx, req)
	if err != nil {
		return models.GroupDetail{}, err
	}

	s.persistence.SaveGroup(ctx, group)
	for _, job := range jobs {
		s.persistence.SaveJob(ctx, job)
	}

	s.notifier.GroupCreated(ctx, group)
	for _, job := range jobs {
		s.notifier.JobCreated(ctx, job)
		message := fmt.Sprintf("Job created for worksheet %s with %d rows", job.SheetName, job.TotalRows)
		s.coordinator.log(ctx, job, models.LogLevelInfo, message, map[string]interface{}{
			"output_path": job.OutputPath,
		})
	}

	for _, job := range jobs {
		if job.Status == models.StatusPending {
			s.executor.Enqueue(job.ID)
		}
	}
	return models.GroupDetail{Group: group, Jobs: jobs}, nil
}

func (s *Service) Group(id string) (models.Group, error) {
	return s.store.Group(id)
}

// GroupDetail returns the group with its jobs
func (s *Service) GroupDetail(id string) (models.GroupDetail, error) {
	group, err := s.store.Group(id)
	if err != nil {
		return models.GroupDetail{}, err
	}
	jobs, err := s.store.GroupJobs(id)
	if err != nil {
		return models.GroupDetail{}, err
	}
	return models.GroupDetail{Group: group, Jobs: jobs}, nil
}

func (s *Service) Job(id string) (models.Job, error) {
	return s.store.Job(id)
}

func (s *Service) Groups() []models.Group {
	return s.store.Groups()
}

func (s *Service) GroupJobs(id string) ([]models.Job, error) {
	return s.store.GroupJobs(id)
}

func (s *Service) PauseGroup(ctx context.Context, id string) (models.Group, error) {
	return s.coordinator.PauseGroup(ctx, id)
}

func (s *Service) ResumeGroup(ctx context.Context, id string) (models.Group, error) {
	return s.coordinator.ResumeGroup(ctx, id)
}

func (s *Service) CancelGroup(ctx context.Context, id string) (models.Group, error) {
	return s.coordinator.CancelGroup(ctx, id)
}

func (s *Service) PauseJob(ctx context.Context, id string) (models.Job, error) {
	return s.coordinator.PauseJob(ctx, id)
}

func (s *Service) ResumeJob(ctx context.Context, id string) (models.Job, error) {
	return s.coordinator.ResumeJob(ctx, id)
}

func (s *Service) CancelJob(ctx context.Context, id string) (models.Job, error) {
	return s.coordinator.CancelJob(ctx, id)
}

func (s *Service) PauseAll(ctx context.Context) []models.Group {
	return s.coordinator.PauseAll(ctx)
}

func (s *Service) ResumeAll(ctx context.Context) []models.Group {
	return s.coordinator.ResumeAll(ctx)
}

func (s *Service) CancelAll(ctx context.Context) []models.Group {
	return s.coordinator.CancelAll(ctx)
}

// RemoveGroup removes a group whose jobs are all terminal
func (s *Service) RemoveGroup(ctx context.Context, id string) (models.Group, error) {
	return s.coordinator.RemoveGroup(ctx, id)
}

// StopGroup cancels a group, waits for its jobs to stop and removes it
func (s *Service) StopGroup(ctx context.Context, id string) (models.Group, error) {
	return s.coordinator.StopGroup(ctx, id)
}

// WaitGroup blocks until every job of the group is terminal
func (s *Service) WaitGroup(ctx context.Context, id string) (models.Group, error) {
	return s.coordinator.WaitTerminal(ctx, id)
}

// JobLogs returns the most recent limit log entries of a job, oldest first
func (s *Service) JobLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	if _, err := s.store.Job(jobID); err != nil {
		return nil, err
	}
	return s.persistence.Logs(ctx, jobID, limit)
}

// Running returns the number of row loops currently executing
func (s *Service) Running() int {
	return s.executor.Running()
}

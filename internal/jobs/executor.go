package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

// ExecutorConfig bounds the row loops
type ExecutorConfig struct {
	MaxConcurrentJobs int
	WorkDir           string        // Per-job scratch directories are created below it
	DownloadTimeout   time.Duration // 0 means no timeout beyond the job context
}

// interruption stops a row loop at a checkpoint. status is the job's next
// status, or empty when the process is shutting down.
type interruption struct {
	status models.Status
	stage  models.CheckpointStage
}

func (i *interruption) Error() string {
	if i.status == "" {
		return fmt.Sprintf("interrupted by shutdown at %s", i.stage)
	}
	return fmt.Sprintf("interrupted (%s) at %s", i.status, i.stage)
}

// Executor runs job row loops on a fixed pool of workers fed by a FIFO queue.
// Jobs waiting in the queue stay pending.
type Executor struct {
	store       *Store
	coordinator *Coordinator
	persistence *Persistence
	notifier    *Notifier
	slides      interfaces.SlideService
	downloads   interfaces.DownloadService
	images      interfaces.ImageService
	config      ExecutorConfig
	logger      arbor.ILogger

	queue   *runQueue
	running atomic.Int32

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExecutor creates an executor. The coordinator is attached with
// SetCoordinator before Start.
func NewExecutor(
	store *Store,
	persistence *Persistence,
	notifier *Notifier,
	slides interfaces.SlideService,
	downloads interfaces.DownloadService,
	images interfaces.ImageService,
	config ExecutorConfig,
	logger arbor.ILogger,
) *Executor {
	if config.MaxConcurrentJobs < 1 {
		config.MaxConcurrentJobs = 1
	}
	if config.WorkDir == "" {
		config.WorkDir = filepath.Join(os.TempDir(), "slidegen")
	}
	return &Executor{
		store:       store,
		persistence: persistence,
		notifier:    notifier,
		slides:      slides,
		downloads:   downloads,
		images:      images,
		config:      config,
		logger:      logger,
		queue:       newRunQueue(),
	}
}

// SetCoordinator attaches the coordinator notified of job transitions
func (e *Executor) SetCoordinator(coordinator *Coordinator) {
	e.coordinator = coordinator
}

// Start launches the worker pool
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		e.logger.Warn().Msg("Executor already running")
		return
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	for i := 0; i < e.config.MaxConcurrentJobs; i++ {
		name := fmt.Sprintf("executor-worker-%d", i+1)
		e.wg.Add(1)
		common.SafeGo(e.logger, name, func() {
			defer e.wg.Done()
			e.work(ctx)
		})
	}

	e.logger.Info().
		Int("workers", e.config.MaxConcurrentJobs).
		Str("work_dir", e.config.WorkDir).
		Msg("Executor started")
}

// Stop cancels every row loop and waits for the workers to exit. Interrupted
// jobs keep their persisted cursor and come back paused on restore.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancel
	e.mu.Unlock()

	e.logger.Info().Msg("Stopping executor...")
	cancel()
	e.wg.Wait()
	e.logger.Info().Msg("Executor stopped")
}

// Enqueue adds a job to the run queue. Jobs that are not pending when a
// worker picks them up are skipped.
func (e *Executor) Enqueue(jobID string) {
	e.queue.push(jobID)
}

// Running returns the number of row loops currently executing
func (e *Executor) Running() int {
	return int(e.running.Load())
}

func (e *Executor) work(ctx context.Context) {
	for {
		jobID, ok := e.queue.pop(ctx)
		if !ok {
			return
		}
		e.run(ctx, jobID)
	}
}

// run owns one job from claim to release
func (e *Executor) run(ctx context.Context, jobID string) {
	runCtx, job, ok := e.store.claim(ctx, jobID)
	if !ok {
		return
	}
	e.running.Add(1)
	defer e.running.Add(-1)

	// Bookkeeping outlives a cancelled run
	bookCtx := context.WithoutCancel(runCtx)

	if job.NextRowIndex > 0 {
		e.coordinator.OnJobTransition(bookCtx, job, models.LogLevelInfo, fmt.Sprintf("Job started at row %d of %d", job.NextRowIndex+1, job.TotalRows))
	} else {
		e.coordinator.OnJobTransition(bookCtx, job, models.LogLevelInfo, fmt.Sprintf("Job started with %d rows", job.TotalRows))
	}

	err := e.processRows(runCtx, bookCtx, job)

	var stop *interruption
	var fatal *JobFatalError
	switch {
	case err == nil:
		e.release(bookCtx, jobID, models.StatusCompleted, "", models.LogLevelInfo, "Job completed")
	case errors.As(err, &stop) && stop.status == "":
		e.store.finish(jobID, "", "")
		e.logger.Info().Str("job_id", jobID).Str("stage", string(stop.stage)).Msg("Job interrupted by shutdown")
	case errors.As(err, &stop):
		e.release(bookCtx, jobID, stop.status, "", models.LogLevelInfo, fmt.Sprintf("Job %s at %s", stop.status, stop.stage))
	case errors.As(err, &fatal):
		e.release(bookCtx, jobID, models.StatusFailed, fatal.Err.Error(), models.LogLevelError, fmt.Sprintf("Job failed: %v", fatal.Err))
	default:
		e.release(bookCtx, jobID, models.StatusFailed, err.Error(), models.LogLevelError, fmt.Sprintf("Job failed: %v", err))
	}
}

func (e *Executor) release(ctx context.Context, jobID string, status models.Status, errMsg, level, message string) {
	job, changed := e.store.finish(jobID, status, errMsg)
	if !changed {
		return
	}
	if job.Status != status {
		message = fmt.Sprintf("Job %s", job.Status)
	}
	e.coordinator.OnJobTransition(ctx, job, level, message)
}

// processRows runs rows from the job's cursor to the end and assembles the
// output. Row errors are absorbed; the returned error is an *interruption or
// a *JobFatalError.
func (e *Executor) processRows(ctx, bookCtx context.Context, job models.Job) error {
	group, err := e.store.Group(job.GroupID)
	if err != nil {
		return &JobFatalError{JobID: job.ID, Err: err}
	}
	workbook, err := e.store.workbook(ctx, job.GroupID)
	if err != nil {
		if stop := e.checkpoint(ctx, job.ID, models.CheckpointBeforeRow, false); stop != nil {
			return stop
		}
		return &JobFatalError{JobID: job.ID, Err: err}
	}

	workDir := filepath.Join(e.config.WorkDir, job.ID)
	defer os.RemoveAll(workDir)

	for i := job.NextRowIndex; i < job.TotalRows; i++ {
		if stop := e.checkpoint(ctx, job.ID, models.CheckpointBeforeRow, true); stop != nil {
			return stop
		}

		row, err := workbook.Row(ctx, job.SheetName, i)
		if err != nil {
			if stop := e.checkpoint(ctx, job.ID, models.CheckpointBeforeRow, false); stop != nil {
				return stop
			}
			return &JobFatalError{JobID: job.ID, Err: fmt.Errorf("read row %d: %w", i+1, err)}
		}

		rowDir := filepath.Join(workDir, fmt.Sprintf("row-%06d", i+1))
		rowErrors, err := e.processRow(ctx, job, group.TemplatePath, i, row, rowDir)
		os.RemoveAll(rowDir)
		if err != nil {
			return err
		}

		if stop := e.checkpoint(ctx, job.ID, models.CheckpointBeforePersistState, false); stop != nil {
			return stop
		}
		if job, err = e.commitRow(bookCtx, job.ID, i, row, rowErrors); err != nil {
			return &JobFatalError{JobID: job.ID, Err: err}
		}
	}

	if stop := e.checkpoint(ctx, job.ID, models.CheckpointBeforePersistState, false); stop != nil {
		return stop
	}
	if err := e.slides.Finalize(ctx, job.OutputPath, job.TotalRows); err != nil {
		if stop := e.checkpoint(ctx, job.ID, models.CheckpointBeforePersistState, false); stop != nil {
			return stop
		}
		return &JobFatalError{JobID: job.ID, Err: fmt.Errorf("finalize %s: %w", job.OutputPath, err)}
	}
	return nil
}

// processRow materializes the row's images and renders the row. It returns
// the row-level errors, or an *interruption or *JobFatalError.
func (e *Executor) processRow(ctx context.Context, job models.Job, templatePath string, index int, row map[string]string, dir string) ([]string, error) {
	var rowErrors []string
	images := make(map[string]string, len(job.ImageConfigs))

	for _, cfg := range job.ImageConfigs {
		cfg = cfg.WithDefaults()
		source, ok := models.FirstValue(row, cfg.Columns)
		if !ok {
			continue
		}

		path, err := e.materializeImage(ctx, job.ID, source, cfg, dir)
		if err != nil {
			var stop *interruption
			if errors.As(err, &stop) {
				return nil, stop
			}
			rowErrors = append(rowErrors, fmt.Sprintf("image %s: %v", cfg.Slot, err))
			continue
		}
		images[cfg.Slot] = path
	}

	if stop := e.checkpoint(ctx, job.ID, models.CheckpointBeforeSlideUpdate, false); stop != nil {
		return nil, stop
	}

	result, err := e.slides.ProcessRow(ctx, interfaces.RowRequest{
		OutputPath:   job.OutputPath,
		TemplatePath: templatePath,
		RowIndex:     index,
		TextConfigs:  job.TextConfigs,
		ImageConfigs: job.ImageConfigs,
		Row:          row,
		Images:       images,
	})
	if err != nil {
		if stop := e.checkpoint(ctx, job.ID, models.CheckpointAfterSlideUpdate, false); stop != nil {
			return nil, stop
		}
		if errors.Is(err, interfaces.ErrSourceUnreadable) {
			return nil, &JobFatalError{JobID: job.ID, Err: err}
		}
		rowErrors = append(rowErrors, err.Error())
	} else {
		rowErrors = append(rowErrors, result.Errors...)
		if result.ImageErrors > 0 && len(result.Errors) == 0 {
			rowErrors = append(rowErrors, fmt.Sprintf("%d image replacements failed", result.ImageErrors))
		}
	}

	if stop := e.checkpoint(ctx, job.ID, models.CheckpointAfterSlideUpdate, false); stop != nil {
		return nil, stop
	}
	return rowErrors, nil
}

// materializeImage resolves, downloads and crops one image source
func (e *Executor) materializeImage(ctx context.Context, jobID, source string, cfg models.ImageConfig, dir string) (string, error) {
	local := source

	if isRemote(source) {
		if stop := e.checkpoint(ctx, jobID, models.CheckpointBeforeCloudResolve, false); stop != nil {
			return "", stop
		}
		url, err := e.downloads.ResolveLink(ctx, source)
		if stop := e.checkpoint(ctx, jobID, models.CheckpointAfterCloudResolve, false); stop != nil {
			return "", stop
		}
		if err != nil {
			return "", fmt.Errorf("resolve link: %w", err)
		}

		if stop := e.checkpoint(ctx, jobID, models.CheckpointBeforeDownload, false); stop != nil {
			return "", stop
		}
		result := e.download(ctx, url, dir)
		if stop := e.checkpoint(ctx, jobID, models.CheckpointAfterDownload, false); stop != nil {
			return "", stop
		}
		if !result.Success {
			if result.Err == nil {
				result.Err = errors.New("download failed")
			}
			return "", fmt.Errorf("download %s: %w", url, result.Err)
		}
		local = result.FilePath
	}

	if stop := e.checkpoint(ctx, jobID, models.CheckpointBeforeImageProcess, false); stop != nil {
		return "", stop
	}
	processed, err := e.images.Process(ctx, local, dir, cfg)
	if stop := e.checkpoint(ctx, jobID, models.CheckpointAfterImageProcess, false); stop != nil {
		return "", stop
	}
	if err != nil {
		return "", fmt.Errorf("process image: %w", err)
	}
	return processed, nil
}

func (e *Executor) download(ctx context.Context, url, dir string) interfaces.DownloadResult {
	if e.config.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.DownloadTimeout)
		defer cancel()
	}
	return e.downloads.Download(ctx, url, dir).Wait()
}

// commitRow advances the cursor past row index, records row errors and
// persists the job before the next row starts
func (e *Executor) commitRow(ctx context.Context, jobID string, index int, row map[string]string, rowErrors []string) (models.Job, error) {
	job, err := e.store.Update(jobID, func(job *models.Job) {
		job.NextRowIndex = index + 1
		if len(rowErrors) > 0 {
			job.ErrorCount++
			job.ErrorMessage = strings.Join(rowErrors, "; ")
		}
	})
	if err != nil {
		return models.Job{ID: jobID}, err
	}
	e.persistence.SaveJob(ctx, job)

	if len(rowErrors) > 0 {
		message := fmt.Sprintf("Row %d failed: %s", index+1, job.ErrorMessage)
		values := make(map[string]interface{}, len(row))
		for k, v := range row {
			values[k] = v
		}
		e.coordinator.log(ctx, job, models.LogLevelWarn, message, map[string]interface{}{
			"row":    index + 1,
			"values": values,
			"errors": rowErrors,
		})
		e.notifier.RowError(ctx, job, index, job.ErrorMessage)
		e.logger.Warn().
			Str("job_id", job.ID).
			Str("sheet", job.SheetName).
			Int("row", index+1).
			Msg(message)
	}

	e.notifier.JobProgress(ctx, job)
	e.coordinator.OnJobProgress(ctx, job, len(rowErrors) > 0)
	return job, nil
}

// checkpoint reports a pending cancel, a shutdown, or, when honorPause is
// set, a pending pause
func (e *Executor) checkpoint(ctx context.Context, jobID string, stage models.CheckpointStage, honorPause bool) *interruption {
	pause, cancel := e.store.pending(jobID)
	switch {
	case cancel:
		return &interruption{status: models.StatusCancelled, stage: stage}
	case ctx.Err() != nil:
		return &interruption{stage: stage}
	case pause && honorPause:
		return &interruption{status: models.StatusPaused, stage: stage}
	}
	return nil
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// runQueue is an unbounded FIFO of job ids
type runQueue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func newRunQueue() *runQueue {
	return &runQueue{notify: make(chan struct{}, 1)}
}

func (q *runQueue) push(jobID string) {
	q.mu.Lock()
	q.items = append(q.items, jobID)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until a job id is available or ctx is done
func (q *runQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			jobID := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Wake another idle worker
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return jobID, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-q.notify:
		}
	}
}

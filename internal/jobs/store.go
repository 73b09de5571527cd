package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/jobs/state"
	"github.com/ternarybob/slidegen/internal/models"
)

// jobEntry is the store's record of a job plus its run-time control state.
// Every field is guarded by Store.mu.
type jobEntry struct {
	job           models.Job
	claimed       bool // A row loop owns the job
	pausePending  bool
	cancelPending bool
	stop          context.CancelFunc // Cancels the owning loop's context
}

type groupEntry struct {
	group    models.Group
	workbook interfaces.Workbook // Opened lazily, closed on removal
}

// Store is the authoritative in-memory registry of groups and jobs.
// All mutations are linearized under one lock; reads return copies.
type Store struct {
	sheets   interfaces.SheetService
	slides   interfaces.SlideService
	validate *validator.Validate
	logger   arbor.ILogger

	mu      sync.RWMutex
	groups  map[string]*groupEntry
	jobs    map[string]*jobEntry
	outputs map[string]string // output path -> owning group id
	changed chan struct{}     // Closed and replaced on every mutation
}

// NewStore creates an empty store
func NewStore(sheets interfaces.SheetService, slides interfaces.SlideService, logger arbor.ILogger) *Store {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Store{
		sheets:   sheets,
		slides:   slides,
		validate: validate,
		logger:   logger,
		groups:   make(map[string]*groupEntry),
		jobs:     make(map[string]*jobEntry),
		outputs:  make(map[string]string),
		changed:  make(chan struct{}),
	}
}

// CreateGroup validates req, opens its workbook and template and registers a
// new group with one job per selected worksheet. Nothing is registered when
// an error is returned.
func (s *Store) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (models.Group, []models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Group{}, nil, validationError(err)
	}

	workbook, err := s.sheets.OpenWorkbook(ctx, req.WorkbookPath)
	if err != nil {
		return models.Group{}, nil, &ValidationError{Field: "workbook_path", Reason: "workbook cannot be opened", Err: err}
	}
	registered := false
	defer func() {
		if !registered {
			workbook.Close()
		}
	}()

	template, err := s.slides.OpenTemplate(ctx, req.TemplatePath)
	if err != nil {
		return models.Group{}, nil, &ValidationError{Field: "template_path", Reason: "template cannot be opened", Err: err}
	}
	for _, cfg := range req.ImageConfigs {
		if !containsString(template.ImageSlots, cfg.Slot) {
			return models.Group{}, nil, &ValidationError{
				Field:  "image_configs",
				Reason: fmt.Sprintf("template has no image slot %q", cfg.Slot),
			}
		}
	}

	worksheets, err := selectWorksheets(workbook.Worksheets(), req.Sheets)
	if err != nil {
		return models.Group{}, nil, err
	}

	now := time.Now()
	group := models.Group{
		ID:           common.NewGroupID(),
		WorkbookPath: req.WorkbookPath,
		TemplatePath: req.TemplatePath,
		OutputFolder: req.OutputFolder,
		TextConfigs:  req.TextConfigs,
		ImageConfigs: req.ImageConfigs,
		Status:       models.StatusPending,
		CreatedAt:    now,
	}
	group = group.Clone()

	jobs := make([]models.Job, 0, len(worksheets))
	usedNames := make(map[string]bool, len(worksheets))
	for _, ws := range worksheets {
		job := models.Job{
			ID:           common.NewJobID(),
			GroupID:      group.ID,
			SheetName:    ws.Name,
			OutputPath:   outputPath(req.OutputFolder, ws.Name, usedNames),
			Status:       models.StatusPending,
			TotalRows:    ws.RowCount,
			TextConfigs:  group.Clone().TextConfigs,
			ImageConfigs: group.Clone().ImageConfigs,
		}
		if job.TotalRows == 0 {
			completedAt := now
			job.Status = models.StatusCompleted
			job.CompletedAt = &completedAt
		}
		group.JobIDs = append(group.JobIDs, job.ID)
		jobs = append(jobs, job)
	}

	s.mu.Lock()
	for _, job := range jobs {
		if owner, ok := s.outputs[outputKey(job.OutputPath)]; ok {
			s.mu.Unlock()
			return models.Group{}, nil, &ValidationError{
				Field:  "output_folder",
				Reason: fmt.Sprintf("output %s is already written by group %s", job.OutputPath, owner),
			}
		}
	}

	entry := &groupEntry{group: group, workbook: workbook}
	s.groups[group.ID] = entry
	for _, job := range jobs {
		s.jobs[job.ID] = &jobEntry{job: job}
		s.outputs[outputKey(job.OutputPath)] = group.ID
	}
	s.refreshGroupLocked(entry)
	registered = true

	created := s.groupCopyLocked(entry)
	createdJobs := s.groupJobsLocked(entry)
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info().
		Str("group_id", created.ID).
		Str("workbook", created.WorkbookPath).
		Int("jobs", len(createdJobs)).
		Msg("Group created")

	return created, createdJobs, nil
}

// Group returns a copy of the group
func (s *Store) Group(id string) (models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return models.Group{}, notFound("group", id)
	}
	return s.groupCopyLocked(g), nil
}

// Job returns a copy of the job
func (s *Store) Job(id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return models.Job{}, notFound("job", id)
	}
	return jobCopy(e), nil
}

// Groups returns copies of every group, oldest first
func (s *Store) Groups() []models.Group {
	s.mu.RLock()
	groups := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, s.groupCopyLocked(g))
	}
	s.mu.RUnlock()

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups
}

// GroupJobs returns copies of a group's jobs in worksheet order
func (s *Store) GroupJobs(id string) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, notFound("group", id)
	}
	return s.groupJobsLocked(g), nil
}

// RemoveGroup evicts a group whose jobs are all terminal
func (s *Store) RemoveGroup(id string) (models.Group, []models.Job, error) {
	s.mu.Lock()

	g, ok := s.groups[id]
	if !ok {
		s.mu.Unlock()
		return models.Group{}, nil, notFound("group", id)
	}
	for _, jobID := range g.group.JobIDs {
		if e, ok := s.jobs[jobID]; ok && (!e.job.Status.IsTerminal() || e.claimed) {
			s.mu.Unlock()
			return models.Group{}, nil, &PreconditionError{
				Kind:   "group",
				ID:     id,
				Reason: fmt.Sprintf("job %s is %s", jobID, e.job.Status),
				Err:    ErrJobsActive,
			}
		}
	}

	removed := s.groupCopyLocked(g)
	removedJobs := s.groupJobsLocked(g)
	for _, job := range removedJobs {
		delete(s.jobs, job.ID)
		if s.outputs[outputKey(job.OutputPath)] == id {
			delete(s.outputs, outputKey(job.OutputPath))
		}
	}
	delete(s.groups, id)
	workbook := g.workbook
	g.workbook = nil
	s.notifyLocked()
	s.mu.Unlock()

	if workbook != nil {
		if err := workbook.Close(); err != nil {
			s.logger.Warn().Err(err).Str("group_id", id).Msg("Failed to close workbook")
		}
	}
	return removed, removedJobs, nil
}

// Update applies fn to a job under the store lock and returns the result
func (s *Store) Update(jobID string, fn func(job *models.Job)) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, notFound("job", jobID)
	}
	fn(&e.job)
	if e.job.NextRowIndex > e.job.TotalRows {
		e.job.NextRowIndex = e.job.TotalRows
	}
	s.notifyLocked()
	return jobCopy(e), nil
}

// RecomputeGroup re-derives a group's status, progress and error count from
// its jobs. It reports whether the status changed.
func (s *Store) RecomputeGroup(id string) (models.Group, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return models.Group{}, false, notFound("group", id)
	}
	changed := s.refreshGroupLocked(g)
	if changed {
		s.notifyLocked()
	}
	return s.groupCopyLocked(g), changed, nil
}

// Restore registers persisted groups and jobs. Jobs whose group is not in
// groups are ignored.
func (s *Store) Restore(groups []models.Group, jobs []models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]models.Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}

	for _, group := range groups {
		entry := &groupEntry{group: group.Clone()}
		entry.group.JobIDs = entry.group.JobIDs[:0]
		for _, jobID := range group.JobIDs {
			job, ok := byID[jobID]
			if !ok || job.GroupID != group.ID {
				continue
			}
			s.jobs[job.ID] = &jobEntry{job: job.Clone()}
			s.outputs[outputKey(job.OutputPath)] = group.ID
			entry.group.JobIDs = append(entry.group.JobIDs, job.ID)
		}
		s.groups[group.ID] = entry
		s.refreshGroupLocked(entry)
	}
	s.notifyLocked()
}

// Changes returns a channel closed on the next mutation
func (s *Store) Changes() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Close releases every open workbook
func (s *Store) Close() {
	s.mu.Lock()
	var workbooks []interfaces.Workbook
	for _, g := range s.groups {
		if g.workbook != nil {
			workbooks = append(workbooks, g.workbook)
			g.workbook = nil
		}
	}
	s.mu.Unlock()

	for _, wb := range workbooks {
		if err := wb.Close(); err != nil {
			s.logger.Warn().Err(err).Str("workbook", wb.Path()).Msg("Failed to close workbook")
		}
	}
}

// control applies a coordinator action to a job entry. fn reports whether
// the job's status changed.
func (s *Store) control(jobID string, fn func(e *jobEntry) (bool, error)) (models.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, false, notFound("job", jobID)
	}
	changed, err := fn(e)
	if err != nil {
		return jobCopy(e), false, err
	}
	s.notifyLocked()
	return jobCopy(e), changed, nil
}

// claim gives the caller exclusive ownership of a pending job and marks it
// running. The returned context is cancelled by a cancel request.
func (s *Store) claim(parent context.Context, jobID string) (context.Context, models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID]
	if !ok || e.claimed || e.job.Status != models.StatusPending {
		return nil, models.Job{}, false
	}

	ctx, cancel := context.WithCancel(parent)
	e.claimed = true
	e.stop = cancel
	e.pausePending = false
	e.cancelPending = false
	e.job.Status = models.StatusRunning
	if e.job.StartedAt == nil {
		now := time.Now()
		e.job.StartedAt = &now
	}
	s.notifyLocked()
	return ctx, jobCopy(e), true
}

// pending reports the control requests waiting for a claimed job
func (s *Store) pending(jobID string) (pause, cancel bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[jobID]
	if !ok {
		return false, true
	}
	return e.pausePending, e.cancelPending
}

// finish sets the final status of a loop and releases the claim in one step.
// An empty status releases the claim without a transition. A cancel request
// that arrived after the loop decided to pause wins.
func (s *Store) finish(jobID string, status models.Status, message string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, false
	}
	if e.stop != nil {
		e.stop()
		e.stop = nil
	}
	if e.cancelPending && status == models.StatusPaused {
		status = models.StatusCancelled
	}
	e.claimed = false
	e.pausePending = false
	e.cancelPending = false

	if status == "" {
		s.notifyLocked()
		return jobCopy(e), false
	}

	e.job.Status = status
	if message != "" {
		e.job.ErrorMessage = message
	}
	if status.IsTerminal() {
		now := time.Now()
		e.job.CompletedAt = &now
	}
	s.notifyLocked()
	return jobCopy(e), true
}

// workbook returns the group's open workbook, reopening it when needed
func (s *Store) workbook(ctx context.Context, groupID string) (interfaces.Workbook, error) {
	s.mu.RLock()
	g, ok := s.groups[groupID]
	var wb interfaces.Workbook
	var path string
	if ok {
		wb = g.workbook
		path = g.group.WorkbookPath
	}
	s.mu.RUnlock()

	if !ok {
		return nil, notFound("group", groupID)
	}
	if wb != nil {
		return wb, nil
	}

	opened, err := s.sheets.OpenWorkbook(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w: %w", path, interfaces.ErrSourceUnreadable, err)
	}

	s.mu.Lock()
	if current, ok := s.groups[groupID]; !ok || current != g {
		s.mu.Unlock()
		opened.Close()
		return nil, notFound("group", groupID)
	}
	if g.workbook != nil {
		existing := g.workbook
		s.mu.Unlock()
		opened.Close()
		return existing, nil
	}
	g.workbook = opened
	s.mu.Unlock()
	return opened, nil
}

func (s *Store) refreshGroupLocked(g *groupEntry) bool {
	summary := state.Summarize(s.groupJobsLocked(g))
	previous := g.group.Status

	g.group.Status = summary.Status
	g.group.Progress = summary.Progress
	g.group.ErrorCount = summary.ErrorCount
	if summary.Status.IsTerminal() {
		if g.group.CompletedAt == nil {
			now := time.Now()
			g.group.CompletedAt = &now
		}
	} else {
		g.group.CompletedAt = nil
	}
	return previous != summary.Status
}

func (s *Store) groupJobsLocked(g *groupEntry) []models.Job {
	jobs := make([]models.Job, 0, len(g.group.JobIDs))
	for _, id := range g.group.JobIDs {
		if e, ok := s.jobs[id]; ok {
			jobs = append(jobs, jobCopy(e))
		}
	}
	return jobs
}

func (s *Store) groupCopyLocked(g *groupEntry) models.Group {
	return g.group.Clone()
}

func (s *Store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func jobCopy(e *jobEntry) models.Job {
	job := e.job.Clone()
	job.Progress = state.JobProgress(job.NextRowIndex, job.TotalRows)
	return job
}

// selectWorksheets returns the requested worksheets in workbook order, or all
// of them when none are requested
func selectWorksheets(available []interfaces.WorksheetInfo, requested []string) ([]interfaces.WorksheetInfo, error) {
	if len(requested) == 0 {
		if len(available) == 0 {
			return nil, &ValidationError{Field: "sheets", Reason: "workbook has no worksheets"}
		}
		return available, nil
	}

	known := make(map[string]bool, len(available))
	for _, ws := range available {
		known[ws.Name] = true
	}
	wanted := make(map[string]bool, len(requested))
	for _, name := range requested {
		if !known[name] {
			return nil, &ValidationError{Field: "sheets", Reason: fmt.Sprintf("worksheet %q not found", name)}
		}
		wanted[name] = true
	}

	selected := make([]interfaces.WorksheetInfo, 0, len(wanted))
	for _, ws := range available {
		if wanted[ws.Name] {
			selected = append(selected, ws)
		}
	}
	return selected, nil
}

// outputPath names a job's output file after its worksheet
func outputPath(folder, sheet string, used map[string]bool) string {
	base := sanitizeFileName(sheet)
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	used[strings.ToLower(name)] = true
	return filepath.Join(folder, name+".pdf")
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(strings.TrimSpace(b.String()), ".")
	if cleaned == "" {
		return "sheet"
	}
	return cleaned
}

func outputKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func validationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return &ValidationError{
			Field:  strings.TrimPrefix(fe.Namespace(), "CreateGroupRequest."),
			Reason: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &ValidationError{Reason: err.Error()}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

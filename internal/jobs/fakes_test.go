package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
	"github.com/ternarybob/slidegen/internal/storage/filesystem"
)

type fakeSheet struct {
	name string
	rows []map[string]string
}

type fakeWorkbook struct {
	path   string
	sheets []fakeSheet
}

func (w *fakeWorkbook) Path() string { return w.path }

func (w *fakeWorkbook) Worksheets() []interfaces.WorksheetInfo {
	infos := make([]interfaces.WorksheetInfo, 0, len(w.sheets))
	for _, s := range w.sheets {
		infos = append(infos, interfaces.WorksheetInfo{Name: s.name, RowCount: len(s.rows)})
	}
	return infos
}

func (w *fakeWorkbook) Row(ctx context.Context, sheet string, index int) (map[string]string, error) {
	for _, s := range w.sheets {
		if s.name == sheet {
			if index < 0 || index >= len(s.rows) {
				return nil, fmt.Errorf("row %d out of range", index)
			}
			return s.rows[index], nil
		}
	}
	return nil, fmt.Errorf("worksheet %s: %w", sheet, interfaces.ErrSourceUnreadable)
}

func (w *fakeWorkbook) Close() error { return nil }

type fakeSheets struct {
	mu        sync.Mutex
	workbooks map[string]*fakeWorkbook
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{workbooks: make(map[string]*fakeWorkbook)}
}

func (f *fakeSheets) add(path string, sheets ...fakeSheet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workbooks[path] = &fakeWorkbook{path: path, sheets: sheets}
}

func (f *fakeSheets) OpenWorkbook(ctx context.Context, path string) (interfaces.Workbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wb, ok := f.workbooks[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return wb, nil
}

type rowHook func(ctx context.Context, req interfaces.RowRequest) (interfaces.RowResult, error)

type fakeSlides struct {
	mu        sync.Mutex
	slots     []string
	hook      rowHook
	rendered  map[string][]int // output path -> rows rendered successfully
	finalized map[string]int
	active    int
	maxActive int
}

func newFakeSlides(slots ...string) *fakeSlides {
	return &fakeSlides{
		slots:     slots,
		rendered:  make(map[string][]int),
		finalized: make(map[string]int),
	}
}

func (f *fakeSlides) setHook(hook rowHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *fakeSlides) OpenTemplate(ctx context.Context, path string) (*interfaces.TemplateInfo, error) {
	if strings.Contains(path, "missing") {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return &interfaces.TemplateInfo{Path: path, ImageSlots: f.slots}, nil
}

func (f *fakeSlides) ProcessRow(ctx context.Context, req interfaces.RowRequest) (interfaces.RowResult, error) {
	f.mu.Lock()
	hook := f.hook
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	result := interfaces.RowResult{}
	if hook != nil {
		var err error
		if result, err = hook(ctx, req); err != nil {
			return result, err
		}
	}

	f.mu.Lock()
	f.rendered[req.OutputPath] = append(f.rendered[req.OutputPath], req.RowIndex)
	f.mu.Unlock()
	return result, nil
}

func (f *fakeSlides) Finalize(ctx context.Context, outputPath string, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized[outputPath] = rows
	return nil
}

func (f *fakeSlides) renderedRows(output string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.rendered[output]...)
}

func (f *fakeSlides) finalizedRows(output string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.finalized[output]
	return rows, ok
}

func (f *fakeSlides) activeRows() (active, max int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.maxActive
}

// fakeDownloads fails every URL containing "bad"
type fakeDownloads struct{}

func (fakeDownloads) ResolveLink(ctx context.Context, url string) (string, error) {
	return url, nil
}

func (fakeDownloads) Download(ctx context.Context, url string, destDir string) interfaces.DownloadHandle {
	if strings.Contains(url, "bad") {
		return &fakeHandle{result: interfaces.DownloadResult{Err: errors.New("404 Not Found")}}
	}
	return &fakeHandle{result: interfaces.DownloadResult{Success: true, FilePath: filepath.Join(destDir, filepath.Base(url))}}
}

type fakeHandle struct {
	result interfaces.DownloadResult
}

func (h *fakeHandle) Progress() interfaces.DownloadProgress { return interfaces.DownloadProgress{} }
func (h *fakeHandle) Pause()                                {}
func (h *fakeHandle) Resume()                               {}
func (h *fakeHandle) Cancel()                               {}
func (h *fakeHandle) Wait() interfaces.DownloadResult       { return h.result }

type fakeImages struct{}

func (fakeImages) Process(ctx context.Context, src string, destDir string, config models.ImageConfig) (string, error) {
	return filepath.Join(destDir, config.Slot+".png"), nil
}

// recordingEvents keeps every published event
type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) (interfaces.SubscriptionID, error) {
	return 0, nil
}

func (r *recordingEvents) Unsubscribe(interfaces.SubscriptionID) error { return nil }

func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return r.Publish(ctx, event)
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) ofType(eventType interfaces.EventType) []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []interfaces.Event
	for _, e := range r.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type harness struct {
	sheets  *fakeSheets
	slides  *fakeSlides
	events  *recordingEvents
	storage interfaces.StorageManager
	service *Service
	outDir  string
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	storage, err := filesystem.NewManager(arbor.NewLogger(), &common.FilesystemConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func newHarness(t *testing.T, maxConcurrent int) *harness {
	t.Helper()
	h := &harness{
		sheets:  newFakeSheets(),
		slides:  newFakeSlides("photo"),
		events:  &recordingEvents{},
		storage: newTestStorage(t),
		outDir:  t.TempDir(),
	}
	h.service = h.newService(t, maxConcurrent)
	return h
}

func (h *harness) newService(t *testing.T, maxConcurrent int) *Service {
	t.Helper()
	config := Config{
		Executor: ExecutorConfig{
			MaxConcurrentJobs: maxConcurrent,
			WorkDir:           t.TempDir(),
			DownloadTimeout:   5 * time.Second,
		},
		MinEventLevel: models.LogLevelInfo,
	}
	return NewService(config, Dependencies{
		Sheets:    h.sheets,
		Slides:    h.slides,
		Downloads: fakeDownloads{},
		Images:    fakeImages{},
		Events:    h.events,
		Storage:   h.storage,
	}, arbor.NewLogger())
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.service.Start(t.Context()))
	t.Cleanup(h.service.Stop)
}

func (h *harness) request(workbook string, sheets ...string) models.CreateGroupRequest {
	return models.CreateGroupRequest{
		WorkbookPath: workbook,
		TemplatePath: "template.md",
		OutputFolder: h.outDir,
		Sheets:       sheets,
		TextConfigs:  []models.TextConfig{{Pattern: "{{name}}", Columns: []string{"name"}}},
	}
}

func (h *harness) waitJob(t *testing.T, jobID string, status models.Status) models.Job {
	t.Helper()
	var job models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.service.Job(jobID)
		return err == nil && job.Status == status
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s (last %s)", jobID, status, job.Status)
	return job
}

func (h *harness) waitGroup(t *testing.T, groupID string) models.Group {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	group, err := h.service.WaitGroup(ctx, groupID)
	require.NoError(t, err)
	// The group snapshot follows the last job transition
	require.Eventually(t, func() bool {
		group, err = h.service.Group(groupID)
		return err == nil && group.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return group
}

func rows(n int, fill func(i int) map[string]string) []map[string]string {
	out := make([]map[string]string, n)
	for i := range out {
		if fill != nil {
			out[i] = fill(i)
		} else {
			out[i] = map[string]string{"name": fmt.Sprintf("row %d", i+1)}
		}
	}
	return out
}

// blockRow makes the hook wait at row index until release is closed.
// entered receives once when the row starts.
func blockRow(index int, entered chan<- struct{}, release <-chan struct{}) rowHook {
	var once sync.Once
	return func(ctx context.Context, req interfaces.RowRequest) (interfaces.RowResult, error) {
		if req.RowIndex != index {
			return interfaces.RowResult{}, nil
		}
		once.Do(func() { entered <- struct{}{} })
		select {
		case <-release:
			return interfaces.RowResult{}, nil
		case <-ctx.Done():
			return interfaces.RowResult{}, ctx.Err()
		}
	}
}

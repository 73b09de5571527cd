package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
	"github.com/ternarybob/slidegen/internal/storage/badger"
)

func TestExecutor_CompletesGroupWithEmptyWorksheet(t *testing.T) {
	h := newHarness(t, 2)
	h.sheets.add("book.xlsx",
		fakeSheet{name: "Sheet1", rows: rows(3, nil)},
		fakeSheet{name: "Sheet2"},
	)
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	require.Len(t, detail.Jobs, 2)

	empty := detail.Jobs[1]
	assert.Equal(t, models.StatusCompleted, empty.Status, "a worksheet without rows completes at creation")
	assert.NotNil(t, empty.CompletedAt)
	assert.Equal(t, 1.0, empty.Progress)

	group := h.waitGroup(t, detail.Group.ID)
	assert.Equal(t, models.StatusCompleted, group.Status)
	assert.Equal(t, 1.0, group.Progress)
	assert.Equal(t, 0, group.ErrorCount)
	assert.NotNil(t, group.CompletedAt)

	job, err := h.service.Job(detail.Jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, job.NextRowIndex)
	assert.Equal(t, []int{0, 1, 2}, h.slides.renderedRows(job.OutputPath))

	finalized, ok := h.slides.finalizedRows(job.OutputPath)
	require.True(t, ok)
	assert.Equal(t, 3, finalized)
	_, ok = h.slides.finalizedRows(empty.OutputPath)
	assert.False(t, ok, "jobs that never ran are not assembled")

	assert.Len(t, h.events.ofType(interfaces.EventGroupCreated), 1)
	assert.Len(t, h.events.ofType(interfaces.EventJobCreated), 2)
	assert.NotEmpty(t, h.events.ofType(interfaces.EventJobStatus))
}

func TestExecutor_RowErrorDoesNotStopJob(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx", fakeSheet{name: "Products", rows: rows(5, func(i int) map[string]string {
		url := fmt.Sprintf("https://images.example.com/ok-%d.jpg", i+1)
		if i == 2 {
			url = "https://images.example.com/bad.jpg"
		}
		return map[string]string{"name": fmt.Sprintf("item %d", i+1), "image": url}
	})})
	h.start(t)

	req := h.request("book.xlsx")
	req.ImageConfigs = []models.ImageConfig{{Slot: "photo", Columns: []string{"image"}}}
	detail, err := h.service.CreateGroup(t.Context(), req)
	require.NoError(t, err)

	group := h.waitGroup(t, detail.Group.ID)
	assert.Equal(t, models.StatusCompleted, group.Status)
	assert.Equal(t, 1, group.ErrorCount)

	job, err := h.service.Job(detail.Jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 5, job.NextRowIndex)
	assert.Equal(t, 1, job.ErrorCount)
	assert.Contains(t, job.ErrorMessage, "bad.jpg")

	rowErrors := h.events.ofType(interfaces.EventJobError)
	require.Len(t, rowErrors, 1)
	payload := rowErrors[0].Payload.(models.JobEvent)
	assert.Equal(t, 3, payload.Row)
	assert.Equal(t, job.ID, payload.JobID)

	logs, err := h.service.JobLogs(t.Context(), job.ID, 0)
	require.NoError(t, err)
	var warnings []models.JobLogEntry
	for _, entry := range logs {
		if entry.Level == models.LogLevelWarn {
			warnings = append(warnings, entry)
		}
	}
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "Row 3")
	assert.EqualValues(t, 3, warnings[0].Data["row"])
}

func TestExecutor_PauseParksAfterCurrentRow(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx", fakeSheet{name: "Sheet1", rows: rows(10, nil)})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h.slides.setHook(blockRow(2, entered, release))
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	jobID := detail.Jobs[0].ID

	<-entered
	job, err := h.service.PauseJob(t.Context(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, job.Status, "a running loop parks at its next row boundary")

	close(release)
	job = h.waitJob(t, jobID, models.StatusPaused)
	assert.Equal(t, 3, job.NextRowIndex)
	assert.Eventually(t, func() bool { return h.service.Running() == 0 }, time.Second, 5*time.Millisecond)

	group, err := h.service.Group(detail.Group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, group.Status)

	_, err = h.service.ResumeJob(t.Context(), jobID)
	require.NoError(t, err)
	job = h.waitJob(t, jobID, models.StatusCompleted)
	assert.Equal(t, 10, job.NextRowIndex)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, h.slides.renderedRows(job.OutputPath))
}

func TestExecutor_PauseGroupParksRunningAndQueuedJobs(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx",
		fakeSheet{name: "A", rows: rows(4, nil)},
		fakeSheet{name: "B", rows: rows(4, nil)},
		fakeSheet{name: "C", rows: rows(4, nil)},
	)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h.slides.setHook(blockRow(1, entered, release))
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	require.Len(t, detail.Jobs, 3)
	groupID := detail.Group.ID

	<-entered
	_, err = h.service.PauseGroup(t.Context(), groupID)
	require.NoError(t, err)
	close(release)

	a := h.waitJob(t, detail.Jobs[0].ID, models.StatusPaused)
	assert.Equal(t, 2, a.NextRowIndex, "the in-flight row commits before the job parks")
	for _, queued := range detail.Jobs[1:] {
		job := h.waitJob(t, queued.ID, models.StatusPaused)
		assert.Equal(t, 0, job.NextRowIndex, "%s never started", job.SheetName)
	}
	assert.Eventually(t, func() bool { return h.service.Running() == 0 }, time.Second, 5*time.Millisecond)

	group, err := h.service.Group(groupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, group.Status)

	_, err = h.service.ResumeGroup(t.Context(), groupID)
	require.NoError(t, err)
	group = h.waitGroup(t, groupID)
	assert.Equal(t, models.StatusCompleted, group.Status)

	for _, created := range detail.Jobs {
		job, err := h.service.Job(created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, job.Status)
		assert.Equal(t, []int{0, 1, 2, 3}, h.slides.renderedRows(job.OutputPath), "%s rendered each row once", job.SheetName)
	}

	cursors := make(map[string]int)
	for _, event := range h.events.ofType(interfaces.EventJobProgress) {
		payload, ok := event.Payload.(models.JobEvent)
		require.True(t, ok)
		last, seen := cursors[payload.JobID]
		if seen {
			assert.GreaterOrEqual(t, payload.NextRowIndex, last, "cursor of %s moved backwards", payload.SheetName)
		}
		cursors[payload.JobID] = payload.NextRowIndex
	}
	assert.Len(t, cursors, 3)
}

func TestExecutor_RespectsConcurrencyCap(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx",
		fakeSheet{name: "A", rows: rows(2, nil)},
		fakeSheet{name: "B", rows: rows(2, nil)},
		fakeSheet{name: "C", rows: rows(2, nil)},
	)

	release := make(chan struct{})
	h.slides.setHook(func(ctx context.Context, req interfaces.RowRequest) (interfaces.RowResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return interfaces.RowResult{}, ctx.Err()
		}
		return interfaces.RowResult{}, nil
	})
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		active, _ := h.slides.activeRows()
		return active == 1
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	jobs, err := h.service.GroupJobs(detail.Group.ID)
	require.NoError(t, err)
	counts := map[models.Status]int{}
	for _, job := range jobs {
		counts[job.Status]++
	}
	assert.Equal(t, 1, counts[models.StatusRunning])
	assert.Equal(t, 2, counts[models.StatusPending])
	assert.Equal(t, 1, h.service.Running())

	close(release)
	group := h.waitGroup(t, detail.Group.ID)
	assert.Equal(t, models.StatusCompleted, group.Status)

	_, maxActive := h.slides.activeRows()
	assert.Equal(t, 1, maxActive)
}

func TestExecutor_CancelDiscardsInFlightRow(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx", fakeSheet{name: "Sheet1", rows: rows(6, nil)})

	entered := make(chan struct{}, 1)
	h.slides.setHook(blockRow(2, entered, make(chan struct{})))
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	jobID := detail.Jobs[0].ID

	<-entered
	_, err = h.service.CancelJob(t.Context(), jobID)
	require.NoError(t, err)

	job := h.waitJob(t, jobID, models.StatusCancelled)
	assert.Equal(t, 2, job.NextRowIndex, "the interrupted row is not committed")
	assert.NotNil(t, job.CompletedAt)
	_, finalized := h.slides.finalizedRows(job.OutputPath)
	assert.False(t, finalized)

	group := h.waitGroup(t, detail.Group.ID)
	assert.Equal(t, models.StatusCancelled, group.Status)
}

func TestExecutor_FatalSourceErrorFailsJob(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx", fakeSheet{name: "Sheet1", rows: rows(4, nil)})
	h.slides.setHook(func(ctx context.Context, req interfaces.RowRequest) (interfaces.RowResult, error) {
		if req.RowIndex == 1 {
			return interfaces.RowResult{}, fmt.Errorf("template vanished: %w", interfaces.ErrSourceUnreadable)
		}
		return interfaces.RowResult{}, nil
	})
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)

	group := h.waitGroup(t, detail.Group.ID)
	assert.Equal(t, models.StatusFailed, group.Status)

	job, err := h.service.Job(detail.Jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, 1, job.NextRowIndex)
	assert.Contains(t, job.ErrorMessage, "template vanished")
}

func TestExecutor_ResumesAfterRestartWithoutRepeatingRows(t *testing.T) {
	logger := arbor.NewLogger()
	badgerConfig := &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "badger")}

	storage, err := badger.NewManager(logger, badgerConfig)
	require.NoError(t, err)

	h := &harness{
		sheets:  newFakeSheets(),
		slides:  newFakeSlides("photo"),
		events:  &recordingEvents{},
		storage: storage,
		outDir:  t.TempDir(),
	}
	h.sheets.add("book.xlsx", fakeSheet{name: "Sheet1", rows: rows(5, nil)})

	entered := make(chan struct{}, 1)
	h.slides.setHook(blockRow(2, entered, make(chan struct{})))

	h.service = h.newService(t, 1)
	require.NoError(t, h.service.Start(t.Context()))

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	jobID := detail.Jobs[0].ID

	<-entered
	h.service.Stop()
	require.NoError(t, storage.Close())

	// Second process over the same store
	storage, err = badger.NewManager(logger, badgerConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	h.storage = storage
	h.slides.setHook(nil)

	h.service = h.newService(t, 1)
	h.start(t)

	job, err := h.service.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, job.Status, "a job running at shutdown restores paused")
	assert.Equal(t, 2, job.NextRowIndex)

	group, err := h.service.Group(detail.Group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, group.Status)

	_, err = h.service.ResumeGroup(t.Context(), detail.Group.ID)
	require.NoError(t, err)

	group = h.waitGroup(t, detail.Group.ID)
	assert.Equal(t, models.StatusCompleted, group.Status)

	job, err = h.service.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, 5, job.NextRowIndex)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, h.slides.renderedRows(job.OutputPath), "every row is rendered exactly once")
}

func TestRunQueue_IsFIFO(t *testing.T) {
	q := newRunQueue()
	q.push("a")
	q.push("b")
	q.push("c")

	ctx, cancel := context.WithCancel(t.Context())
	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.pop(ctx)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	cancel()
	_, ok := q.pop(ctx)
	assert.False(t, ok)
}

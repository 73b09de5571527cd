package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

// Without Start no worker picks jobs up, so every job stays queued
func newIdleHarness(t *testing.T) (*harness, models.GroupDetail) {
	t.Helper()
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx",
		fakeSheet{name: "North", rows: rows(4, nil)},
		fakeSheet{name: "South", rows: rows(4, nil)},
	)
	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	return h, detail
}

func TestCoordinator_PauseQueuedJob(t *testing.T) {
	h, detail := newIdleHarness(t)
	jobID := detail.Jobs[0].ID

	job, err := h.service.PauseJob(t.Context(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, job.Status)

	job, err = h.service.PauseJob(t.Context(), jobID)
	require.NoError(t, err, "pausing a paused job is a no-op")
	assert.Equal(t, models.StatusPaused, job.Status)

	group, err := h.service.Group(detail.Group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, group.Status, "pending outranks paused")

	job, err = h.service.ResumeJob(t.Context(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
}

func TestCoordinator_TerminalJobsRejectActions(t *testing.T) {
	h, detail := newIdleHarness(t)
	jobID := detail.Jobs[0].ID

	job, err := h.service.CancelJob(t.Context(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, job.Status)
	assert.NotNil(t, job.CompletedAt)

	for name, action := range map[string]func(context.Context, string) (models.Job, error){
		"pause":  h.service.PauseJob,
		"resume": h.service.ResumeJob,
		"cancel": h.service.CancelJob,
	} {
		_, err := action(t.Context(), jobID)
		assert.ErrorIs(t, err, ErrInvalidTransition, name)

		var precondition *PreconditionError
		assert.ErrorAs(t, err, &precondition, name)
	}

	_, err = h.service.PauseJob(t.Context(), "job_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_GroupActionsCascade(t *testing.T) {
	h, detail := newIdleHarness(t)
	groupID := detail.Group.ID

	group, err := h.service.PauseGroup(t.Context(), groupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, group.Status)

	jobs, err := h.service.GroupJobs(groupID)
	require.NoError(t, err)
	for _, job := range jobs {
		assert.Equal(t, models.StatusPaused, job.Status)
	}

	group, err = h.service.ResumeGroup(t.Context(), groupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, group.Status)

	group, err = h.service.CancelGroup(t.Context(), groupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, group.Status)
	assert.NotNil(t, group.CompletedAt)

	_, err = h.service.PauseGroup(t.Context(), groupID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCoordinator_AllActionsSpanGroups(t *testing.T) {
	h, first := newIdleHarness(t)
	h.sheets.add("other.xlsx", fakeSheet{name: "Only", rows: rows(2, nil)})
	second, err := h.service.CreateGroup(t.Context(), h.request("other.xlsx"))
	require.NoError(t, err)

	paused := h.service.PauseAll(t.Context())
	assert.Len(t, paused, 2)

	for _, id := range []string{first.Group.ID, second.Group.ID} {
		group, err := h.service.Group(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaused, group.Status)
	}

	assert.Len(t, h.service.ResumeAll(t.Context()), 2)
	assert.Len(t, h.service.CancelAll(t.Context()), 2)
	assert.Empty(t, h.service.CancelAll(t.Context()), "terminal groups are skipped")
}

func TestCoordinator_RemoveGroup(t *testing.T) {
	h, detail := newIdleHarness(t)
	groupID := detail.Group.ID

	_, err := h.service.RemoveGroup(t.Context(), groupID)
	require.ErrorIs(t, err, ErrJobsActive)

	_, err = h.service.CancelGroup(t.Context(), groupID)
	require.NoError(t, err)

	removed, err := h.service.RemoveGroup(t.Context(), groupID)
	require.NoError(t, err)
	assert.Equal(t, groupID, removed.ID)

	_, err = h.service.Group(groupID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.service.Job(detail.Jobs[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, prefix := range []string{groupKeyPrefix, jobKeyPrefix} {
		snapshots, err := h.storage.SnapshotStorage().GetAll(t.Context(), prefix)
		require.NoError(t, err)
		assert.Empty(t, snapshots, prefix)
	}

	logs, err := h.storage.JobLogStorage().GetLogs(t.Context(), detail.Jobs[0].ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	assert.Len(t, h.events.ofType(interfaces.EventGroupRemoved), 1)

	// The output paths are free again
	_, err = h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	assert.NoError(t, err)
}

func TestCoordinator_StopGroupWaitsForRunningJob(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx", fakeSheet{name: "Sheet1", rows: rows(5, nil)})

	entered := make(chan struct{}, 1)
	h.slides.setHook(blockRow(1, entered, make(chan struct{})))
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	<-entered

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	removed, err := h.service.StopGroup(ctx, detail.Group.ID)
	require.NoError(t, err)
	assert.Equal(t, detail.Group.ID, removed.ID)

	_, err = h.service.Group(detail.Group.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_ResumeClearsPendingPause(t *testing.T) {
	h := newHarness(t, 1)
	h.sheets.add("book.xlsx", fakeSheet{name: "Sheet1", rows: rows(4, nil)})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h.slides.setHook(blockRow(1, entered, release))
	h.start(t)

	detail, err := h.service.CreateGroup(t.Context(), h.request("book.xlsx"))
	require.NoError(t, err)
	jobID := detail.Jobs[0].ID
	<-entered

	_, err = h.service.PauseJob(t.Context(), jobID)
	require.NoError(t, err)
	job, err := h.service.ResumeJob(t.Context(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, job.Status)

	close(release)
	job = h.waitJob(t, jobID, models.StatusCompleted)
	assert.Equal(t, 4, job.NextRowIndex)
}

func TestCoordinator_StaleTransitionDoesNotOverwriteSnapshot(t *testing.T) {
	h, detail := newIdleHarness(t)
	jobID := detail.Jobs[0].ID

	_, err := h.service.PauseJob(t.Context(), jobID)
	require.NoError(t, err)

	// Resume reaches the store first, then a cancel lands before resume
	// gets to announce its transition
	resumed, changed, err := h.service.store.control(jobID, func(e *jobEntry) (bool, error) {
		e.job.Status = models.StatusPending
		return true, nil
	})
	require.NoError(t, err)
	require.True(t, changed)

	_, err = h.service.CancelJob(t.Context(), jobID)
	require.NoError(t, err)

	h.service.coordinator.OnJobTransition(t.Context(), resumed, models.LogLevelInfo, "Job resumed")

	live, err := h.service.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, live.Status)

	_, jobs, err := NewPersistence(h.storage, arbor.NewLogger()).RestoreAll(t.Context())
	require.NoError(t, err)
	for _, job := range jobs {
		if job.ID == jobID {
			assert.Equal(t, models.StatusCancelled, job.Status, "the snapshot follows the live job")
		}
	}
}

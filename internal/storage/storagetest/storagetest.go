// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

// RunSnapshotStorageTests exercises the keyed blob contract
func RunSnapshotStorageTests(t *testing.T, storage interfaces.SnapshotStorage) {
	ctx := context.Background()

	t.Run("put and list by prefix", func(t *testing.T) {
		require.NoError(t, storage.Put(ctx, "group/g1", []byte(`{"id":"g1"}`)))
		require.NoError(t, storage.Put(ctx, "group/g2", []byte(`{"id":"g2"}`)))
		require.NoError(t, storage.Put(ctx, "job/j1", []byte(`{"id":"j1"}`)))

		groups, err := storage.GetAll(ctx, "group/")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{`{"id":"g1"}`, `{"id":"g2"}`}, asStrings(groups))

		jobs, err := storage.GetAll(ctx, "job/")
		require.NoError(t, err)
		assert.Equal(t, []string{`{"id":"j1"}`}, asStrings(jobs))
	})

	t.Run("put replaces existing blob", func(t *testing.T) {
		require.NoError(t, storage.Put(ctx, "job/j2", []byte(`{"v":1}`)))
		require.NoError(t, storage.Put(ctx, "job/j2", []byte(`{"v":2}`)))

		jobs, err := storage.GetAll(ctx, "job/")
		require.NoError(t, err)
		assert.Contains(t, asStrings(jobs), `{"v":2}`)
		assert.NotContains(t, asStrings(jobs), `{"v":1}`)
	})

	t.Run("delete removes only the key", func(t *testing.T) {
		require.NoError(t, storage.Delete(ctx, "group/g1"))

		groups, err := storage.GetAll(ctx, "group/")
		require.NoError(t, err)
		assert.Equal(t, []string{`{"id":"g2"}`}, asStrings(groups))
	})

	t.Run("delete missing key is not an error", func(t *testing.T) {
		assert.NoError(t, storage.Delete(ctx, "group/missing"))
	})

	t.Run("empty prefix namespace", func(t *testing.T) {
		blobs, err := storage.GetAll(ctx, "nothing/")
		require.NoError(t, err)
		assert.Empty(t, blobs)
	})
}

// RunJobLogStorageTests exercises append, ordered replay and deletion
func RunJobLogStorageTests(t *testing.T, storage interfaces.JobLogStorage) {
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, storage.AppendLog(ctx, models.JobLogEntry{
			JobID:     "job-a",
			Timestamp: ts,
			Level:     models.LogLevelInfo,
			Message:   fmt.Sprintf("row %d", i+1),
			Data:      map[string]interface{}{"row": i + 1},
			Sequence:  fmt.Sprintf("%020d_%010d", ts.UnixNano(), i),
		}))
	}
	require.NoError(t, storage.AppendLog(ctx, models.JobLogEntry{
		JobID:     "job-b",
		Timestamp: base,
		Level:     models.LogLevelWarn,
		Message:   "other job",
		Sequence:  fmt.Sprintf("%020d_%010d", base.UnixNano(), 99),
	}))

	t.Run("all entries oldest first", func(t *testing.T) {
		logs, err := storage.GetLogs(ctx, "job-a", 0)
		require.NoError(t, err)
		require.Len(t, logs, 5)
		assert.Equal(t, "row 1", logs[0].Message)
		assert.Equal(t, "row 5", logs[4].Message)
		assert.True(t, sort.SliceIsSorted(logs, func(i, j int) bool { return logs[i].Sequence < logs[j].Sequence }))
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		logs, err := storage.GetLogs(ctx, "job-a", 2)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "row 4", logs[0].Message)
		assert.Equal(t, "row 5", logs[1].Message)
	})

	t.Run("delete is scoped to job", func(t *testing.T) {
		require.NoError(t, storage.DeleteLogs(ctx, "job-a"))

		logs, err := storage.GetLogs(ctx, "job-a", 0)
		require.NoError(t, err)
		assert.Empty(t, logs)

		other, err := storage.GetLogs(ctx, "job-b", 0)
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})
}

func asStrings(blobs [][]byte) []string {
	out := make([]string, len(blobs))
	for i, b := range blobs {
		out[i] = string(b)
	}
	return out
}

package badger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/storage/storagetest"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	config := &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "badger")}
	manager, err := NewManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return manager.(*Manager)
}

func TestSnapshotStorage(t *testing.T) {
	storagetest.RunSnapshotStorageTests(t, newTestManager(t).SnapshotStorage())
}

func TestJobLogStorage(t *testing.T) {
	storagetest.RunJobLogStorageTests(t, newTestManager(t).JobLogStorage())
}

func TestSnapshotStorage_SurvivesReopen(t *testing.T) {
	config := &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "badger")}
	logger := arbor.NewLogger()

	first, err := NewManager(logger, config)
	require.NoError(t, err)
	require.NoError(t, first.SnapshotStorage().Put(t.Context(), "job/j1", []byte(`{"next_row_index":3}`)))
	require.NoError(t, first.Close())

	second, err := NewManager(logger, config)
	require.NoError(t, err)
	defer second.Close()

	blobs, err := second.SnapshotStorage().GetAll(t.Context(), "job/")
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	require.JSONEq(t, `{"next_row_index":3}`, string(blobs[0]))
}

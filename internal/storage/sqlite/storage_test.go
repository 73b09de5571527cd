package sqlite

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

	manager, err := NewManager(arbor.NewLogger(), &common.SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")})
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

func TestSnapshotStorage_PrefixIsLiteral(t *testing.T) {
	storage := newTestManager(t).SnapshotStorage()

	require.NoError(t, storage.Put(t.Context(), "job/a", []byte("1")))
	require.NoError(t, storage.Put(t.Context(), "jobXa", []byte("2")))

	// '_' and '%' in a prefix must not act as LIKE wildcards
	blobs, err := storage.GetAll(t.Context(), "job_")
	require.NoError(t, err)
	require.Empty(t, blobs)
}

package filesystem

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
)

// Manager implements the StorageManager interface with one file per snapshot
// and one JSON-lines file per job log.
type Manager struct {
	snapshots *SnapshotStorage
	jobLogs   *JobLogStorage
}

// NewManager creates the storage root and returns a file-backed manager
func NewManager(logger arbor.ILogger, config *common.FilesystemConfig) (interfaces.StorageManager, error) {
	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", config.Path, err)
	}

	logger.Info().Str("path", config.Path).Msg("Filesystem storage manager initialized")

	return &Manager{
		snapshots: NewSnapshotStorage(config.Path, logger),
		jobLogs:   NewJobLogStorage(config.Path, logger),
	}, nil
}

func (m *Manager) SnapshotStorage() interfaces.SnapshotStorage {
	return m.snapshots
}

func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLogs
}

// Close releases nothing; every write is complete when it returns
func (m *Manager) Close() error {
	return nil
}

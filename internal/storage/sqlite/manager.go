package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
)

// Manager implements the StorageManager interface for SQLite
type Manager struct {
	db        *SQLiteDB
	snapshots interfaces.SnapshotStorage
	jobLogs   interfaces.JobLogStorage
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", config.Path).Msg("SQLite storage manager initialized")

	return &Manager{
		db:        db,
		snapshots: &SnapshotStorage{db: db.DB()},
		jobLogs:   &JobLogStorage{db: db.DB()},
	}, nil
}

func (m *Manager) SnapshotStorage() interfaces.SnapshotStorage {
	return m.snapshots
}

func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLogs
}

func (m *Manager) Close() error {
	return m.db.Close()
}

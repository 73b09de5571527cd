// Package storage selects the snapshot and job log backend from configuration.
package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/storage/badger"
	"github.com/ternarybob/slidegen/internal/storage/filesystem"
	"github.com/ternarybob/slidegen/internal/storage/redis"
	"github.com/ternarybob/slidegen/internal/storage/sqlite"
)

// NewStorageManager opens the backend named by config.Type
func NewStorageManager(logger arbor.ILogger, config *common.StorageConfig) (interfaces.StorageManager, error) {
	switch config.Type {
	case "", "badger":
		return badger.NewManager(logger, &config.Badger)
	case "sqlite":
		return sqlite.NewManager(logger, &config.SQLite)
	case "filesystem":
		return filesystem.NewManager(logger, &config.Filesystem)
	case "redis":
		return redis.NewManager(logger, &config.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

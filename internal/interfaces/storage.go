package interfaces

import (
	"context"

	"github.com/ternarybob/slidegen/internal/models"
)

// SnapshotStorage is a keyed blob store for group and job snapshots.
// Writes must be crash-safe: a reader never observes a partially written blob.
type SnapshotStorage interface {
	// Put creates or replaces the blob stored under key
	Put(ctx context.Context, key string, blob []byte) error
	// GetAll returns every blob whose key starts with prefix
	GetAll(ctx context.Context, prefix string) ([][]byte, error)
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// JobLogStorage is an append-only store of job log entries
type JobLogStorage interface {
	AppendLog(ctx context.Context, entry models.JobLogEntry) error
	// GetLogs returns the most recent limit entries for a job, oldest first.
	// limit <= 0 returns every entry.
	GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
	DeleteLogs(ctx context.Context, jobID string) error
}

// StorageManager aggregates the storages of one backend
type StorageManager interface {
	SnapshotStorage() SnapshotStorage
	JobLogStorage() JobLogStorage
	Close() error
}

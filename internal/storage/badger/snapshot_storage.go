package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// snapshotRecord is the stored form of one snapshot blob
type snapshotRecord struct {
	Key       string `badgerhold:"key"`
	Prefix    string `badgerhold:"index"` // Key up to and including the first '/'
	Data      []byte
	UpdatedAt time.Time
}

// SnapshotStorage implements the SnapshotStorage interface for Badger.
// Each Upsert is a single badger transaction, so a snapshot is either fully
// written or not written at all.
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SnapshotStorage) Put(ctx context.Context, key string, blob []byte) error {
	record := &snapshotRecord{
		Key:       key,
		Prefix:    keyPrefix(key),
		Data:      blob,
		UpdatedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(key, record); err != nil {
		return fmt.Errorf("failed to put snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotStorage) GetAll(ctx context.Context, prefix string) ([][]byte, error) {
	var records []snapshotRecord
	query := badgerhold.Where("Prefix").Eq(keyPrefix(prefix)).Index("Prefix").SortBy("Key")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list snapshots with prefix %s: %w", prefix, err)
	}

	blobs := make([][]byte, 0, len(records))
	for _, record := range records {
		if strings.HasPrefix(record.Key, prefix) {
			blobs = append(blobs, record.Data)
		}
	}
	return blobs, nil
}

func (s *SnapshotStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.Store().Delete(key, &snapshotRecord{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

// keyPrefix returns the namespace part of a key ("group/abc" -> "group/")
func keyPrefix(key string) string {
	if i := strings.Index(key, "/"); i >= 0 {
		return key[:i+1]
	}
	return key
}

package filesystem

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
)

const snapshotExt = ".json"

// SnapshotStorage stores each key as <root>/<namespace>/<escaped name>.json,
// where namespace is the key up to its first '/'.
type SnapshotStorage struct {
	root   string
	logger arbor.ILogger
}

// NewSnapshotStorage creates a SnapshotStorage rooted at root
func NewSnapshotStorage(root string, logger arbor.ILogger) *SnapshotStorage {
	return &SnapshotStorage{root: filepath.Join(root, "snapshots"), logger: logger}
}

func (s *SnapshotStorage) Put(ctx context.Context, key string, blob []byte) error {
	return writeBytes(s.path(key), blob)
}

func (s *SnapshotStorage) GetAll(ctx context.Context, prefix string) ([][]byte, error) {
	namespace, namePrefix := splitKey(prefix)
	dir := filepath.Join(s.root, namespace)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), snapshotExt))
		if err != nil || !strings.HasPrefix(name, namePrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	blobs := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue // Deleted between listing and reading
			}
			return nil, fmt.Errorf("read snapshot %s: %w", name, err)
		}
		blobs = append(blobs, data)
	}
	return blobs, nil
}

func (s *SnapshotStorage) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotStorage) path(key string) string {
	namespace, name := splitKey(key)
	return filepath.Join(s.root, namespace, url.PathEscape(name)+snapshotExt)
}

// splitKey separates "group/abc" into ("group", "abc"); keys without a
// namespace land in "_".
func splitKey(key string) (string, string) {
	if i := strings.Index(key, "/"); i >= 0 {
		return url.PathEscape(key[:i]), key[i+1:]
	}
	return "_", key
}

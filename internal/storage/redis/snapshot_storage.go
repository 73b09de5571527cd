package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// SnapshotStorage keeps one string value per snapshot key. SET replaces the
// value atomically.
type SnapshotStorage struct {
	client *redis.Client
	prefix string
}

func (s *SnapshotStorage) Put(ctx context.Context, key string, blob []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, blob, 0).Err(); err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotStorage) GetAll(ctx context.Context, prefix string) ([][]byte, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, escapeGlob(s.prefix+prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshots %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshots %s: %w", prefix, err)
	}

	blobs := make([][]byte, 0, len(values))
	for _, v := range values {
		// Keys deleted between SCAN and MGET come back nil
		if str, ok := v.(string); ok {
			blobs = append(blobs, []byte(str))
		}
	}
	return blobs, nil
}

func (s *SnapshotStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

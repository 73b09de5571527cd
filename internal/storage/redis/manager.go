package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
)

// Manager implements the StorageManager interface on a redis server
type Manager struct {
	client    *redis.Client
	snapshots *SnapshotStorage
	jobLogs   *JobLogStorage
}

// NewManager connects to config.URL and verifies the connection
func NewManager(logger arbor.ILogger, config *common.RedisConfig) (interfaces.StorageManager, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "slidegen"
	}

	logger.Info().Str("addr", opt.Addr).Str("prefix", prefix).Msg("Redis storage manager initialized")

	return &Manager{
		client:    client,
		snapshots: &SnapshotStorage{client: client, prefix: prefix + ":snap:"},
		jobLogs:   &JobLogStorage{client: client, prefix: prefix + ":logs:"},
	}, nil
}

func (m *Manager) SnapshotStorage() interfaces.SnapshotStorage {
	return m.snapshots
}

func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLogs
}

func (m *Manager) Close() error {
	return m.client.Close()
}

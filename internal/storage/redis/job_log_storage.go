package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ternarybob/slidegen/internal/models"
)

// JobLogStorage keeps each job's log as a redis list in append order
type JobLogStorage struct {
	client *redis.Client
	prefix string
}

func (s *JobLogStorage) AppendLog(ctx context.Context, entry models.JobLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.prefix+entry.JobID, payload).Err(); err != nil {
		return fmt.Errorf("append log for job %s: %w", entry.JobID, err)
	}
	return nil
}

func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	values, err := s.client.LRange(ctx, s.prefix+jobID, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read logs for job %s: %w", jobID, err)
	}

	logs := make([]models.JobLogEntry, 0, len(values))
	for _, v := range values {
		var entry models.JobLogEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, s.prefix+jobID).Err(); err != nil {
		return fmt.Errorf("delete logs for job %s: %w", jobID, err)
	}
	return nil
}

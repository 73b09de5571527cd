package filesystem

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/models"
)

// JobLogStorage appends entries as JSON lines to <root>/logs/<job id>.jsonl.
// A torn final line left by a crash is skipped on read.
type JobLogStorage struct {
	dir    string
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobLogStorage creates a JobLogStorage rooted at root
func NewJobLogStorage(root string, logger arbor.ILogger) *JobLogStorage {
	return &JobLogStorage{dir: filepath.Join(root, "logs"), logger: logger}
}

func (s *JobLogStorage) AppendLog(ctx context.Context, entry models.JobLogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(s.path(entry.JobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log for job %s: %w", entry.JobID, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append log for job %s: %w", entry.JobID, err)
	}
	return f.Close()
}

func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path(jobID))
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log for job %s: %w", jobID, err)
	}

	var logs []models.JobLogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry models.JobLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			s.logger.Debug().Str("job_id", jobID).Err(err).Msg("Skipping unreadable log line")
			continue
		}
		logs = append(logs, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log for job %s: %w", jobID, err)
	}

	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Sequence < logs[j].Sequence })
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete log for job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobLogStorage) path(jobID string) string {
	return filepath.Join(s.dir, url.PathEscape(jobID)+".jsonl")
}

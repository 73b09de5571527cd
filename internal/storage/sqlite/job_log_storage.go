package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/slidegen/internal/models"
)

// JobLogStorage is a SQLite-backed implementation of JobLogStorage.
type JobLogStorage struct {
	db *sql.DB
}

func (s *JobLogStorage) AppendLog(ctx context.Context, entry models.JobLogEntry) error {
	var data interface{}
	if len(entry.Data) > 0 {
		raw, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("encode log data: %w", err)
		}
		data = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_logs (job_id, sequence, group_id, timestamp, level, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.JobID, entry.Sequence, entry.GroupID, entry.Timestamp.UTC(), entry.Level, entry.Message, data)
	if err != nil {
		return fmt.Errorf("append log for job %s: %w", entry.JobID, err)
	}
	return nil
}

func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	// Newest first so LIMIT keeps the most recent entries, then flip
	query := `
		SELECT job_id, sequence, group_id, timestamp, level, message, data
		FROM job_logs WHERE job_id = ? ORDER BY sequence DESC`
	args := []interface{}{jobID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var logs []models.JobLogEntry
	for rows.Next() {
		var entry models.JobLogEntry
		var data sql.NullString
		if err := rows.Scan(&entry.JobID, &entry.Sequence, &entry.GroupID, &entry.Timestamp,
			&entry.Level, &entry.Message, &data); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, fmt.Errorf("decode log data: %w", err)
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}

	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_logs WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete logs for job %s: %w", jobID, err)
	}
	return nil
}

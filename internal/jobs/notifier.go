package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
	"golang.org/x/time/rate"
)

var logLevelRank = map[string]int{
	models.LogLevelDebug: 0,
	models.LogLevelInfo:  1,
	models.LogLevelWarn:  2,
	models.LogLevelError: 3,
}

// Notifier turns state changes into events on the event service.
// Progress events are rate limited per group or job; the first and the
// final progress of a job are always published.
type Notifier struct {
	events        interfaces.EventService
	interval      time.Duration
	minEventLevel int
	logger        arbor.ILogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewNotifier creates a notifier. interval <= 0 disables progress throttling.
func NewNotifier(events interfaces.EventService, interval time.Duration, minEventLevel string, logger arbor.ILogger) *Notifier {
	level, ok := logLevelRank[minEventLevel]
	if !ok {
		level = logLevelRank[models.LogLevelInfo]
	}
	return &Notifier{
		events:        events,
		interval:      interval,
		minEventLevel: level,
		logger:        logger,
		limiters:      make(map[string]*rate.Limiter),
	}
}

func (n *Notifier) GroupCreated(ctx context.Context, group models.Group) {
	event := groupEvent(group)
	event.Group = &group
	n.publish(ctx, interfaces.EventGroupCreated, event)
}

func (n *Notifier) JobCreated(ctx context.Context, job models.Job) {
	n.publish(ctx, interfaces.EventJobCreated, jobEvent(job))
}

func (n *Notifier) GroupStatusChanged(ctx context.Context, group models.Group) {
	n.publish(ctx, interfaces.EventGroupStatus, groupEvent(group))
}

func (n *Notifier) JobStatusChanged(ctx context.Context, job models.Job) {
	n.publish(ctx, interfaces.EventJobStatus, jobEvent(job))
}

// GroupProgress publishes group progress unless one was sent within the interval
func (n *Notifier) GroupProgress(ctx context.Context, group models.Group) {
	if !n.allow(group.ID) && !group.Status.IsTerminal() {
		return
	}
	n.publish(ctx, interfaces.EventGroupProgress, groupEvent(group))
}

// JobProgress publishes job progress unless one was sent within the interval
func (n *Notifier) JobProgress(ctx context.Context, job models.Job) {
	final := job.NextRowIndex >= job.TotalRows
	if !n.allow(job.ID) && !final {
		return
	}
	n.publish(ctx, interfaces.EventJobProgress, jobEvent(job))
}

// RowError reports a failed row. row is the 0-based row index.
func (n *Notifier) RowError(ctx context.Context, job models.Job, row int, message string) {
	event := jobEvent(job)
	event.Row = row + 1
	event.Message = message
	event.Level = models.LogLevelWarn
	n.publish(ctx, interfaces.EventJobError, event)
}

// JobLog publishes a log entry at or above the configured minimum level
func (n *Notifier) JobLog(ctx context.Context, entry models.JobLogEntry) {
	if rank, ok := logLevelRank[entry.Level]; ok && rank < n.minEventLevel {
		return
	}
	n.publish(ctx, interfaces.EventJobLog, models.JobEvent{
		JobID:     entry.JobID,
		GroupID:   entry.GroupID,
		Message:   entry.Message,
		Level:     entry.Level,
		Data:      entry.Data,
		Timestamp: entry.Timestamp,
	})
}

func (n *Notifier) GroupRemoved(ctx context.Context, group models.Group) {
	n.publish(ctx, interfaces.EventGroupRemoved, groupEvent(group))
	n.Forget(append([]string{group.ID}, group.JobIDs...)...)
}

// Forget drops the progress limiters of removed entities
func (n *Notifier) Forget(ids ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		delete(n.limiters, id)
	}
}

func (n *Notifier) allow(id string) bool {
	if n.interval <= 0 {
		return true
	}

	n.mu.Lock()
	limiter, ok := n.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(n.interval), 1)
		n.limiters[id] = limiter
	}
	n.mu.Unlock()

	return limiter.Allow()
}

func (n *Notifier) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if n.events == nil {
		return
	}
	event := interfaces.Event{Type: eventType, Payload: payload}
	if err := n.events.Publish(ctx, event); err != nil {
		n.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

func groupEvent(group models.Group) models.GroupEvent {
	return models.GroupEvent{
		GroupID:    group.ID,
		Status:     group.Status,
		Progress:   group.Progress,
		ErrorCount: group.ErrorCount,
		Timestamp:  time.Now(),
	}
}

func jobEvent(job models.Job) models.JobEvent {
	return models.JobEvent{
		JobID:        job.ID,
		GroupID:      job.GroupID,
		SheetName:    job.SheetName,
		Status:       job.Status,
		NextRowIndex: job.NextRowIndex,
		TotalRows:    job.TotalRows,
		Progress:     job.Progress,
		ErrorCount:   job.ErrorCount,
		Message:      job.ErrorMessage,
		Timestamp:    time.Now(),
	}
}

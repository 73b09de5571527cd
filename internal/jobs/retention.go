package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Retention periodically removes terminal groups that finished longer ago
// than the configured age
type Retention struct {
	coordinator *Coordinator
	store       *Store
	schedule    string
	maxAge      time.Duration
	logger      arbor.ILogger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRetention creates a retention sweep. An empty schedule disables it.
func NewRetention(coordinator *Coordinator, store *Store, schedule string, maxAge time.Duration, logger arbor.ILogger) *Retention {
	return &Retention{
		coordinator: coordinator,
		store:       store,
		schedule:    schedule,
		maxAge:      maxAge,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start registers the sweep with the cron scheduler
func (r *Retention) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" || r.running {
		return nil
	}
	if _, err := r.cron.AddFunc(r.schedule, func() {
		r.Sweep(context.Background(), time.Now())
	}); err != nil {
		return fmt.Errorf("failed to add retention sweep: %w", err)
	}
	r.cron.Start()
	r.running = true

	r.logger.Info().
		Str("schedule", r.schedule).
		Str("max_age", r.maxAge.String()).
		Msg("Retention sweep scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running sweep
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
}

// Sweep removes every terminal group completed at least maxAge before now and
// returns the removed group ids
func (r *Retention) Sweep(ctx context.Context, now time.Time) []string {
	var removed []string
	for _, group := range r.store.Groups() {
		if !group.Status.IsTerminal() || group.CompletedAt == nil {
			continue
		}
		if now.Sub(*group.CompletedAt) < r.maxAge {
			continue
		}
		if _, err := r.coordinator.RemoveGroup(ctx, group.ID); err != nil {
			r.logger.Warn().Err(err).Str("group_id", group.ID).Msg("Retention sweep could not remove group")
			continue
		}
		removed = append(removed, group.ID)
	}

	if len(removed) > 0 {
		r.logger.Info().Int("removed", len(removed)).Msg("Retention sweep removed groups")
	}
	return removed
}

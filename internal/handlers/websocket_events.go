package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

// EventSubscriber bridges the event service to WebSocket clients with
// config-driven filtering and per-entity throttling
type EventSubscriber struct {
	handler        *WebSocketHandler
	eventService   interfaces.EventService
	logger         arbor.ILogger
	allowedEvents  map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	intervals      map[string]time.Duration // Throttle interval per event type
	mu             sync.Mutex
	throttlers     map[string]*rate.Limiter // Keyed by event type and entity ID
	subscriptionID interfaces.SubscriptionID
	subscribed     bool
}

// NewEventSubscriber creates an event subscriber and subscribes it to every event type
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:       handler,
		eventService:  eventService,
		logger:        logger,
		allowedEvents: make(map[string]bool),
		intervals:     make(map[string]time.Duration),
		throttlers:    make(map[string]*rate.Limiter),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
				continue
			}
			s.intervals[eventType] = duration
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	id, err := eventService.Subscribe(interfaces.EventAll, s.handleEvent)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to subscribe WebSocket bridge to events")
		return s
	}
	s.subscriptionID = id
	s.subscribed = true

	logger.Debug().
		Int("allowed_events", len(s.allowedEvents)).
		Int("throttled_events", len(s.intervals)).
		Msg("EventSubscriber registered for all events")
	return s
}

// Close unsubscribes from the event service
func (s *EventSubscriber) Close() {
	if s.subscribed {
		s.eventService.Unsubscribe(s.subscriptionID)
		s.subscribed = false
	}
}

func (s *EventSubscriber) handleEvent(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(event) {
		return nil
	}
	s.handler.Broadcast(WSMessage{
		Type:    string(event.Type),
		Payload: event.Payload,
	})
	return nil
}

// shouldBroadcastEvent checks the whitelist, then the throttle for the
// event's entity. Final events always pass and drop their throttler.
func (s *EventSubscriber) shouldBroadcastEvent(event interfaces.Event) bool {
	eventType := string(event.Type)
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	interval, ok := s.intervals[eventType]
	if !ok || interval <= 0 {
		return true
	}

	key := eventType + ":" + entityID(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	if isFinal(event) {
		delete(s.throttlers, key)
		return true
	}
	limiter, ok := s.throttlers[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		s.throttlers[key] = limiter
	}
	return limiter.Allow()
}

func entityID(event interfaces.Event) string {
	switch payload := event.Payload.(type) {
	case models.JobEvent:
		return payload.JobID
	case models.GroupEvent:
		return payload.GroupID
	}
	return ""
}

func isFinal(event interfaces.Event) bool {
	switch payload := event.Payload.(type) {
	case models.JobEvent:
		return payload.Status.IsTerminal() || (payload.TotalRows > 0 && payload.NextRowIndex >= payload.TotalRows)
	case models.GroupEvent:
		return payload.Status.IsTerminal()
	}
	return false
}

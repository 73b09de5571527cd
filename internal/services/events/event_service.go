package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
)

// DefaultBufferSize is the per-subscriber queue length used by NewService
const DefaultBufferSize = 256

type delivery struct {
	ctx   context.Context
	event interfaces.Event
}

type subscription struct {
	id        interfaces.SubscriptionID
	eventType interfaces.EventType
	handler   interfaces.EventHandler
	queue     chan delivery
	done      chan struct{}
}

// Service implements EventService with pub/sub pattern.
// Each subscriber has its own queue drained by one goroutine, so Publish never
// waits on a handler and every subscriber sees events in publish order.
// When a subscriber's queue is full the event is dropped for that subscriber.
type Service struct {
	subscribers map[interfaces.SubscriptionID]*subscription
	nextID      interfaces.SubscriptionID
	bufferSize  int
	closed      bool
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return NewServiceWithBuffer(logger, DefaultBufferSize)
}

// NewServiceWithBuffer creates an event service with a custom per-subscriber queue length
func NewServiceWithBuffer(logger arbor.ILogger, bufferSize int) *Service {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Service{
		subscribers: make(map[interfaces.SubscriptionID]*subscription),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (interfaces.SubscriptionID, error) {
	if handler == nil {
		return 0, fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("event service is closed")
	}

	s.nextID++
	sub := &subscription{
		id:        s.nextID,
		eventType: eventType,
		handler:   handler,
		queue:     make(chan delivery, s.bufferSize),
		done:      make(chan struct{}),
	}
	s.subscribers[sub.id] = sub

	common.SafeGo(s.logger, fmt.Sprintf("event-subscriber-%d", sub.id), func() {
		s.deliver(sub)
	})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers)).
		Msg("Event handler subscribed")

	return sub.id, nil
}

// Unsubscribe removes a handler registration and waits for its queue to drain
func (s *Service) Unsubscribe(id interfaces.SubscriptionID) error {
	s.mu.Lock()
	sub, ok := s.subscribers[id]
	if ok {
		delete(s.subscribers, id)
		close(sub.queue)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("subscription not found: %d", id)
	}

	<-sub.done
	s.logger.Debug().
		Str("event_type", string(sub.eventType)).
		Msg("Event handler unsubscribed")
	return nil
}

// Publish queues an event for every matching subscriber and returns immediately
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	ctx = context.WithoutCancel(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("event service is closed")
	}

	dropped := 0
	for _, sub := range s.subscribers {
		if !matches(sub.eventType, event.Type) {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: ctx, event: event}:
		default:
			dropped++
		}
	}

	if dropped > 0 {
		s.logger.Warn().
			Str("event_type", string(event.Type)).
			Int("dropped", dropped).
			Msg("Subscriber queue full, event dropped")
	}
	return nil
}

// PublishSync calls every matching handler and waits for all of them
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	var handlers []interfaces.EventHandler
	for _, sub := range s.subscribers {
		if matches(sub.eventType, event.Type) {
			handlers = append(handlers, sub.handler)
		}
	}
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors", len(errs))
	}

	return nil
}

// Close stops accepting events and waits for queued deliveries to finish
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subscribers))
	for id, sub := range s.subscribers {
		close(sub.queue)
		subs = append(subs, sub)
		delete(s.subscribers, id)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}

	s.logger.Info().Msg("Event service closed")
	return nil
}

func (s *Service) deliver(sub *subscription) {
	defer close(sub.done)

	for d := range sub.queue {
		s.call(sub, d)
	}
}

// call isolates handler panics so one bad delivery does not stop the subscriber
func (s *Service) call(sub *subscription, d delivery) {
	defer common.Recover(s.logger, "event-handler")

	if err := sub.handler(d.ctx, d.event); err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", string(d.event.Type)).
			Msg("Event handler failed")
	}
}

func matches(subscribed, published interfaces.EventType) bool {
	return subscribed == interfaces.EventAll || subscribed == published
}

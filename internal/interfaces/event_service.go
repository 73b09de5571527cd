package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventGroupCreated  EventType = "group_created"
	EventGroupStatus   EventType = "group_status"
	EventGroupProgress EventType = "group_progress"
	EventGroupRemoved  EventType = "group_removed"
	EventJobCreated    EventType = "job_created"
	EventJobStatus     EventType = "job_status"
	EventJobProgress   EventType = "job_progress"
	EventJobError      EventType = "job_error"
	EventJobLog        EventType = "job_log"

	// EventAll subscribes a handler to every event type
	EventAll EventType = "*"
)

// Event represents a system event. Payload is a models.GroupEvent or models.JobEvent.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID identifies a handler registration for Unsubscribe
type SubscriptionID uint64

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type (EventAll for every type)
	Subscribe(eventType EventType, handler EventHandler) (SubscriptionID, error)

	// Unsubscribe removes a handler registration
	Unsubscribe(id SubscriptionID) error

	// Publish an event to all subscribers without waiting for them
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}

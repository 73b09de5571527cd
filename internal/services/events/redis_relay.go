package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
)

// RedisRelay republishes every event as JSON on a redis pub/sub channel so
// processes outside this one can follow job progress.
type RedisRelay struct {
	client  *redis.Client
	channel string
	events  interfaces.EventService
	subID   interfaces.SubscriptionID
	logger  arbor.ILogger
}

// NewRedisRelay connects to redis and subscribes to every event type
func NewRedisRelay(config common.RedisNotificationsConfig, eventService interfaces.EventService, logger arbor.ILogger) (*RedisRelay, error) {
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

	relay := &RedisRelay{
		client:  client,
		channel: config.Channel,
		events:  eventService,
		logger:  logger,
	}

	relay.subID, err = eventService.Subscribe(interfaces.EventAll, relay.handle)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info().Str("addr", opt.Addr).Str("channel", config.Channel).Msg("Redis event relay started")
	return relay, nil
}

func (r *RedisRelay) handle(ctx context.Context, event interfaces.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s to redis: %w", event.Type, err)
	}
	return nil
}

// Close unsubscribes and closes the redis connection
func (r *RedisRelay) Close() error {
	if err := r.events.Unsubscribe(r.subID); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to unsubscribe redis relay")
	}
	return r.client.Close()
}

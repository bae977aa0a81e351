package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisSource bridges events published on a Redis pub/sub channel into
// the dispatcher — useful when device-state or webhook producers run in
// a separate process (a Home Assistant bridge, an ingress proxy) and
// publish over Redis rather than calling into this process directly.
// Wired in to exercise the pack's redis/go-redis dependency for a
// cross-process event transport, the same role Redis plays in sibling
// pack repos' job-queue/pubsub layers.
type RedisSource struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
}

func NewRedisSource(client *redis.Client, channel string) *RedisSource {
	return &RedisSource{client: client, channel: channel}
}

func (s *RedisSource) Name() string { return "redis:" + s.channel }

func (s *RedisSource) Start(ctx context.Context, publish func(Event)) error {
	s.pubsub = s.client.Subscribe(ctx, s.channel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}
	ch := s.pubsub.Channel()
	go func() {
		for msg := range ch {
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				slog.Warn("events: redis message is not valid JSON", "channel", s.channel, "error", err)
				continue
			}
			publish(e)
		}
	}()
	return nil
}

func (s *RedisSource) Stop(ctx context.Context) error {
	if s.pubsub == nil {
		return nil
	}
	return s.pubsub.Close()
}

// Publish writes an event onto the Redis channel for other processes'
// RedisSource subscribers to pick up.
func Publish(ctx context.Context, client *redis.Client, channel string, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return client.Publish(ctx, channel, b).Err()
}

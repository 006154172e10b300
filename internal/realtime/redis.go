package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/madhatter5501/leadboard/kanban"
)

// DefaultRedisChannel is the pub/sub channel lead changes travel on.
const DefaultRedisChannel = "leads:changes"

// RedisFeed shares lead changes between several server processes over redis pub/sub.
type RedisFeed struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisFeed connects to redis at addr and verifies the connection.
func NewRedisFeed(ctx context.Context, addr, password string, db int, channel string, logger *slog.Logger) (*RedisFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisFeedFromClient(client, channel, logger), nil
}

// NewRedisFeedFromClient wraps an existing client.
func NewRedisFeedFromClient(client *redis.Client, channel string, logger *slog.Logger) *RedisFeed {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{client: client, channel: channel, logger: logger}
}

// Publish implements Publisher.
func (f *RedisFeed) Publish(ctx context.Context, ev kanban.ChangeEvent) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe implements Subscriber.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan kanban.ChangeEvent, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", f.channel, err)
	}

	out := make(chan kanban.ChangeEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					f.logger.Warn("Ignoring malformed change event", "channel", f.channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements io.Closer.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}

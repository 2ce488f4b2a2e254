package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
	"github.com/YusufTuran34/ContentOrganizerEvent/messagebus"
)

// Broker is a messagebus.Broker over Redis pub/sub, wire-compatible with the
// producers that publish stage events to Redis channels. Redis pub/sub does
// not redeliver: a failed handler is logged and the message is lost, so
// deployments that need at-least-once semantics should prefer the NATS
// broker and keep this one at the edge facing the legacy producers.
type Broker struct {
	client *redis.Client
}

// NewBroker connects to Redis and verifies the connection.
func NewBroker(ctx context.Context, addr, password string, db int) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Broker{client: client}, nil
}

// Publish sends an encoded envelope to a channel.
func (b *Broker) Publish(ctx context.Context, channel string, env event.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to Redis channel %s: %w", channel, err)
	}
	slog.DebugContext(ctx, "Event published", "channel", channel, "eventID", env.EventID)
	return nil
}

// Subscribe pumps messages from a Redis channel into the handler until the
// context is cancelled.
func (b *Broker) Subscribe(ctx context.Context, channel, subscriberID string, handler messagebus.Handler) error {
	pubsub := b.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed before returning so callers
	// cannot publish into a not-yet-attached channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}

	go func() {
		defer pubsub.Close()
		slog.InfoContext(ctx, "Subscriber started", "channel", channel, "subscriberID", subscriberID)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "Subscriber stopping", "channel", channel, "subscriberID", subscriberID)
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if err := handler(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
					slog.ErrorContext(ctx, "Handler failed to process message, Redis cannot redeliver",
						"error", err, "channel", msg.Channel)
				}
			}
		}
	}()

	return nil
}

// Close closes the underlying Redis client.
func (b *Broker) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
	"github.com/YusufTuran34/ContentOrganizerEvent/messagebus"
)

// Broker is a messagebus.Broker backed by NATS JetStream. Streams give the
// at-least-once delivery the coordinator is designed around; ordering is
// still not guaranteed once consumers redeliver.
type Broker struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewBroker connects to NATS and opens a JetStream context.
func NewBroker(url string) (*Broker, error) {
	nc, err := nats.Connect(
		url,
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Broker{conn: nc, js: js}, nil
}

// ensureStream creates the stream for a channel when it does not exist yet.
func (b *Broker) ensureStream(ctx context.Context, channel string) error {
	_, err := b.js.StreamInfo(channel)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for %s: %w", channel, err)
	}
	slog.InfoContext(ctx, "Stream not found, creating it", "stream", channel)
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     channel,
		Subjects: []string{fmt.Sprintf("%s.*", channel)},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", channel, err)
	}
	return nil
}

// Publish sends an envelope to a channel. The event ID suffixes the subject
// so messages spread across stream subjects without the broker having to
// interpret the payload.
func (b *Broker) Publish(ctx context.Context, channel string, env event.Envelope) error {
	if err := b.ensureStream(ctx, channel); err != nil {
		return err
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.%s", channel, env.EventID.String())
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	slog.DebugContext(ctx, "Event published", "channel", channel, "subject", subject, "eventID", env.EventID)
	return nil
}

// Subscribe creates a durable pull consumer and pumps raw message bytes into
// the handler. A handler error naks the message for redelivery; success acks.
func (b *Broker) Subscribe(ctx context.Context, channel, subscriberID string, handler messagebus.Handler) error {
	if err := b.ensureStream(ctx, channel); err != nil {
		return err
	}

	consumerName := fmt.Sprintf("%s-%s", channel, subscriberID)
	sub, err := b.js.PullSubscribe(
		fmt.Sprintf("%s.*", channel),
		consumerName,
		nats.PullMaxWaiting(128),
	)
	if err != nil {
		return fmt.Errorf("failed to create pull subscription for %s: %w", channel, err)
	}

	go func() {
		slog.InfoContext(ctx, "Subscriber started", "channel", channel, "subscriberID", subscriberID)
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "Subscriber stopping", "channel", channel, "subscriberID", subscriberID)
				return
			default:
				msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
				if err != nil {
					if !errors.Is(err, nats.ErrTimeout) {
						slog.ErrorContext(ctx, "Failed to fetch messages", "error", err, "channel", channel)
					}
					continue
				}

				for _, msg := range msgs {
					if err := handler(ctx, channel, msg.Data); err != nil {
						slog.ErrorContext(ctx, "Handler failed to process message", "error", err, "channel", channel)
						msg.Nak()
					} else {
						msg.Ack()
					}
				}
			}
		}
	}()

	return nil
}

// Close gracefully closes the NATS connection.
func (b *Broker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

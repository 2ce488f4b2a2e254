package messagebus

import (
	"context"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// Handler processes one raw inbound message. Returning an error signals a
// processing failure: the message is not acknowledged and the transport will
// redeliver it.
type Handler func(ctx context.Context, channel string, data []byte) error

// Broker abstracts the publish/subscribe transport. Delivery is at-least-once
// with no ordering guarantee across or within a channel; adapters never
// interpret payloads beyond the envelope framing.
type Broker interface {
	// Publish sends an envelope to a named channel. It fails only on
	// transport-level errors; the caller owns retry policy.
	Publish(ctx context.Context, channel string, env event.Envelope) error
	// Subscribe registers a durable subscription that feeds raw message
	// bytes plus the channel name to the handler.
	Subscribe(ctx context.Context, channel, subscriberID string, handler Handler) error
	// Close gracefully shuts down the broker connection.
	Close()
}

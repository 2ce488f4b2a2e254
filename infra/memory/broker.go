package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
	"github.com/YusufTuran34/ContentOrganizerEvent/messagebus"
)

// Broker is an in-process messagebus.Broker for tests and single-node runs.
// Delivery is synchronous: Publish invokes every subscriber handler before
// returning, and a handler error surfaces to the publisher so tests can
// observe processing failures directly.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string][]messagebus.Handler
	closed      bool
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string][]messagebus.Handler)}
}

func (b *Broker) Publish(ctx context.Context, channel string, env event.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := append([]messagebus.Handler(nil), b.subscribers[channel]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, channel, data); err != nil {
			slog.WarnContext(ctx, "In-process subscriber failed, message stays unacknowledged",
				"channel", channel, "eventID", env.EventID, "error", err)
			return err
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, channel, _ string, handler messagebus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], handler)
	return nil
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = make(map[string][]messagebus.Handler)
}

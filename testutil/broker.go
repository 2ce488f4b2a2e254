package testutil

import (
	"context"
	"sync"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
	"github.com/YusufTuran34/ContentOrganizerEvent/messagebus"
)

// CaptureBroker records published envelopes instead of delivering them, so
// tests can assert on the coordination triggers a scenario produced.
// PublishError, when set, makes every publish fail to exercise retry and
// escalation paths.
type CaptureBroker struct {
	mu           sync.Mutex
	published    []Published
	PublishError error
}

// Published is one captured publish call.
type Published struct {
	Channel  string
	Envelope event.Envelope
}

func NewCaptureBroker() *CaptureBroker {
	return &CaptureBroker{}
}

func (b *CaptureBroker) Publish(_ context.Context, channel string, env event.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishError != nil {
		return b.PublishError
	}
	b.published = append(b.published, Published{Channel: channel, Envelope: env})
	return nil
}

func (b *CaptureBroker) Subscribe(context.Context, string, string, messagebus.Handler) error {
	return nil
}

func (b *CaptureBroker) Close() {}

// PublishedEvents returns a copy of everything captured so far.
func (b *CaptureBroker) PublishedEvents() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedOfType filters captured publishes by event type.
func (b *CaptureBroker) PublishedOfType(t event.Type) []Published {
	var out []Published
	for _, p := range b.PublishedEvents() {
		if p.Envelope.EventType == t {
			out = append(out, p)
		}
	}
	return out
}

// Package dispatch pumps inbound bus messages into the aggregate store. One
// worker runs per subscribed channel; decode, dedup, merge and coordinator
// evaluation happen synchronously before a message is acknowledged, so a
// failure at any step leaves the message unacked for redelivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/deadletter"
	"github.com/YusufTuran34/ContentOrganizerEvent/event"
	"github.com/YusufTuran34/ContentOrganizerEvent/messagebus"
)

// Evaluator is the coordinator as seen by the dispatcher.
type Evaluator interface {
	Evaluate(ctx context.Context, snap aggregate.Snapshot) error
}

// Dispatcher routes decoded stage events into the aggregate store and hands
// each updated snapshot to the coordinator.
type Dispatcher struct {
	broker       messagebus.Broker
	store        aggregate.Store
	evaluator    Evaluator
	deadletters  deadletter.Log
	subscriberID string
	channels     []string
}

// New creates a Dispatcher consuming the given channels. With no channels it
// defaults to every stage event channel.
func New(
	broker messagebus.Broker,
	store aggregate.Store,
	evaluator Evaluator,
	deadletters deadletter.Log,
	subscriberID string,
	channels ...string,
) *Dispatcher {
	if len(channels) == 0 {
		channels = messagebus.StageChannels()
	}
	return &Dispatcher{
		broker:       broker,
		store:        store,
		evaluator:    evaluator,
		deadletters:  deadletters,
		subscriberID: subscriberID,
		channels:     channels,
	}
}

// Start subscribes the dispatcher to its channels. Each subscription runs its
// own worker, so events for different projects process in parallel while the
// store serializes merges per project.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, channel := range d.channels {
		if err := d.broker.Subscribe(ctx, channel, d.subscriberID, d.Handle); err != nil {
			return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
		}
	}
	slog.InfoContext(ctx, "Dispatcher started", "channels", d.channels, "subscriberID", d.subscriberID)
	return nil
}

// Handle processes one raw inbound message as a single unit of work.
// Malformed messages are dead-lettered and acknowledged: redelivery cannot
// make a broken message valid. Duplicates are acknowledged without touching
// the aggregate. Everything else merges and is evaluated synchronously; an
// error from either step leaves the message unacked.
func (d *Dispatcher) Handle(ctx context.Context, channel string, data []byte) error {
	env, payload, err := event.Decode(data)
	if err != nil {
		if errors.Is(err, event.ErrMalformedEvent) {
			slog.WarnContext(ctx, "Dropping malformed message", "channel", channel, "error", err)
			if recordErr := d.deadletters.Record(ctx, deadletter.Entry{
				Kind:    deadletter.KindMalformed,
				Channel: channel,
				Reason:  err.Error(),
				Data:    data,
			}); recordErr != nil {
				slog.ErrorContext(ctx, "Failed to dead-letter malformed message",
					"channel", channel, "error", recordErr)
			}
			return nil
		}
		return err
	}

	snap, accepted, err := d.store.UpsertAndMerge(ctx, payload.Project(), env)
	if err != nil {
		return fmt.Errorf("failed to merge event %s for project %s: %w", env.EventID, payload.Project(), err)
	}
	if !accepted {
		slog.DebugContext(ctx, "Discarding duplicate event",
			"eventID", env.EventID, "projectID", payload.Project(), "channel", channel)
		return nil
	}

	slog.DebugContext(ctx, "Event merged",
		"eventID", env.EventID,
		"eventType", env.EventType,
		"projectID", snap.ProjectID,
		"stages", snap.Stages.String(),
		"status", snap.Status.String())

	return d.evaluator.Evaluate(ctx, snap)
}

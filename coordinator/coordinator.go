// Package coordinator drives the production pipeline state machine. It
// evaluates freshly merged aggregates, decides the next required action, and
// emits coordination triggers exactly once per forward transition.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/deadletter"
	"github.com/YusufTuran34/ContentOrganizerEvent/event"
	"github.com/YusufTuran34/ContentOrganizerEvent/messagebus"
)

// forwardStatuses are the states a project can be escalated to FAILED from.
var forwardStatuses = []aggregate.Status{
	aggregate.StatusInProgress,
	aggregate.StatusReadyForAssembly,
	aggregate.StatusAssembling,
	aggregate.StatusStalled,
}

// Coordinator inspects aggregate snapshots and requests status transitions
// through the store. It never mutates stage data: all payload state flows
// through the dispatcher's merge, keeping a single writer path.
type Coordinator struct {
	store       aggregate.Store
	broker      messagebus.Broker
	deadletters deadletter.Log

	channelFor        func(event.Type) string
	maxPublishElapsed time.Duration
	maxPublishTries   uint
	now               func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxPublishElapsedTime bounds the total time spent retrying one
// trigger publish before the project is escalated to FAILED.
func WithMaxPublishElapsedTime(d time.Duration) Option {
	return func(c *Coordinator) { c.maxPublishElapsed = d }
}

// WithMaxPublishTries caps the number of publish attempts per trigger.
func WithMaxPublishTries(n uint) Option {
	return func(c *Coordinator) { c.maxPublishTries = n }
}

// WithChannelMapper overrides the event type to channel mapping.
func WithChannelMapper(fn func(event.Type) string) Option {
	return func(c *Coordinator) { c.channelFor = fn }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator.
func New(store aggregate.Store, broker messagebus.Broker, deadletters deadletter.Log, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:             store,
		broker:            broker,
		deadletters:       deadletters,
		channelFor:        messagebus.ChannelFor,
		maxPublishElapsed: 1 * time.Minute,
		maxPublishTries:   8,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Evaluate runs the transition rules against an updated aggregate. It is
// idempotent: transitions are compare-and-set operations inside the store's
// per-project exclusion, so re-evaluating an already-advanced aggregate
// never re-triggers a downstream action. One call may advance several steps
// when a single event completes more than one precondition.
func (c *Coordinator) Evaluate(ctx context.Context, snap aggregate.Snapshot) error {
	if snap.Status.Terminal() {
		return nil
	}

	// All assembly inputs present: request assembly exactly once.
	if snap.Status == aggregate.StatusInProgress && snap.Stages.Has(aggregate.AssemblyInputs) {
		next, moved, err := c.store.Transition(
			ctx,
			snap.ProjectID,
			[]aggregate.Status{aggregate.StatusInProgress},
			aggregate.StatusReadyForAssembly,
		)
		if err != nil {
			return fmt.Errorf("failed to transition %s to READY_FOR_ASSEMBLY: %w", snap.ProjectID, err)
		}
		if moved {
			slog.InfoContext(ctx, "Project ready for assembly", "projectID", snap.ProjectID)
			if err := c.requestAssembly(ctx, next); err != nil {
				return err
			}
		}
		snap = next
	}

	// An assembled video moves the project on regardless of whether the
	// assembly request ever went out; the external assembler is the source
	// of truth for that stage.
	if snap.Stages.Has(aggregate.StageVideo) &&
		(snap.Status == aggregate.StatusInProgress || snap.Status == aggregate.StatusReadyForAssembly) {
		next, moved, err := c.store.Transition(
			ctx,
			snap.ProjectID,
			[]aggregate.Status{aggregate.StatusInProgress, aggregate.StatusReadyForAssembly},
			aggregate.StatusAssembling,
		)
		if err != nil {
			return fmt.Errorf("failed to transition %s to ASSEMBLING: %w", snap.ProjectID, err)
		}
		if moved {
			slog.InfoContext(ctx, "Video assembled, requesting publication", "projectID", snap.ProjectID)
			if err := c.requestPublication(ctx, next); err != nil {
				return err
			}
		}
		snap = next
	}

	if snap.Stages.Has(aggregate.StagePublish) && !snap.Status.Terminal() && snap.Status != aggregate.StatusStalled {
		_, moved, err := c.store.Transition(
			ctx,
			snap.ProjectID,
			[]aggregate.Status{aggregate.StatusInProgress, aggregate.StatusReadyForAssembly, aggregate.StatusAssembling},
			aggregate.StatusPublished,
		)
		if err != nil {
			return fmt.Errorf("failed to transition %s to PUBLISHED: %w", snap.ProjectID, err)
		}
		if moved {
			slog.InfoContext(ctx, "Project published", "projectID", snap.ProjectID)
		}
	}

	return nil
}

// requestAssembly publishes the AssemblyRequested trigger with the merged
// stage payloads the assembler needs.
func (c *Coordinator) requestAssembly(ctx context.Context, snap aggregate.Snapshot) error {
	music, err := stagePayload[*event.MusicReady](snap, event.TypeMusicReady)
	if err != nil {
		return err
	}
	images, err := stagePayload[*event.ImageReady](snap, event.TypeImageReady)
	if err != nil {
		return err
	}
	seo, err := stagePayload[*event.SEOReady](snap, event.TypeSEOReady)
	if err != nil {
		return err
	}
	trigger := event.AssemblyRequested{
		ProjectID: snap.ProjectID,
		Music:     music,
		Images:    images,
		SEO:       seo,
	}
	return c.sendTrigger(ctx, snap.ProjectID, trigger)
}

// requestPublication publishes the PublishRequested trigger. SEO metadata is
// attached when present; a video assembled before the SEO stage finished can
// still be queued for publication.
func (c *Coordinator) requestPublication(ctx context.Context, snap aggregate.Snapshot) error {
	video, err := stagePayload[*event.VideoReady](snap, event.TypeVideoReady)
	if err != nil {
		return err
	}
	trigger := event.PublishRequested{
		ProjectID: snap.ProjectID,
		Video:     video,
	}
	if snap.Stages.Has(aggregate.StageSEO) {
		seo, err := stagePayload[*event.SEOReady](snap, event.TypeSEOReady)
		if err != nil {
			return err
		}
		trigger.SEO = seo
	}
	return c.sendTrigger(ctx, snap.ProjectID, trigger)
}

// sendTrigger publishes one coordination trigger with bounded exponential
// backoff. Exhausting retries escalates the project to FAILED and records the
// unsent trigger for administrative replay; success is durably marked so the
// reconciler does not resend it.
func (c *Coordinator) sendTrigger(ctx context.Context, projectID string, payload event.Payload) error {
	env, err := event.New(payload)
	if err != nil {
		return err
	}
	channel := c.channelFor(env.EventType)

	operation := func() (any, error) {
		if err := c.broker.Publish(ctx, channel, env); err != nil {
			return nil, err
		}
		return nil, nil
	}

	bo := backoff.NewExponentialBackOff()
	_, err = backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(c.maxPublishElapsed),
		backoff.WithMaxTries(c.maxPublishTries),
	)
	if err != nil {
		return c.escalatePublishFailure(ctx, projectID, channel, env, err)
	}

	if err := c.store.MarkTriggerSent(ctx, projectID, env.EventType, c.now()); err != nil {
		return fmt.Errorf("failed to record sent trigger %s for %s: %w", env.EventType, projectID, err)
	}
	slog.InfoContext(ctx, "Coordination trigger published",
		"projectID", projectID, "trigger", env.EventType, "channel", channel)
	return nil
}

// escalatePublishFailure moves the project to FAILED and dead-letters the
// trigger that could not be delivered. It returns nil: the escalation is the
// handling, and redelivering the inbound event would only be deduplicated.
func (c *Coordinator) escalatePublishFailure(
	ctx context.Context,
	projectID, channel string,
	env event.Envelope,
	cause error,
) error {
	slog.ErrorContext(ctx, "Exhausted retries publishing coordination trigger, failing project",
		"projectID", projectID, "trigger", env.EventType, "error", cause)

	data, encodeErr := env.Encode()
	if encodeErr != nil {
		data = env.Payload
	}
	if err := c.deadletters.Record(ctx, deadletter.Entry{
		RecordedAt: c.now(),
		Kind:       deadletter.KindUnsentTrigger,
		Channel:    channel,
		ProjectID:  projectID,
		Reason:     cause.Error(),
		Data:       data,
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to dead-letter unsent trigger", "projectID", projectID, "error", err)
	}

	if _, _, err := c.store.Transition(ctx, projectID, forwardStatuses, aggregate.StatusFailed); err != nil {
		return fmt.Errorf("failed to fail project %s after publish exhaustion: %w", projectID, err)
	}
	return nil
}

func stagePayload[T event.Payload](snap aggregate.Snapshot, t event.Type) (T, error) {
	var zero T
	payload, err := snap.Payload(t)
	if err != nil {
		return zero, err
	}
	typed, ok := payload.(T)
	if !ok {
		return zero, fmt.Errorf("stored %s payload for project %s has unexpected type %T", t, snap.ProjectID, payload)
	}
	return typed, nil
}

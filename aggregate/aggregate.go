package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// DefaultDedupWindow bounds the per-project recently-seen event ID set. It
// must be sized to cover the transport's redelivery window.
const DefaultDedupWindow = 128

// StageRecord is the most recent payload accepted for one event type,
// together with the envelope timestamp that won the last-writer-wins race.
type StageRecord struct {
	EventID   uuid.UUID       `json:"eventId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Aggregate is the accumulated knowledge about one project's production run.
// All mutation goes through Merge under the owning store's per-key exclusion;
// callers outside the store only ever see Snapshots.
type Aggregate struct {
	ProjectID     string                     `json:"projectId"`
	StartedAt     time.Time                  `json:"startedAt"`
	Status        Status                     `json:"status"`
	StalledFrom   Status                     `json:"stalledFrom"`
	StalledAt     time.Time                  `json:"stalledAt"`
	Stages        Stage                      `json:"stages"`
	Latest        map[event.Type]StageRecord `json:"latest"`
	TriggersSent  map[event.Type]time.Time   `json:"triggersSent"`
	SeenEventIDs  []uuid.UUID                `json:"seenEventIds"`
	LastUpdatedAt time.Time                  `json:"lastUpdatedAt"`

	DedupWindow int `json:"dedupWindow"`

	seen map[uuid.UUID]struct{}
}

// New creates an empty aggregate for a project first seen at now.
func New(projectID string, now time.Time) *Aggregate {
	return &Aggregate{
		ProjectID:     projectID,
		StartedAt:     now,
		Status:        StatusInProgress,
		Latest:        make(map[event.Type]StageRecord),
		TriggersSent:  make(map[event.Type]time.Time),
		DedupWindow:   DefaultDedupWindow,
		LastUpdatedAt: now,
	}
}

// Seen reports whether the event ID is inside the bounded dedup window.
func (a *Aggregate) Seen(id uuid.UUID) bool {
	if a.seen == nil {
		a.seen = make(map[uuid.UUID]struct{}, len(a.SeenEventIDs))
		for _, seen := range a.SeenEventIDs {
			a.seen[seen] = struct{}{}
		}
	}
	_, ok := a.seen[id]
	return ok
}

func (a *Aggregate) remember(id uuid.UUID) {
	if a.Seen(id) {
		return
	}
	window := a.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	a.SeenEventIDs = append(a.SeenEventIDs, id)
	a.seen[id] = struct{}{}
	for len(a.SeenEventIDs) > window {
		evicted := a.SeenEventIDs[0]
		a.SeenEventIDs = a.SeenEventIDs[1:]
		delete(a.seen, evicted)
	}
}

// Merge folds one accepted envelope into the aggregate. It returns false for
// duplicates, which leave the aggregate untouched. Stage payloads win by
// envelope timestamp, not arrival order, so a redelivered older event can
// never regress state written by a newer one. A merge on a stalled project
// revives it to the state it stalled from.
func (a *Aggregate) Merge(env event.Envelope, now time.Time) bool {
	if a.Seen(env.EventID) {
		return false
	}
	a.remember(env.EventID)
	a.LastUpdatedAt = now

	if a.Status == StatusStalled {
		a.Status = a.StalledFrom
		a.StalledAt = time.Time{}
	}

	if stage, ok := StageFor(env.EventType); ok {
		a.Stages |= stage
	}

	current, exists := a.Latest[env.EventType]
	if !exists || env.Timestamp.After(current.Timestamp) {
		a.Latest[env.EventType] = StageRecord{
			EventID:   env.EventID,
			Timestamp: env.Timestamp,
			Payload:   env.Payload,
		}
	}
	return true
}

// Snapshot is an immutable copy of an aggregate handed to readers. The
// coordinator works exclusively on snapshots and requests transitions through
// the store, keeping a single writer path for stage data.
type Snapshot struct {
	ProjectID     string
	StartedAt     time.Time
	Status        Status
	StalledFrom   Status
	StalledAt     time.Time
	Stages        Stage
	Latest        map[event.Type]StageRecord
	TriggersSent  map[event.Type]time.Time
	LastUpdatedAt time.Time
}

// Snapshot copies the aggregate's observable state.
func (a *Aggregate) Snapshot() Snapshot {
	latest := make(map[event.Type]StageRecord, len(a.Latest))
	for t, rec := range a.Latest {
		latest[t] = rec
	}
	sent := make(map[event.Type]time.Time, len(a.TriggersSent))
	for t, at := range a.TriggersSent {
		sent[t] = at
	}
	return Snapshot{
		ProjectID:     a.ProjectID,
		StartedAt:     a.StartedAt,
		Status:        a.Status,
		StalledFrom:   a.StalledFrom,
		StalledAt:     a.StalledAt,
		Stages:        a.Stages,
		Latest:        latest,
		TriggersSent:  sent,
		LastUpdatedAt: a.LastUpdatedAt,
	}
}

// Payload decodes the most recent payload stored for an event type.
func (s Snapshot) Payload(t event.Type) (event.Payload, error) {
	rec, ok := s.Latest[t]
	if !ok {
		return nil, fmt.Errorf("no %s payload recorded for project %s", t, s.ProjectID)
	}
	payload, err := event.CreatePayload(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rec.Payload, payload); err != nil {
		return nil, fmt.Errorf("failed to decode stored %s payload for project %s: %w", t, s.ProjectID, err)
	}
	return payload, nil
}

// TriggerSent reports whether a coordination trigger has a durable sent
// record. The reconciler resends triggers that have none.
func (s Snapshot) TriggerSent(t event.Type) bool {
	_, ok := s.TriggersSent[t]
	return ok
}

package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// ErrNotFound is returned when no aggregate exists for a project.
var ErrNotFound = errors.New("project aggregate not found")

// ErrMergeConflict signals a violated single-writer invariant. Per-key
// exclusion makes it unreachable in a correct store; a store that detects it
// must fail loudly rather than corrupt state.
var ErrMergeConflict = errors.New("concurrent merge on the same project")

// Store owns every project aggregate. Implementations guarantee at most one
// concurrent merge per project while events for different projects proceed
// in parallel; a single global lock is not an acceptable implementation.
type Store interface {
	// UpsertAndMerge looks up or creates the aggregate for the envelope's
	// project and merges the envelope into it. The returned bool is false
	// when the event ID was already seen, in which case the snapshot
	// reflects the unchanged aggregate.
	UpsertAndMerge(ctx context.Context, projectID string, env event.Envelope) (Snapshot, bool, error)

	// GetStatus returns the current snapshot, or ErrNotFound.
	GetStatus(ctx context.Context, projectID string) (Snapshot, error)

	// Transition atomically moves the project from one of the given states
	// to the target state, under the same per-key exclusion as merges. The
	// returned bool is false when the current status was not in from,
	// which makes re-evaluation of an already-advanced aggregate a no-op.
	Transition(ctx context.Context, projectID string, from []Status, to Status) (Snapshot, bool, error)

	// MarkTriggerSent durably records that a coordination trigger was
	// handed to the transport, so reconciliation does not resend it.
	MarkTriggerSent(ctx context.Context, projectID string, trigger event.Type, at time.Time) error

	// Range visits a snapshot of every live aggregate until fn returns
	// false. Used by the stall sweeper and the trigger reconciler.
	Range(ctx context.Context, fn func(Snapshot) bool) error

	// Purge removes terminal aggregates whose last update is older than
	// the cutoff. Active aggregates are never evicted. Returns the number
	// of aggregates removed.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

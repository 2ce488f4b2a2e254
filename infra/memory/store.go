package memory

import (
	"context"
	"sync"
	"time"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// Store is the in-memory aggregate.Store. The outer RWMutex guards only the
// project map; every aggregate carries its own lock, so merges for different
// projects run in parallel while merges for one project serialize.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*slot

	dedupWindow int
	now         func() time.Time
}

type slot struct {
	mu  sync.Mutex
	agg *aggregate.Aggregate
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDedupWindow overrides the per-project recently-seen event ID bound.
func WithDedupWindow(n int) StoreOption {
	return func(s *Store) { s.dedupWindow = n }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		projects:    make(map[string]*slot),
		dedupWindow: aggregate.DefaultDedupWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// slotFor returns the slot for a project, creating it if needed.
func (s *Store) slotFor(projectID string, create bool) (*slot, bool) {
	s.mu.RLock()
	sl, ok := s.projects[projectID]
	s.mu.RUnlock()
	if ok || !create {
		return sl, ok
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.projects[projectID]; ok {
		return sl, true
	}
	sl = &slot{agg: aggregate.New(projectID, s.now())}
	sl.agg.DedupWindow = s.dedupWindow
	s.projects[projectID] = sl
	return sl, true
}

func (s *Store) UpsertAndMerge(
	_ context.Context,
	projectID string,
	env event.Envelope,
) (aggregate.Snapshot, bool, error) {
	sl, _ := s.slotFor(projectID, true)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	accepted := sl.agg.Merge(env, s.now())
	return sl.agg.Snapshot(), accepted, nil
}

func (s *Store) GetStatus(_ context.Context, projectID string) (aggregate.Snapshot, error) {
	sl, ok := s.slotFor(projectID, false)
	if !ok {
		return aggregate.Snapshot{}, aggregate.ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.agg.Snapshot(), nil
}

func (s *Store) Transition(
	_ context.Context,
	projectID string,
	from []aggregate.Status,
	to aggregate.Status,
) (aggregate.Snapshot, bool, error) {
	sl, ok := s.slotFor(projectID, false)
	if !ok {
		return aggregate.Snapshot{}, false, aggregate.ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	current := sl.agg.Status
	for _, candidate := range from {
		if current != candidate {
			continue
		}
		if to == aggregate.StatusStalled {
			sl.agg.StalledFrom = current
			sl.agg.StalledAt = s.now()
		}
		sl.agg.Status = to
		return sl.agg.Snapshot(), true, nil
	}
	return sl.agg.Snapshot(), false, nil
}

func (s *Store) MarkTriggerSent(
	_ context.Context,
	projectID string,
	trigger event.Type,
	at time.Time,
) error {
	sl, ok := s.slotFor(projectID, false)
	if !ok {
		return aggregate.ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.agg.TriggersSent[trigger] = at
	return nil
}

func (s *Store) Range(_ context.Context, fn func(aggregate.Snapshot) bool) error {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.projects))
	for _, sl := range s.projects {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	for _, sl := range slots {
		sl.mu.Lock()
		snap := sl.agg.Snapshot()
		sl.mu.Unlock()
		if !fn(snap) {
			return nil
		}
	}
	return nil
}

func (s *Store) Purge(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for projectID, sl := range s.projects {
		sl.mu.Lock()
		expired := sl.agg.Status.Terminal() && sl.agg.LastUpdatedAt.Before(olderThan)
		sl.mu.Unlock()
		if expired {
			delete(s.projects, projectID)
			purged++
		}
	}
	return purged, nil
}

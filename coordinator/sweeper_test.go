package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/coordinator"
	"github.com/YusufTuran34/ContentOrganizerEvent/deadletter"
	"github.com/YusufTuran34/ContentOrganizerEvent/infra/memory"
	"github.com/YusufTuran34/ContentOrganizerEvent/testutil"
)

// fakeClock is a controllable time source shared by the store and sweeper.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type SweeperSuite struct {
	suite.Suite
	ctx         context.Context
	clock       *fakeClock
	store       *memory.Store
	deadletters *deadletter.MemoryLog
	sweeper     *coordinator.Sweeper
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{t: time.Now()}
	s.store = memory.NewStore(memory.WithClock(s.clock.Now))
	s.deadletters = deadletter.NewMemoryLog()
	s.sweeper = coordinator.NewSweeper(s.store, s.deadletters, coordinator.SweeperConfig{
		StallAfter: 30 * time.Minute,
		FailAfter:  time.Hour,
		Retention:  24 * time.Hour,
		Interval:   time.Minute,
	}).WithClock(s.clock.Now)
}

func (s *SweeperSuite) seedPartialProject(projectID string) {
	now := s.clock.Now()
	_, _, err := s.store.UpsertAndMerge(s.ctx, projectID, testutil.EnvelopeAt(testutil.MusicReady(projectID), now))
	s.Require().NoError(err)
	_, _, err = s.store.UpsertAndMerge(s.ctx, projectID, testutil.EnvelopeAt(testutil.ImageReady(projectID), now))
	s.Require().NoError(err)
}

func (s *SweeperSuite) status(projectID string) aggregate.Status {
	snap, err := s.store.GetStatus(s.ctx, projectID)
	s.Require().NoError(err)
	return snap.Status
}

func (s *SweeperSuite) TestStallThenFail_EachObservedExactlyOnce() {
	s.seedPartialProject("p1")

	// Fresh project: nothing to flag yet.
	s.Require().NoError(s.sweeper.Sweep(s.ctx))
	s.Equal(aggregate.StatusInProgress, s.status("p1"))

	// Past the stall deadline.
	s.clock.Advance(31 * time.Minute)
	s.Require().NoError(s.sweeper.Sweep(s.ctx))
	s.Equal(aggregate.StatusStalled, s.status("p1"))

	// A second pass keeps the project stalled without a second transition.
	s.Require().NoError(s.sweeper.Sweep(s.ctx))
	s.Equal(aggregate.StatusStalled, s.status("p1"))
	s.Empty(s.deadletters.Entries())

	// Past the failure deadline measured from the stall.
	s.clock.Advance(61 * time.Minute)
	s.Require().NoError(s.sweeper.Sweep(s.ctx))
	s.Equal(aggregate.StatusFailed, s.status("p1"))

	entries := s.deadletters.Entries()
	s.Require().Len(entries, 1)
	s.Equal(deadletter.KindExpired, entries[0].Kind)
	s.Equal("p1", entries[0].ProjectID)

	// FAILED is terminal: further sweeps neither transition nor report.
	s.clock.Advance(time.Hour)
	s.Require().NoError(s.sweeper.Sweep(s.ctx))
	s.Equal(aggregate.StatusFailed, s.status("p1"))
	s.Len(s.deadletters.Entries(), 1)
}

func (s *SweeperSuite) TestLateEvent_RevivesStalledProject() {
	s.seedPartialProject("p1")

	s.clock.Advance(31 * time.Minute)
	s.Require().NoError(s.sweeper.Sweep(s.ctx))
	s.Require().Equal(aggregate.StatusStalled, s.status("p1"))

	// The missing SEO stage finally lands.
	_, accepted, err := s.store.UpsertAndMerge(s.ctx, "p1",
		testutil.EnvelopeAt(testutil.SEOReady("p1"), s.clock.Now()))
	s.Require().NoError(err)
	s.Require().True(accepted)
	s.Equal(aggregate.StatusInProgress, s.status("p1"))

	// The revived project is fresh again; an immediate sweep leaves it be.
	s.Require().NoError(s.sweeper.Sweep(s.ctx))
	s.Equal(aggregate.StatusInProgress, s.status("p1"))
}

func (s *SweeperSuite) TestSweep_PurgesExpiredTerminalAggregates() {
	s.seedPartialProject("p1")
	_, moved, err := s.store.Transition(s.ctx, "p1",
		[]aggregate.Status{aggregate.StatusInProgress}, aggregate.StatusPublished)
	s.Require().NoError(err)
	s.Require().True(moved)

	s.clock.Advance(25 * time.Hour)
	s.Require().NoError(s.sweeper.Sweep(s.ctx))

	_, err = s.store.GetStatus(s.ctx, "p1")
	s.ErrorIs(err, aggregate.ErrNotFound)
}

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/deadletter"
	"github.com/YusufTuran34/ContentOrganizerEvent/event"
	"github.com/YusufTuran34/ContentOrganizerEvent/infra/postgres"
	"github.com/YusufTuran34/ContentOrganizerEvent/testutil"
)

type PostgresStoreSuite struct {
	testutil.DBIntegrationSuite
	ctx   context.Context
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.TruncateTables("project_aggregates", "dead_letters")
	s.store = postgres.NewStore(&postgres.DB{Pool: s.Pool})
}

func (s *PostgresStoreSuite) TestUpsertAndMerge_CreatesOnFirstSight() {
	env := testutil.EnvelopeAt(testutil.MusicReady("p1"), time.Now().UTC())

	snap, accepted, err := s.store.UpsertAndMerge(s.ctx, "p1", env)

	s.Require().NoError(err)
	s.True(accepted)
	s.Equal(aggregate.StatusInProgress, snap.Status)
	s.True(snap.Stages.Has(aggregate.StageMusic))

	loaded, err := s.store.GetStatus(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal(snap.Stages, loaded.Stages)
}

func (s *PostgresStoreSuite) TestUpsertAndMerge_DuplicateAcrossConnections() {
	env := testutil.EnvelopeAt(testutil.MusicReady("p1"), time.Now().UTC())
	_, accepted, err := s.store.UpsertAndMerge(s.ctx, "p1", env)
	s.Require().NoError(err)
	s.Require().True(accepted)

	// A second store over the same database sees the persisted dedup state.
	other := postgres.NewStore(&postgres.DB{Pool: s.Pool})
	_, accepted, err = other.UpsertAndMerge(s.ctx, "p1", testutil.Redeliver(env))

	s.Require().NoError(err)
	s.False(accepted)
}

func (s *PostgresStoreSuite) TestDedupWindow_ConfiguredBoundApplies() {
	store := postgres.NewStore(&postgres.DB{Pool: s.Pool}).WithDedupWindow(2)
	now := time.Now().UTC()

	first := testutil.EnvelopeAt(testutil.MusicReady("p1"), now)
	_, accepted, err := store.UpsertAndMerge(s.ctx, "p1", first)
	s.Require().NoError(err)
	s.Require().True(accepted)

	for i := 0; i < 2; i++ {
		_, _, err = store.UpsertAndMerge(s.ctx, "p1", testutil.EnvelopeAt(testutil.MusicReady("p1"), now))
		s.Require().NoError(err)
	}

	// Two fresh events pushed the first ID out of the configured window,
	// so its redelivery is accepted again.
	_, accepted, err = store.UpsertAndMerge(s.ctx, "p1", testutil.Redeliver(first))
	s.Require().NoError(err)
	s.True(accepted)
}

func (s *PostgresStoreSuite) TestLastWriterWins_SurvivesRoundTrip() {
	base := time.Now().UTC().Truncate(time.Millisecond)
	newer := event.MusicReady{ProjectID: "p1", MusicID: "m-new", MusicURL: "https://cdn/new.mp3"}
	older := event.MusicReady{ProjectID: "p1", MusicID: "m-old", MusicURL: "https://cdn/old.mp3"}

	_, _, err := s.store.UpsertAndMerge(s.ctx, "p1", testutil.EnvelopeAt(newer, base.Add(time.Minute)))
	s.Require().NoError(err)
	_, _, err = s.store.UpsertAndMerge(s.ctx, "p1", testutil.EnvelopeAt(older, base))
	s.Require().NoError(err)

	snap, err := s.store.GetStatus(s.ctx, "p1")
	s.Require().NoError(err)
	payload, err := snap.Payload(event.TypeMusicReady)
	s.Require().NoError(err)
	s.Equal("m-new", payload.(*event.MusicReady).MusicID)
}

func (s *PostgresStoreSuite) TestGetStatus_UnknownProject() {
	_, err := s.store.GetStatus(s.ctx, "nope")
	s.ErrorIs(err, aggregate.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTransition_CompareAndSwap() {
	env := testutil.EnvelopeAt(testutil.MusicReady("p1"), time.Now().UTC())
	_, _, err := s.store.UpsertAndMerge(s.ctx, "p1", env)
	s.Require().NoError(err)

	snap, moved, err := s.store.Transition(s.ctx, "p1",
		[]aggregate.Status{aggregate.StatusInProgress}, aggregate.StatusReadyForAssembly)
	s.Require().NoError(err)
	s.True(moved)
	s.Equal(aggregate.StatusReadyForAssembly, snap.Status)

	// The same transition attempted again finds no matching from-status.
	_, moved, err = s.store.Transition(s.ctx, "p1",
		[]aggregate.Status{aggregate.StatusInProgress}, aggregate.StatusReadyForAssembly)
	s.Require().NoError(err)
	s.False(moved)
}

func (s *PostgresStoreSuite) TestTransition_ToStalledRecordsOrigin() {
	env := testutil.EnvelopeAt(testutil.MusicReady("p1"), time.Now().UTC())
	_, _, err := s.store.UpsertAndMerge(s.ctx, "p1", env)
	s.Require().NoError(err)

	snap, moved, err := s.store.Transition(s.ctx, "p1",
		[]aggregate.Status{aggregate.StatusInProgress}, aggregate.StatusStalled)
	s.Require().NoError(err)
	s.True(moved)
	s.Equal(aggregate.StatusInProgress, snap.StalledFrom)
	s.False(snap.StalledAt.IsZero())
}

func (s *PostgresStoreSuite) TestMarkTriggerSent_Persists() {
	env := testutil.EnvelopeAt(testutil.MusicReady("p1"), time.Now().UTC())
	_, _, err := s.store.UpsertAndMerge(s.ctx, "p1", env)
	s.Require().NoError(err)

	sentAt := time.Now().UTC().Truncate(time.Millisecond)
	s.Require().NoError(s.store.MarkTriggerSent(s.ctx, "p1", event.TypeAssemblyRequested, sentAt))

	snap, err := s.store.GetStatus(s.ctx, "p1")
	s.Require().NoError(err)
	s.True(snap.TriggerSent(event.TypeAssemblyRequested))
}

func (s *PostgresStoreSuite) TestRange_VisitsEveryProject() {
	now := time.Now().UTC()
	for _, projectID := range []string{"p1", "p2", "p3"} {
		_, _, err := s.store.UpsertAndMerge(s.ctx, projectID, testutil.EnvelopeAt(testutil.MusicReady(projectID), now))
		s.Require().NoError(err)
	}

	seen := map[string]bool{}
	err := s.store.Range(s.ctx, func(snap aggregate.Snapshot) bool {
		seen[snap.ProjectID] = true
		return true
	})

	s.Require().NoError(err)
	s.Len(seen, 3)
}

func (s *PostgresStoreSuite) TestPurge_RemovesOnlyExpiredTerminal() {
	past := time.Now().UTC().Add(-48 * time.Hour)
	s.store.WithClock(func() time.Time { return past })

	_, _, err := s.store.UpsertAndMerge(s.ctx, "done", testutil.EnvelopeAt(testutil.VideoPublished("done"), past))
	s.Require().NoError(err)
	_, _, err = s.store.Transition(s.ctx, "done",
		[]aggregate.Status{aggregate.StatusInProgress}, aggregate.StatusPublished)
	s.Require().NoError(err)

	_, _, err = s.store.UpsertAndMerge(s.ctx, "active", testutil.EnvelopeAt(testutil.MusicReady("active"), past))
	s.Require().NoError(err)

	removed, err := s.store.Purge(s.ctx, time.Now().UTC().Add(-24*time.Hour))

	s.Require().NoError(err)
	s.Equal(1, removed)
	_, err = s.store.GetStatus(s.ctx, "done")
	s.ErrorIs(err, aggregate.ErrNotFound)
	_, err = s.store.GetStatus(s.ctx, "active")
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestDeadLetterLog_RecordAndReadBack() {
	log := postgres.NewDeadLetterLog(&postgres.DB{Pool: s.Pool})

	err := log.Record(s.ctx, deadletter.Entry{
		Kind:      deadletter.KindMalformed,
		Channel:   "MusicReady",
		ProjectID: "p1",
		Reason:    "unknown event type",
		Data:      []byte(`{"eventType":"Bogus"}`),
	})
	s.Require().NoError(err)

	entries, err := log.Entries(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.NotEqual(uuid.Nil, entries[0].ID)
	s.Equal(deadletter.KindMalformed, entries[0].Kind)
	s.Equal("p1", entries[0].ProjectID)
}

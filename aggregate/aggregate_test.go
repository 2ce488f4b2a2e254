package aggregate_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

func musicEnvelope(t *testing.T, projectID, musicID string, ts time.Time) event.Envelope {
	t.Helper()
	env, err := event.New(event.MusicReady{ProjectID: projectID, MusicID: musicID})
	require.NoError(t, err)
	env.Timestamp = ts
	return env
}

func TestMerge_SetsStageAndPayload(t *testing.T) {
	now := time.Now()
	agg := aggregate.New("p1", now)

	accepted := agg.Merge(musicEnvelope(t, "p1", "m1", now), now)

	require.True(t, accepted)
	assert.True(t, agg.Stages.Has(aggregate.StageMusic))
	assert.Equal(t, aggregate.StatusInProgress, agg.Status)
}

func TestMerge_DuplicateEventIDLeavesStateUntouched(t *testing.T) {
	now := time.Now()
	agg := aggregate.New("p1", now)
	env := musicEnvelope(t, "p1", "m1", now)

	require.True(t, agg.Merge(env, now))
	before := agg.Snapshot()

	accepted := agg.Merge(env, now.Add(time.Minute))

	assert.False(t, accepted)
	after := agg.Snapshot()
	assert.Equal(t, before.Stages, after.Stages)
	assert.Equal(t, before.LastUpdatedAt, after.LastUpdatedAt)
	assert.Equal(t, before.Latest[event.TypeMusicReady], after.Latest[event.TypeMusicReady])
}

func TestMerge_LastWriterWinsByTimestampNotArrival(t *testing.T) {
	now := time.Now()
	agg := aggregate.New("p1", now)

	t1 := now.Add(-2 * time.Minute)
	t2 := now.Add(-1 * time.Minute)
	older := musicEnvelope(t, "p1", "old", t1)
	newer := musicEnvelope(t, "p1", "new", t2)

	// Deliver the newer-timestamped event first, then the older one.
	require.True(t, agg.Merge(newer, now))
	require.True(t, agg.Merge(older, now))

	snap := agg.Snapshot()
	payload, err := snap.Payload(event.TypeMusicReady)
	require.NoError(t, err)
	music := payload.(*event.MusicReady)
	assert.Equal(t, "new", music.MusicID, "the later-timestamped payload must win regardless of arrival order")
}

func TestMerge_RevivesStalledProject(t *testing.T) {
	now := time.Now()
	agg := aggregate.New("p1", now)
	agg.Status = aggregate.StatusStalled
	agg.StalledFrom = aggregate.StatusReadyForAssembly
	agg.StalledAt = now

	require.True(t, agg.Merge(musicEnvelope(t, "p1", "m1", now), now.Add(time.Second)))

	assert.Equal(t, aggregate.StatusReadyForAssembly, agg.Status)
	assert.True(t, agg.StalledAt.IsZero())
}

func TestMerge_DedupWindowIsBounded(t *testing.T) {
	now := time.Now()
	agg := aggregate.New("p1", now)
	agg.DedupWindow = 4

	first := musicEnvelope(t, "p1", "m1", now)
	require.True(t, agg.Merge(first, now))

	for i := 0; i < 4; i++ {
		require.True(t, agg.Merge(musicEnvelope(t, "p1", "m1", now), now))
	}

	assert.Len(t, agg.SeenEventIDs, 4)
	// The first event ID fell out of the window, so its redelivery is
	// accepted again. The window must be sized to the transport's actual
	// redelivery horizon in production.
	assert.True(t, agg.Merge(first, now))
}

func TestAggregate_SurvivesJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	agg := aggregate.New("p1", now)
	require.True(t, agg.Merge(musicEnvelope(t, "p1", "m1", now), now))
	agg.TriggersSent[event.TypeAssemblyRequested] = now

	data, err := json.Marshal(agg)
	require.NoError(t, err)

	var restored aggregate.Aggregate
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, agg.ProjectID, restored.ProjectID)
	assert.Equal(t, agg.Status, restored.Status)
	assert.Equal(t, agg.Stages, restored.Stages)
	assert.Equal(t, agg.SeenEventIDs, restored.SeenEventIDs)
	assert.True(t, restored.Seen(agg.SeenEventIDs[0]), "dedup state must survive externalization")
	assert.False(t, restored.Seen(uuid.New()))
}

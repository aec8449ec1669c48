package scrape

import (
	"sync"
	"testing"

	"github.com/shoplens/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTracker_RunLifecycle(t *testing.T) {
	tracker := NewStatusTracker()
	defer tracker.Close()

	snap := tracker.Snapshot()
	assert.False(t, snap.Running)
	assert.Nil(t, snap.Current)
	assert.Nil(t, snap.Last)

	id := tracker.Begin("jeans", 3)
	tracker.Record(id, domain.SourceResult{SourceID: "a", OK: true, Count: 5})
	tracker.Record(id, domain.SourceResult{SourceID: "b", Error: "fetch failed"})

	snap = tracker.Snapshot()
	assert.True(t, snap.Running)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "jeans", snap.Current.Query)
	assert.Equal(t, 1, snap.Current.SuccessfulSources)
	assert.Equal(t, 1, snap.Current.FailedSources)
	assert.Equal(t, 5, snap.Current.Listings)
	assert.Equal(t, []string{"b: fetch failed"}, snap.Current.Errors)

	tracker.Finish(id)

	snap = tracker.Snapshot()
	assert.False(t, snap.Running)
	assert.Nil(t, snap.Current)
	require.NotNil(t, snap.Last)
	assert.NotNil(t, snap.Last.CompletedAt)
	assert.Equal(t, 1, snap.Last.AbandonedSources)
	assert.Equal(t, 1, snap.TotalRuns)
}

func TestStatusTracker_SnapshotIsACopy(t *testing.T) {
	tracker := NewStatusTracker()
	defer tracker.Close()

	id := tracker.Begin("dresses", 1)
	tracker.Record(id, domain.SourceResult{SourceID: "a", Error: "timeout"})

	snap := tracker.Snapshot()
	snap.Current.Errors[0] = "mutated"
	snap.Current.FailedSources = 99

	again := tracker.Snapshot()
	assert.Equal(t, "a: timeout", again.Current.Errors[0])
	assert.Equal(t, 1, again.Current.FailedSources)
}

func TestStatusTracker_RefreshExclusive(t *testing.T) {
	tracker := NewStatusTracker()
	defer tracker.Close()

	require.True(t, tracker.TryStartRefresh())
	assert.False(t, tracker.TryStartRefresh())
	assert.True(t, tracker.Snapshot().Refreshing)

	tracker.EndRefresh()
	assert.True(t, tracker.TryStartRefresh())
}

func TestStatusTracker_ConcurrentWriters(t *testing.T) {
	tracker := NewStatusTracker()
	defer tracker.Close()

	id := tracker.Begin("shoes", 100)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.Record(id, domain.SourceResult{SourceID: "s", OK: i%2 == 0, Count: 1, Error: "x"})
			_ = tracker.Snapshot()
		}(i)
	}
	wg.Wait()

	snap := tracker.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, 50, snap.Current.SuccessfulSources)
	assert.Equal(t, 50, snap.Current.FailedSources)
	assert.Len(t, snap.Current.Errors, maxRecordedErrors)
}

func TestStatusTracker_AfterClose(t *testing.T) {
	tracker := NewStatusTracker()
	tracker.Close()
	tracker.Close()

	assert.NotPanics(t, func() {
		id := tracker.Begin("late", 1)
		tracker.Record(id, domain.SourceResult{OK: true})
		tracker.Finish(id)
		_ = tracker.Snapshot()
	})
}

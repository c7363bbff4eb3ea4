package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scalesep/internal/timeutil"
)

func openTestStore(t *testing.T) (*Store, *timeutil.MockClock) {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := timeutil.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s.SetClock(clock)
	return s, clock
}

func TestOpenAppliesMigrations(t *testing.T) {
	s, _ := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// A second run finds nothing to do.
	require.NoError(t, s.MigrateUp())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	state := make([]byte, 4096)
	for i := range state {
		state[i] = byte(i % 7)
	}
	snap := &Snapshot{
		Source:      "radar-a",
		ImageNumber: 5,
		Rows:        64,
		Cols:        48,
		Levels:      7,
		Stats:       []byte{0x81, 0xa1, 0x61, 0x01},
		State:       state,
		Reason:      "cycle",
	}
	require.NoError(t, s.InsertSnapshot(ctx, snap))
	assert.NotEmpty(t, snap.SnapshotID)
	assert.Equal(t, clock.Now().Unix(), snap.TakenUnix)

	got, err := s.SnapshotByID(ctx, snap.SnapshotID)
	require.NoError(t, err)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestSnapshot(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertSnapshot(ctx, &Snapshot{
			Source: "radar-a", ImageNumber: i, State: []byte{byte(i)},
		}))
		clock.Advance(5 * time.Minute)
	}
	require.NoError(t, s.InsertSnapshot(ctx, &Snapshot{Source: "radar-b", ImageNumber: 99, State: []byte{9}}))

	latest, err := s.LatestSnapshot(ctx, "radar-a")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.ImageNumber)
	assert.Equal(t, []byte{2}, latest.State)

	_, err = s.LatestSnapshot(ctx, "radar-c")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SnapshotByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndPrune(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertSnapshot(ctx, &Snapshot{Source: "radar-a", ImageNumber: i, State: []byte{1}}))
		clock.Advance(time.Minute)
	}

	list, err := s.ListSnapshots(ctx, "radar-a", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 4, list[0].ImageNumber)
	assert.Nil(t, list[0].State, "listing leaves state out")

	removed, err := s.Prune(ctx, "radar-a", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	list, err = s.ListSnapshots(ctx, "radar-a", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[1].ImageNumber)
}

func TestForecastRuns(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	snap := &Snapshot{Source: "radar-a", State: []byte{1}}
	require.NoError(t, s.InsertSnapshot(ctx, snap))

	first := &ForecastRun{
		SnapshotID:  snap.SnapshotID,
		Source:      "radar-a",
		LeadTimes:   2,
		StepMinutes: 5,
		Summary:     ForecastSummary{MeanRate: []float32{1.5, 1.25}, RainFrac: []float32{0.5, 0.4}, MaxRate: []float32{8, 6}},
	}
	require.NoError(t, s.InsertForecastRun(ctx, first))
	clock.Advance(5 * time.Minute)
	second := &ForecastRun{Source: "radar-a", LeadTimes: 1, StepMinutes: 5}
	require.NoError(t, s.InsertForecastRun(ctx, second))

	runs, err := s.ForecastRuns(ctx, "radar-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Empty(t, runs[0].SnapshotID)
	if diff := cmp.Diff(first, runs[1]); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneDetachesForecastRuns(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	old := &Snapshot{Source: "radar-a", State: []byte{1}}
	require.NoError(t, s.InsertSnapshot(ctx, old))
	require.NoError(t, s.InsertForecastRun(ctx, &ForecastRun{SnapshotID: old.SnapshotID, Source: "radar-a", LeadTimes: 1, StepMinutes: 5}))
	clock.Advance(time.Minute)
	require.NoError(t, s.InsertSnapshot(ctx, &Snapshot{Source: "radar-a", State: []byte{2}}))

	_, err := s.Prune(ctx, "radar-a", 1)
	require.NoError(t, err)

	runs, err := s.ForecastRuns(ctx, "radar-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].SnapshotID)
}

func TestSummarize(t *testing.T) {
	const noData = -999
	sum := Summarize([][]float32{
		{0, 2, 4, noData},
		{noData, noData},
	}, noData, 0.1)

	assert.Equal(t, []float32{2, 0}, sum.MeanRate)
	assert.InDelta(t, 2.0/3.0, sum.RainFrac[0], 1e-6)
	assert.Equal(t, float32(4), sum.MaxRate[0])
	assert.Zero(t, sum.RainFrac[1])
}

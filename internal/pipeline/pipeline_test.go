package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/forecast"
	"github.com/danielpatrickdp/behavior-twin/internal/insights"
	"github.com/danielpatrickdp/behavior-twin/internal/logging"
	"github.com/danielpatrickdp/behavior-twin/internal/store"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func codingRecord(i int) activity.Record {
	return activity.Record{
		Timestamp:  t0.Add(time.Duration(i) * time.Minute),
		Exe:        "code.exe",
		Title:      "engine.go - behavior-twin",
		Mode:       activity.ModeCoding,
		Confidence: 0.9,
	}
}

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "twin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func observeAll(t *testing.T, p *Pipeline, recs []activity.Record) []Observation {
	t.Helper()
	out := make([]Observation, 0, len(recs))
	for _, r := range recs {
		obs, err := p.Observe(context.Background(), r)
		require.NoError(t, err)
		out = append(out, obs)
	}
	return out
}

func codingRecords(from, n int) []activity.Record {
	recs := make([]activity.Record, n)
	for i := range recs {
		recs[i] = codingRecord(from + i)
	}
	return recs
}

func TestObserveColdStartIsNoise(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	obs := observeAll(t, p, codingRecords(0, 3))

	for _, o := range obs {
		assert.Equal(t, cluster.Noise, o.ClusterID)
		assert.Equal(t, -1.0, o.Distance)
	}
	assert.Equal(t, activity.ModeCoding, obs[0].Signals.Mode)
	assert.Equal(t, int64(3), p.Twin().Snapshot().Events)
	assert.Equal(t, twin.Unknown, p.Twin().LastCluster())
}

func TestObserveStampsMissingTimestamp(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	obs, err := p.Observe(context.Background(), activity.Record{Mode: activity.ModeIdle})
	require.NoError(t, err)
	assert.False(t, obs.Record.Timestamp.IsZero())
}

func TestObserveCancelled(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Observe(ctx, codingRecord(0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.HistoryLen())
}

func TestHistoryWindowIsCapped(t *testing.T) {
	p := New(Config{HistorySize: 10, HistoryDays: 1}, Components{})
	observeAll(t, p, codingRecords(0, 25))
	assert.Equal(t, 10, p.HistoryLen())

	// two days later everything before the cutoff is dropped
	late := codingRecord(0)
	late.Timestamp = t0.Add(49 * time.Hour)
	observeAll(t, p, []activity.Record{late})
	assert.Equal(t, 1, p.HistoryLen())
}

func TestReportSingleHabit(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	observeAll(t, p, codingRecords(0, 50))

	snap, err := p.Report(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Profiles, 1)
	assert.Equal(t, cluster.AlgorithmCatchAll, snap.Algorithm)
	assert.Equal(t, activity.ModeCoding, snap.Profiles[0].Label)
	assert.True(t, snap.LowConfidence.Clustering)
	assert.True(t, snap.Degraded)
	assert.Equal(t, forecast.TierBaseline, snap.Forecast.Tier)
	assert.Equal(t, snap.Profiles[0].ID, snap.Forecast.PredictedCluster)
	assert.InDelta(t, 1.0, snap.Forecast.Distribution[snap.Profiles[0].ID], 1e-9)
	assert.NotEmpty(t, snap.Insights)

	// the report relabels the window the twin was built from
	id := snap.Profiles[0].ID
	assert.Equal(t, id, p.Twin().LastCluster())
	assert.GreaterOrEqual(t, snap.Twin.Stationary[id], 0.9)
	st := p.Twin().Snapshot()
	assert.Equal(t, int64(50), st.Events)
	require.Contains(t, st.HourlyTransitions[8], id)
	assert.Greater(t, st.HourlyTransitions[8][id][id].Value, 40.0)
	assert.Equal(t, []int{id, id, id}, p.RecentLabels(3))

	// later records are labeled with the cluster the report established
	obs := observeAll(t, p, codingRecords(50, 30))
	for _, o := range obs {
		assert.Equal(t, id, o.ClusterID)
		assert.InDelta(t, 1.0, o.Similarity, 1e-9)
	}
	assert.Equal(t, id, p.Twin().LastCluster())
	pi := p.Twin().Queries().Stationary
	assert.InDelta(t, 1.0, pi[id], 1e-6)
}

func TestReportEmptyHistory(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	snap, err := p.Report(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Profiles)
	assert.True(t, snap.Forecast.LowConfidence)
	assert.Equal(t, map[int]float64{forecast.Unknown: 1}, snap.Forecast.Distribution)
}

func TestSaveWithoutPersistence(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	_, err := p.Save(context.Background())
	assert.True(t, errors.Is(err, ErrNoPersistence))
}

func TestSaveAndRestore(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	p := New(DefaultConfig(), Components{Persistence: s, ReportDB: s.DB()})

	observeAll(t, p, codingRecords(0, 50))
	_, err := p.Report(ctx)
	require.NoError(t, err)
	observeAll(t, p, codingRecords(50, 10))

	version, err := p.Save(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, version)

	cur, err := s.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, cur.VersionID)
	assert.Equal(t, int64(60), cur.Events)
	assert.Contains(t, cur.MetricsJSON, `"passed":true`)

	reports, err := logging.ListReports(ctx, s.DB(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, cluster.AlgorithmCatchAll, reports[0].Algorithm)

	// a fresh process restores twin and registry
	cfg := twin.DefaultConfig()
	restored := twin.Load(ctx, s, cfg, nil)
	reg, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	p2 := New(DefaultConfig(), Components{Twin: restored, Registry: reg, Persistence: s})

	assert.Equal(t, int64(60), restored.Snapshot().Events)
	obs := observeAll(t, p2, codingRecords(60, 1))
	assert.Equal(t, reg.IDs()[0], obs[0].ClusterID)

	_, err = p2.Save(ctx)
	require.NoError(t, err)
	versions, err := s.ListVersions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, version, versions[0].ParentID)
}

func TestReportConcurrentWithObserve(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	observeAll(t, p, codingRecords(0, 20))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 20; i < 120; i++ {
			if _, err := p.Observe(context.Background(), codingRecord(i)); err != nil {
				t.Errorf("Observe: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if _, err := p.Report(context.Background()); err != nil {
				t.Errorf("Report: %v", err)
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, int64(120), p.Twin().Snapshot().Events)
}

func TestObserveReportsEmbeddingAndDistance(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	observeAll(t, p, codingRecords(0, 20))
	_, err := p.Report(context.Background())
	require.NoError(t, err)

	obs := observeAll(t, p, codingRecords(20, 1))[0]
	assert.NotEqual(t, cluster.Noise, obs.ClusterID)
	assert.InDelta(t, 0, obs.Distance, 1e-6)
	assert.InDelta(t, 1, floats.Norm(obs.Embedding.Float64(), 2), 1e-6)

	reg := p.Registry()
	want, ok := reg.DistanceTo(obs.ClusterID, obs.Embedding.Float64())
	require.True(t, ok)
	assert.InDelta(t, want, obs.Distance, 1e-12)
}

func TestReportRelabelsRecordsObservedSince(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	observeAll(t, p, codingRecords(0, 20))
	snap, err := p.Report(context.Background())
	require.NoError(t, err)
	id := snap.Profiles[0].ID

	observeAll(t, p, codingRecords(20, 10))
	_, err = p.Report(context.Background())
	require.NoError(t, err)

	st := p.Twin().Snapshot()
	assert.Equal(t, int64(30), st.Events)
	assert.NotContains(t, st.Factors, twin.ClusterBucket(twin.Unknown))
	assert.Equal(t, int64(30), st.Factors[twin.ClusterBucket(id)].Count())
}

func TestTrimmedRecordsStayInTwin(t *testing.T) {
	p := New(Config{HistorySize: 10, HistoryDays: 14}, Components{})
	observeAll(t, p, codingRecords(0, 25))
	require.Equal(t, 10, p.HistoryLen())

	snap, err := p.Report(context.Background())
	require.NoError(t, err)
	id := snap.Profiles[0].ID

	st := p.Twin().Snapshot()
	assert.Equal(t, int64(25), st.Events)
	// records that aged out keep the label they had when they left
	assert.Equal(t, int64(15), st.Factors[twin.ClusterBucket(twin.Unknown)].Count())
	assert.Equal(t, int64(10), st.Factors[twin.ClusterBucket(id)].Count())
}

func TestConcurrentReportsShareOneRegistry(t *testing.T) {
	p := New(DefaultConfig(), Components{})
	observeAll(t, p, codingRecords(0, 40))

	const n = 4
	snaps := make([]insights.Snapshot, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := p.Report(context.Background())
			if err != nil {
				t.Errorf("Report: %v", err)
			}
			snaps[i] = snap
		}(i)
	}
	wg.Wait()

	reg := p.Registry()
	require.Equal(t, 1, reg.Len())
	final, _ := reg.Get(reg.IDs()[0])
	for _, snap := range snaps {
		require.Len(t, snap.Profiles, 1)
		_, ok := reg.Get(snap.Profiles[0].ID)
		assert.True(t, ok, "report handed out cluster %d missing from the registry", snap.Profiles[0].ID)
	}
	// every report folded its members into the same profile
	assert.Equal(t, n*40, final.Seen)
}

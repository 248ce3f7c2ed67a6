package twin

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

const (
	coding   = 0
	browsing = 1
)

// habitStream alternates an hour of coding (08:00) with an hour of browsing
// (09:00), one observation per minute, for the given number of days.
func habitStream(days int) []Observation {
	var out []Observation
	for d := 0; d < days; d++ {
		base := start.AddDate(0, 0, d)
		for m := 0; m < 120; m++ {
			ts := base.Add(time.Duration(m) * time.Minute)
			obs := Observation{ClusterID: coding, Timestamp: ts, App: "Code.exe", Productivity: 0.9, Distraction: 0.05, CognitiveLoad: 0.8}
			if m >= 60 {
				obs = Observation{ClusterID: browsing, Timestamp: ts, App: "chrome.exe", Productivity: 0.2, Distraction: 0.7, CognitiveLoad: 0.2}
			}
			out = append(out, obs)
		}
	}
	return out
}

func applyAll(st *State, obs []Observation, cfg Config) {
	for _, o := range obs {
		st.Apply(o, cfg.HalfLife)
	}
}

func TestDecayedCountHalvesPerHalfLife(t *testing.T) {
	var c DecayedCount
	c.add(start, 1, time.Hour)
	assert.InDelta(t, 0.5, c.At(start.Add(time.Hour), time.Hour), 1e-12)
	assert.InDelta(t, 0.25, c.At(start.Add(2*time.Hour), time.Hour), 1e-12)

	c.add(start.Add(time.Hour), 1, time.Hour)
	assert.InDelta(t, 1.5, c.Value, 1e-12)
	assert.Equal(t, start.Add(time.Hour), c.UpdatedAt)

	// an older record does not inflate or rewind the counter
	c.add(start, 1, time.Hour)
	assert.InDelta(t, 2.5, c.Value, 1e-12)
	assert.Equal(t, start.Add(time.Hour), c.UpdatedAt)
}

func TestStatWelford(t *testing.T) {
	var s Stat
	for _, x := range []float64{1, 2, 3, 4} {
		s.Add(x)
	}
	assert.Equal(t, int64(4), s.N)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, 5.0/3, s.Variance(), 1e-12)
	assert.Equal(t, 0.0, Stat{N: 1, Mean: 3}.Variance())
}

func TestApplyColdStart(t *testing.T) {
	cfg := DefaultConfig()
	st := NewState()
	require.Equal(t, Unknown, st.LastCluster)

	st.Apply(Observation{ClusterID: 3, Timestamp: start, App: "Code.exe", Productivity: 0.8}, cfg.HalfLife)

	assert.Equal(t, 3, st.LastCluster)
	assert.Equal(t, int64(1), st.Events)
	assert.InDelta(t, 1.0, st.Transitions[Unknown][3].Value, 1e-12)
	assert.InDelta(t, 1.0, st.HourlyTransitions[8][Unknown][3].Value, 1e-12)
	for _, key := range []string{"hour:08", "dow:0", "cluster:3", "app:code.exe"} {
		f := st.Factors[key]
		require.NotNil(t, f, key)
		assert.Equal(t, int64(1), f.Count(), key)
		assert.Equal(t, int64(1), f.Clusters[3], key)
	}
	assert.NoError(t, st.Check())
}

func TestApplyNoiseMapsToUnknown(t *testing.T) {
	st := NewState()
	st.Apply(Observation{ClusterID: -7, Timestamp: start}, time.Hour)
	assert.Equal(t, Unknown, st.LastCluster)
	assert.Contains(t, st.Transitions[Unknown], Unknown)
	assert.NotNil(t, st.Factors[ClusterBucket(Unknown)])
}

func TestSingleHabitStationary(t *testing.T) {
	cfg := DefaultConfig()
	st := NewState()
	for i := 0; i < 50; i++ {
		st.Apply(Observation{ClusterID: coding, Timestamp: start.Add(time.Duration(i) * time.Minute), Productivity: 0.8}, cfg.HalfLife)
	}

	pi := st.Stationary(cfg)
	assert.InDelta(t, 1.0, pi[coding], 1e-6)
	assert.InDelta(t, 0.0, pi[Unknown], 1e-6)
	assert.Equal(t, TrendOnTrack, st.GoalAlignment(cfg).Trend)
}

func TestStationaryPeriodicChainConverges(t *testing.T) {
	cfg := DefaultConfig()
	st := NewState()
	for i := 0; i < 40; i++ {
		st.Apply(Observation{ClusterID: i % 2, Timestamp: start.Add(time.Duration(i) * time.Minute)}, cfg.HalfLife)
	}
	pi := st.Stationary(cfg)
	var total float64
	for _, p := range pi {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.InDelta(t, 0.5, pi[0], 1e-3)
	assert.InDelta(t, 0.5, pi[1], 1e-3)
}

func TestStationaryEmpty(t *testing.T) {
	assert.Empty(t, NewState().Stationary(DefaultConfig()))
	a := NewState().GoalAlignment(DefaultConfig())
	assert.True(t, a.LowConfidence)
	assert.Equal(t, TrendNeutral, a.Trend)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	st := NewState()
	applyAll(st, habitStream(1), cfg)
	cp := st.Clone()

	cp.Apply(Observation{ClusterID: 5, Timestamp: start.Add(48 * time.Hour), App: "game.exe"}, cfg.HalfLife)
	cp.Factors[HourBucket(8)].Clusters[coding] = 0

	assert.NotContains(t, st.Transitions[browsing], 5)
	assert.Nil(t, st.Factors["app:game.exe"])
	assert.Equal(t, int64(60), st.Factors[HourBucket(8)].Clusters[coding])
	assert.Equal(t, int64(120), st.Events)
}

func TestTwinConcurrentReaders(t *testing.T) {
	tw := New(DefaultConfig())
	obs := habitStream(2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, o := range obs {
			tw.Apply(o)
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				q := tw.Queries()
				if q.Events < 0 || math.IsNaN(q.GoalAlignment.Score) {
					t.Errorf("inconsistent read: %+v", q.GoalAlignment)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(len(obs)), tw.Snapshot().Events)
	assert.Equal(t, browsing, tw.LastCluster())
}

func TestDecayedCountWithoutTimestampAccumulates(t *testing.T) {
	var c DecayedCount
	c.add(time.Time{}, 1, time.Hour)
	c.add(time.Time{}, 1, time.Hour)
	assert.InDelta(t, 2, c.Value, 1e-12)

	c.add(start, 1, time.Hour)
	assert.InDelta(t, 3, c.Value, 1e-12)
	assert.Equal(t, start, c.UpdatedAt)
}

func TestApplyClampsNonFiniteSignals(t *testing.T) {
	st := NewState()
	st.Apply(Observation{ClusterID: coding, Timestamp: start, Productivity: math.NaN(), Distraction: math.Inf(1), CognitiveLoad: -3}, time.Hour)
	st.Apply(Observation{ClusterID: coding, Timestamp: start.Add(time.Minute), Productivity: 0.9}, time.Hour)

	f := st.Factors[ClusterBucket(coding)]
	require.NotNil(t, f)
	assert.InDelta(t, 0.7, f.Productivity.Mean, 1e-12)
	assert.InDelta(t, 0.5, f.Distraction.Mean, 1e-12)
	assert.InDelta(t, 0, f.CognitiveLoad.Mean, 1e-12)
	require.NoError(t, st.Check())

	data, err := Marshal(st)
	require.NoError(t, err)
	_, err = Unmarshal(data)
	require.NoError(t, err)
}

func TestTwinReplace(t *testing.T) {
	tw := New(DefaultConfig())
	tw.Apply(Observation{ClusterID: Unknown, Timestamp: start})

	st := NewState()
	applyAll(st, habitStream(1), tw.Config())
	tw.Replace(st)

	assert.Equal(t, int64(120), tw.Snapshot().Events)
	assert.Equal(t, browsing, tw.LastCluster())
}

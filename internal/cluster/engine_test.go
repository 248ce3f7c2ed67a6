package cluster

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/embedding"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// groupedPoints returns groups*size points; every point in group g sits on the
// g-th axis plus a private offset dimension, so within-group distances are all
// equal and groups are far apart.
func groupedPoints(groups, size int) []Point {
	modes := []string{activity.ModeCoding, activity.ModeVideo, activity.ModeChatting, activity.ModeReading}
	var pts []Point
	for g := 0; g < groups; g++ {
		for i := 0; i < size; i++ {
			var v embedding.Vector
			v[g*10] = 1
			v[100+g*size+i] = 0.05
			pts = append(pts, Point{
				Vector:     v,
				Timestamp:  t0.Add(time.Duration(len(pts)) * time.Minute),
				Mode:       modes[g%len(modes)],
				Confidence: 0.8,
				Exe:        "app.exe",
			})
		}
	}
	return pts
}

func groupOf(i, size int) int { return i / size }

func TestRunEmpty(t *testing.T) {
	res := NewEngine(DefaultConfig()).Run(nil, NewRegistry())
	assert.True(t, res.LowConfidence)
	assert.Empty(t, res.Assignments)
	assert.Empty(t, res.Profiles)
}

func TestRunIdenticalRecordsSingleCluster(t *testing.T) {
	var pts []Point
	for i := 0; i < 50; i++ {
		pts = append(pts, NewPoint(activity.Record{
			Timestamp:  t0.Add(time.Duration(i) * time.Minute),
			Exe:        "code.exe",
			Title:      "main.go - Visual Studio Code",
			Mode:       activity.ModeCoding,
			Confidence: 0.9,
		}))
	}

	res := NewEngine(DefaultConfig()).Run(pts, NewRegistry())

	require.Len(t, res.Profiles, 1)
	assert.Equal(t, AlgorithmCatchAll, res.Algorithm)
	assert.True(t, res.LowConfidence)
	assert.Equal(t, activity.ModeCoding, res.Profiles[0].Label)
	assert.InDelta(t, 0.9, res.Profiles[0].Confidence, 1e-9)
	for _, a := range res.Assignments {
		assert.Equal(t, res.Profiles[0].ID, a.ClusterID)
		assert.False(t, a.Anomalous)
	}
	assert.Empty(t, res.Anomalies)
	assert.Equal(t, 1.0, res.FlowLikelihood)
	require.Len(t, res.Flows, 1)
	assert.Equal(t, 49*time.Minute, res.Flows[0].Duration)
}

func TestRunSeparatedGroups(t *testing.T) {
	pts := groupedPoints(3, 10)
	res := NewEngine(DefaultConfig()).Run(pts, NewRegistry())

	assert.False(t, res.LowConfidence)
	assert.Equal(t, "density", res.Algorithm)
	require.Len(t, res.Profiles, 3)

	k := res.Registry.NextID
	for _, a := range res.Assignments {
		assert.True(t, a.ClusterID == Noise || (a.ClusterID >= 0 && a.ClusterID < k), "id %d out of range", a.ClusterID)
	}
	for _, p := range res.Profiles {
		assert.Greater(t, p.Cohesion, 0.0)
		assert.LessOrEqual(t, p.Cohesion, 1.0)
		assert.Equal(t, 10, p.Size)
	}
	// Members of one group share one id.
	for i := range pts {
		assert.Equal(t, res.Assignments[groupOf(i, 10)*10].ClusterID, res.Assignments[i].ClusterID)
	}
}

func TestRunIdempotent(t *testing.T) {
	pts := groupedPoints(3, 10)
	eng := NewEngine(DefaultConfig())
	prev := eng.Run(pts, NewRegistry()).Registry

	a := eng.Run(pts, prev)
	b := eng.Run(pts, prev)
	require.Equal(t, len(a.Assignments), len(b.Assignments))
	for i := range a.Assignments {
		assert.Equal(t, a.Assignments[i].ClusterID, b.Assignments[i].ClusterID)
	}
}

func TestRunStableIdsAcrossRuns(t *testing.T) {
	pts := groupedPoints(3, 10)
	eng := NewEngine(DefaultConfig())
	first := eng.Run(pts, NewRegistry())

	reversed := make([]Point, len(pts))
	for i := range pts {
		reversed[len(pts)-1-i] = pts[i]
	}
	second := eng.Run(reversed, first.Registry)

	for i := range pts {
		j := len(pts) - 1 - i
		assert.Equal(t, first.Assignments[i].ClusterID, second.Assignments[j].ClusterID)
	}
	assert.Equal(t, first.Registry.NextID, second.Registry.NextID, "no new ids for unchanged data")
	for _, p := range second.Profiles {
		assert.Equal(t, 20, p.Seen)
	}
}

func TestRunNewClusterGetsNextID(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	first := eng.Run(groupedPoints(2, 10), NewRegistry())
	second := eng.Run(groupedPoints(3, 10), first.Registry)

	ids := map[int]bool{}
	for _, p := range second.Profiles {
		ids[p.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.True(t, ids[first.Registry.NextID], "third group should take the next unused id")
}

type fixedStrategy struct {
	name   string
	labels []int
	err    error
}

func (s fixedStrategy) Name() string { return s.name }
func (s fixedStrategy) FitAndAssign(ds *Dataset) ([]int, error) {
	return s.labels, s.err
}

func TestFallbackOrder(t *testing.T) {
	pts := groupedPoints(2, 6)
	split := make([]int, 12)
	for i := 6; i < 12; i++ {
		split[i] = 1
	}
	one := make([]int, 12)

	eng := NewEngine(DefaultConfig()).WithStrategies(
		fixedStrategy{name: "broken", err: ErrInsufficientData},
		fixedStrategy{name: "single", labels: one},
		fixedStrategy{name: "split", labels: split},
	)
	res := eng.Run(pts, NewRegistry())
	assert.Equal(t, "split", res.Algorithm)
	assert.Len(t, res.Profiles, 2)

	eng = NewEngine(DefaultConfig()).WithStrategies(fixedStrategy{name: "broken", err: errors.New("boom")})
	res = eng.Run(pts, NewRegistry())
	assert.Equal(t, AlgorithmCatchAll, res.Algorithm)
	assert.True(t, res.LowConfidence)
	assert.Len(t, res.Profiles, 1)
}

func TestSequenceStats(t *testing.T) {
	pts := groupedPoints(2, 6)
	for i := range pts {
		pts[i].Timestamp = t0.Add(time.Duration(i) * 5 * time.Minute)
	}
	split := make([]int, 12)
	for i := 6; i < 12; i++ {
		split[i] = 1
	}
	res := NewEngine(DefaultConfig()).WithStrategies(fixedStrategy{name: "split", labels: split}).Run(pts, NewRegistry())

	assert.Equal(t, 1, res.SwitchCount)
	assert.InDelta(t, 0.5, res.FlowLikelihood, 1e-9)
	require.Len(t, res.Transitions, 3)
	assert.Equal(t, Transition{From: 0, To: 0, Count: 5}, res.Transitions[0])
	assert.Equal(t, Transition{From: 1, To: 1, Count: 5}, res.Transitions[1])
	assert.Equal(t, Transition{From: 0, To: 1, Count: 1}, res.Transitions[2])

	require.Len(t, res.Flows, 2)
	assert.Equal(t, 30*time.Minute, res.Flows[0].Duration)
	assert.Equal(t, 25*time.Minute, res.Flows[1].Duration)
}

func TestNoiseIsAnomalous(t *testing.T) {
	pts := groupedPoints(2, 6)
	labels := make([]int, 12)
	for i := 6; i < 12; i++ {
		labels[i] = 1
	}
	labels[11] = Noise
	res := NewEngine(DefaultConfig()).WithStrategies(fixedStrategy{name: "x", labels: labels}).Run(pts, NewRegistry())
	assert.Equal(t, Noise, res.Assignments[11].ClusterID)
	assert.True(t, res.Assignments[11].Anomalous)
	assert.Contains(t, res.Anomalies, 11)
}

func TestAnomalyLimit(t *testing.T) {
	limit := anomalyLimit([]float64{0.1, 0.1, 0.12, 0.11, 2.0}, 3)
	assert.Less(t, limit, 2.0)
	assert.Greater(t, limit, 0.12)
}

func TestRegistryNearest(t *testing.T) {
	res := NewEngine(DefaultConfig()).Run(groupedPoints(3, 10), NewRegistry())
	v := groupedPoints(3, 10)[25].Vector.Float64()
	id, sim, ok := res.Registry.Nearest(v, 0.85)
	require.True(t, ok)
	assert.Greater(t, sim, 0.85)
	assert.Equal(t, res.Assignments[25].ClusterID, id)

	var far embedding.Vector
	far[700] = 1
	_, _, ok = res.Registry.Nearest(far.Float64(), 0.85)
	assert.False(t, ok)
}

func TestRegistryDistances(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.NearestDistance([]float64{1, 0})
	assert.False(t, ok)

	reg.Profiles = []Profile{
		{ID: 0, Centroid: []float64{1, 0}},
		{ID: 4, Centroid: []float64{0, 1}},
	}
	d, ok := reg.DistanceTo(4, []float64{0, 0.5})
	require.True(t, ok)
	assert.InDelta(t, 0.5, d, 1e-12)

	d, ok = reg.NearestDistance([]float64{0.9, 0})
	require.True(t, ok)
	assert.InDelta(t, 0.1, d, 1e-12)

	_, ok = reg.DistanceTo(7, []float64{1, 0})
	assert.False(t, ok)
}

package insights

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/forecast"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

func sampleInputs() Inputs {
	return Inputs{
		GeneratedAt: time.Date(2026, 3, 12, 18, 0, 0, 0, time.UTC),
		Clusters: cluster.Result{
			Algorithm: "density",
			Profiles: []cluster.Profile{
				{ID: 0, Label: "coding"},
				{ID: 1, Label: "browsing"},
			},
			Transitions:    []cluster.Transition{{From: 0, To: 1, Count: 10}},
			Flows:          []cluster.Flow{{ClusterID: 0, Duration: time.Hour, Samples: 60}},
			Anomalies:      []int{7, 9},
			SwitchCount:    19,
			FlowLikelihood: 0.5,
		},
		Forecast: forecast.Result{
			Distribution:     map[int]float64{0: 0.75, 1: 0.25},
			PredictedCluster: 0,
			Tier:             forecast.TierSeasonal,
		},
		Twin: twin.Queries{
			ProductivityWindows: []twin.Window{{Hour: 8, Productivity: 0.9}},
			ProductivityDips:    []twin.Window{{Hour: 9, Productivity: 0.2}},
			DeepWorkWindows:     []twin.Window{{Hour: 8, Score: 0.85}},
			Triggers: twin.Triggers{
				Transitions: []twin.Trigger{{From: 0, To: 1, Weight: 6.6}},
				Apps:        []twin.AppTrigger{{App: "chrome.exe", Events: 600}},
			},
			Stress:        twin.Stress{Estimate: twin.StressLow},
			GoalAlignment: twin.Alignment{Score: 0.7, Trend: twin.TrendOnTrack},
		},
	}
}

func TestSummarizeAssemblesWithoutRecomputing(t *testing.T) {
	in := sampleInputs()
	snap := Summarize(in)

	assert.Equal(t, in.GeneratedAt, snap.GeneratedAt)
	assert.Equal(t, "density", snap.Algorithm)
	assert.Equal(t, in.Clusters.Profiles, snap.Profiles)
	assert.Equal(t, in.Clusters.Transitions, snap.Transitions)
	assert.Equal(t, []int{7, 9}, snap.Anomalies)
	assert.Equal(t, in.Forecast, snap.Forecast)
	assert.Equal(t, in.Twin, snap.Twin)
	assert.False(t, snap.Degraded)
}

func TestSummarizeInsightLines(t *testing.T) {
	snap := Summarize(sampleInputs())
	text := strings.Join(snap.Insights, "\n")

	assert.Contains(t, text, "Next hour likely coding (cluster 0) (75.0%, seasonal tier).")
	assert.Contains(t, text, "Productivity peaks around 08:00 (0.90).")
	assert.Contains(t, text, "Productivity dips expected around 09:00 (0.20).")
	assert.Contains(t, text, "Recommended deep-work window: 08:00-09:00.")
	assert.Contains(t, text, "Frequent distraction via chrome.exe (600 events).")
	assert.Contains(t, text, "Switching from coding (cluster 0) to browsing (cluster 1)")
	assert.Contains(t, text, "2 unusual observations flagged.")
	assert.Contains(t, text, "Long-term goals on track")
	assert.NotContains(t, text, "Stress signal")
	assert.NotContains(t, text, "Low confidence")
}

func TestSummarizePropagatesLowConfidence(t *testing.T) {
	in := sampleInputs()
	in.Clusters.LowConfidence = true
	in.Forecast.LowConfidence = true
	in.Forecast.Tier = forecast.TierBaseline
	in.Twin.GoalAlignment.LowConfidence = true

	snap := Summarize(in)
	assert.True(t, snap.Degraded)
	assert.Equal(t, Confidence{Clustering: true, Forecast: true, Twin: true}, snap.LowConfidence)
	assert.True(t, snap.Forecast.LowConfidence)
	assert.Contains(t, strings.Join(snap.Insights, "\n"), "Low confidence: limited history.")
}

func TestSummarizeEmptyInputs(t *testing.T) {
	snap := Summarize(Inputs{})
	require.NotNil(t, snap)
	assert.Empty(t, snap.Insights)
	assert.False(t, snap.Degraded)
}

func TestSummarizeUnknownAndStress(t *testing.T) {
	in := Inputs{
		Forecast: forecast.Result{Distribution: map[int]float64{forecast.Unknown: 1}, PredictedCluster: forecast.Unknown, LowConfidence: true, Tier: forecast.TierBaseline},
		Twin: twin.Queries{
			Stress:        twin.Stress{Estimate: twin.StressHigh, SwitchRate: 1.25},
			GoalAlignment: twin.Alignment{Trend: twin.TrendDrifting},
		},
	}
	text := strings.Join(Summarize(in).Insights, "\n")
	assert.Contains(t, text, "Next hour likely unknown activity (100.0%, baseline tier).")
	assert.Contains(t, text, "Stress signal: high context-switch rate (1.250/min).")
	assert.Contains(t, text, "Long-term goals at risk")
}

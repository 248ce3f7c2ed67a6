package insights

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/forecast"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

const maxListed = 3

// Summarize assembles a Snapshot from in. It only reads its inputs: every
// number in the snapshot was computed upstream, and every upstream
// low-confidence flag is carried through.
func Summarize(in Inputs) Snapshot {
	conf := Confidence{
		Clustering: in.Clusters.LowConfidence,
		Forecast:   in.Forecast.LowConfidence,
		Twin:       in.Twin.GoalAlignment.LowConfidence,
	}
	snap := Snapshot{
		GeneratedAt:    in.GeneratedAt,
		Algorithm:      in.Clusters.Algorithm,
		Profiles:       in.Clusters.Profiles,
		Transitions:    in.Clusters.Transitions,
		Flows:          in.Clusters.Flows,
		Anomalies:      in.Clusters.Anomalies,
		SwitchCount:    in.Clusters.SwitchCount,
		FlowLikelihood: in.Clusters.FlowLikelihood,
		Forecast:       in.Forecast,
		Twin:           in.Twin,
		LowConfidence:  conf,
		Degraded:       conf.Any(),
	}
	snap.Insights = lines(in, newNamer(in.Clusters.Profiles))
	return snap
}

// #region lines

func lines(in Inputs, name namer) []string {
	var out []string

	if f := in.Forecast; len(f.Distribution) > 0 {
		line := fmt.Sprintf("Next hour likely %s (%.1f%%, %s tier).",
			name(f.PredictedCluster), f.Distribution[f.PredictedCluster]*100, f.Tier)
		if f.LowConfidence {
			line += " Low confidence: limited history."
		}
		out = append(out, line)
	}

	if w := in.Twin.ProductivityWindows; len(w) > 0 {
		out = append(out, "Productivity peaks around "+hours(w)+".")
	}
	if w := in.Twin.ProductivityDips; len(w) > 0 {
		out = append(out, "Productivity dips expected around "+hours(w)+".")
	}
	if w := in.Twin.DeepWorkWindows; len(w) > 0 {
		out = append(out, fmt.Sprintf("Recommended deep-work window: %02d:00-%02d:00.", w[0].Hour, (w[0].Hour+1)%24))
	}

	if apps := in.Twin.Triggers.Apps; len(apps) > 0 {
		out = append(out, fmt.Sprintf("Frequent distraction via %s (%d events).", apps[0].App, apps[0].Events))
	}
	if tr := in.Twin.Triggers.Transitions; len(tr) > 0 {
		out = append(out, fmt.Sprintf("Switching from %s to %s often precedes unproductive time.", name(tr[0].From), name(tr[0].To)))
	}

	if s := in.Twin.Stress; s.Estimate != "" && s.Estimate != twin.StressLow {
		out = append(out, fmt.Sprintf("Stress signal: %s context-switch rate (%.3f/min).", s.Estimate, s.SwitchRate))
	}

	if in.Clusters.FlowLikelihood > 0 && len(in.Clusters.Flows) > 0 {
		out = append(out, fmt.Sprintf("Flow-state likelihood %.0f%% across %d focused stretches.", in.Clusters.FlowLikelihood*100, len(in.Clusters.Flows)))
	}
	if n := len(in.Clusters.Anomalies); n > 0 {
		out = append(out, fmt.Sprintf("%d unusual observations flagged.", n))
	}

	switch in.Twin.GoalAlignment.Trend {
	case twin.TrendDrifting:
		out = append(out, "Long-term goals at risk: dopamine-driven patterns dominate.")
	case twin.TrendOnTrack:
		out = append(out, "Long-term goals on track: goal-oriented patterns dominate.")
	}
	return out
}

func hours(ws []twin.Window) string {
	parts := make([]string, 0, maxListed)
	for i, w := range ws {
		if i == maxListed {
			break
		}
		parts = append(parts, fmt.Sprintf("%02d:00 (%.2f)", w.Hour, w.Productivity))
	}
	return strings.Join(parts, ", ")
}

// #endregion lines

// #region names

type namer func(id int) string

func newNamer(profiles []cluster.Profile) namer {
	labels := make(map[int]string, len(profiles))
	for _, p := range profiles {
		labels[p.ID] = p.Label
	}
	return func(id int) string {
		if id == forecast.Unknown {
			return "unknown activity"
		}
		if l, ok := labels[id]; ok && l != "" {
			return fmt.Sprintf("%s (cluster %d)", l, id)
		}
		return fmt.Sprintf("cluster %d", id)
	}
}

// #endregion names

package replay

import (
	"context"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/insights"
	"github.com/danielpatrickdp/behavior-twin/internal/pipeline"
)

// #region types

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalRecords int               `json:"total_records"`
	Labeled      int               `json:"labeled"`
	Noise        int               `json:"noise"`
	ByCluster    map[int]int       `json:"by_cluster"`
	Report       insights.Snapshot `json:"report"`
}

// Mismatch is one failed fixture expectation.
type Mismatch struct {
	Field    string
	Expected string
	Actual   string
}

// #endregion types

// #region replay

// Replay observes records in timestamp order and then generates a report.
// The report relabels the replayed window, so the tallies reflect the
// clusters it found even on a cold pipeline. Records that aged out of the
// history window before the report keep the label they were observed with
// and are not tallied.
func Replay(ctx context.Context, p *pipeline.Pipeline, records []activity.Record) (ReplaySummary, error) {
	recs := slices.Clone(records)
	slices.SortStableFunc(recs, func(a, b activity.Record) int { return a.Timestamp.Compare(b.Timestamp) })

	s := ReplaySummary{ByCluster: make(map[int]int)}
	for i, rec := range recs {
		if _, err := p.Observe(ctx, rec); err != nil {
			return s, fmt.Errorf("observe record %d: %w", i, err)
		}
		s.TotalRecords++
	}

	snap, err := p.Report(ctx)
	if err != nil {
		return s, fmt.Errorf("report: %w", err)
	}
	s.Report = snap

	for _, id := range p.RecentLabels(len(recs)) {
		if id == cluster.Noise {
			s.Noise++
			continue
		}
		s.Labeled++
		s.ByCluster[id]++
	}
	return s, nil
}

// Check compares a report against a fixture's expectations.
func Check(snap insights.Snapshot, want FixtureExpected) []Mismatch {
	var out []Mismatch
	if want.Algorithm != "" && snap.Algorithm != want.Algorithm {
		out = append(out, Mismatch{Field: "algorithm", Expected: want.Algorithm, Actual: snap.Algorithm})
	}
	if want.ForecastTier != "" && snap.Forecast.Tier != want.ForecastTier {
		out = append(out, Mismatch{Field: "forecast_tier", Expected: want.ForecastTier, Actual: snap.Forecast.Tier})
	}
	if want.MinProfiles > 0 && len(snap.Profiles) < want.MinProfiles {
		out = append(out, Mismatch{
			Field:    "profiles",
			Expected: fmt.Sprintf(">= %d", want.MinProfiles),
			Actual:   fmt.Sprintf("%d", len(snap.Profiles)),
		})
	}
	labels := make(map[string]bool, len(snap.Profiles))
	for _, p := range snap.Profiles {
		labels[p.Label] = true
	}
	for _, l := range want.Labels {
		if !labels[l] {
			out = append(out, Mismatch{Field: "label", Expected: l, Actual: "missing"})
		}
	}
	return out
}

// #endregion replay

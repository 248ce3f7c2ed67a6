package insights

import (
	"time"

	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/forecast"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// Inputs are the already computed results a snapshot is assembled from.
type Inputs struct {
	Clusters    cluster.Result
	Forecast    forecast.Result
	Twin        twin.Queries
	GeneratedAt time.Time
}

// Confidence records which parts of a snapshot came from a degraded tier.
type Confidence struct {
	Clustering bool `json:"clustering_low"`
	Forecast   bool `json:"forecast_low"`
	Twin       bool `json:"twin_low"`
}

// Any reports whether any part is low confidence.
func (c Confidence) Any() bool { return c.Clustering || c.Forecast || c.Twin }

// Snapshot is the on-demand insight report.
type Snapshot struct {
	GeneratedAt    time.Time            `json:"generated_at"`
	Algorithm      string               `json:"algorithm"`
	Profiles       []cluster.Profile    `json:"profiles"`
	Transitions    []cluster.Transition `json:"transitions"`
	Flows          []cluster.Flow       `json:"flows"`
	Anomalies      []int                `json:"anomalies"`
	SwitchCount    int                  `json:"switch_count"`
	FlowLikelihood float64              `json:"flow_likelihood"`
	Forecast       forecast.Result      `json:"forecast"`
	Twin           twin.Queries         `json:"twin"`
	LowConfidence  Confidence           `json:"low_confidence"`
	Degraded       bool                 `json:"degraded"`
	Insights       []string             `json:"insights"`
}

package cluster

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/embedding"
)

// Noise marks an observation no cluster accepted.
const Noise = -1

var (
	// ErrInsufficientData means a strategy needs more points than it was given.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerate means the data has no usable structure (e.g. zero spread).
	ErrDegenerate = errors.New("degenerate input")
)

// #region point

// Point is one embedded observation plus the heuristic fields used for labeling.
type Point struct {
	Vector     embedding.Vector
	Timestamp  time.Time
	Mode       string
	Confidence float64
	Exe        string

	CognitiveLoad float64
	Dopamine      float64
	Goal          float64
}

// NewPoint embeds a record and keeps the fields clustering needs.
func NewPoint(rec activity.Record) Point {
	vec, sig := embedding.BuildWithSignals(rec)
	return PointFromVector(rec, vec, sig)
}

// PointFromVector builds a Point from an already computed embedding.
func PointFromVector(rec activity.Record, vec embedding.Vector, sig activity.Signals) Point {
	return Point{
		Vector:        vec,
		Timestamp:     rec.Timestamp,
		Mode:          sig.Mode,
		Confidence:    activity.Clamp01(rec.Confidence),
		Exe:           sig.Exe,
		CognitiveLoad: sig.CognitiveLoad,
		Dopamine:      sig.DopamineScore,
		Goal:          sig.GoalScore,
	}
}

// #endregion point

// #region assignment

// Assignment maps one input point to a cluster.
type Assignment struct {
	Index     int     `json:"index"`
	ClusterID int     `json:"cluster_id"`
	Distance  float64 `json:"distance"`
	Anomalous bool    `json:"anomalous"`
}

// #endregion assignment

// #region profile

// ModeCount is a label with its member count.
type ModeCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Profile describes one behavior cluster.
type Profile struct {
	ID         int       `json:"id"`
	Centroid   []float64 `json:"centroid"`
	Size       int       `json:"size"`
	Seen       int       `json:"seen"` // cumulative members across runs
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Cohesion   float64   `json:"cohesion"`
	Anomalous  bool      `json:"anomalous"`
	Archetype  string    `json:"archetype"`

	TopModes []ModeCount `json:"top_modes,omitempty"`
	TopApps  []ModeCount `json:"top_apps,omitempty"`

	AvgCognitiveLoad float64 `json:"avg_cognitive_load"`
	AvgDopamine      float64 `json:"avg_dopamine"`
	AvgGoal          float64 `json:"avg_goal"`

	LastSeen time.Time `json:"last_seen"`
}

// Archetypes derived from averaged signals.
const (
	ArchetypeDeepWork          = "deep_work"
	ArchetypeDopamineScrolling = "dopamine_scrolling"
	ArchetypeGamingFocus       = "gaming_focus"
	ArchetypeMicroTasking      = "micro_tasking"
	ArchetypeResearch          = "research_mode"
	ArchetypeGeneric           = "behavior_cluster"
)

// #endregion profile

// #region flow

// Transition counts consecutive moves between clusters.
type Transition struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Count int `json:"count"`
}

// Flow is a maximal run of same-cluster observations long enough to count.
type Flow struct {
	ClusterID int           `json:"cluster_id"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Duration  time.Duration `json:"duration"`
	Samples   int           `json:"samples"`
}

// #endregion flow

// #region result

// Result is everything one clustering run produces.
type Result struct {
	Algorithm      string       `json:"algorithm"`
	Assignments    []Assignment `json:"assignments"`
	Profiles       []Profile    `json:"profiles"`
	Transitions    []Transition `json:"transitions"`
	Flows          []Flow       `json:"flows"`
	Anomalies      []int        `json:"anomalies"`
	SwitchCount    int          `json:"switch_count"`
	FlowLikelihood float64      `json:"flow_likelihood"`
	LowConfidence  bool         `json:"low_confidence"`

	// Registry is the previous registry updated with this run's profiles.
	Registry Registry `json:"-"`
}

// #endregion result

// #region config

// Config holds clustering parameters.
type Config struct {
	MinSamples      int           `yaml:"min_samples"`       // below this, return the catch-all cluster
	MinClusterSize  int           `yaml:"min_cluster_size"`  // density tier; 0 = max(2, sqrt(n))
	MinPts          int           `yaml:"min_pts"`           // distance tier neighbourhood size
	KMin            int           `yaml:"k_min"`             // centroid tier search range
	KMax            int           `yaml:"k_max"`
	MaxIterations   int           `yaml:"max_iterations"`    // k-means Lloyd iterations
	MatchThreshold  float64       `yaml:"match_threshold"`   // cosine similarity to reuse a cluster id
	AnomalyMAD      float64       `yaml:"anomaly_mad"`       // distance > median + AnomalyMAD*MAD
	RareShare       float64       `yaml:"rare_share"`        // clusters below this share are flagged
	FlowMinDuration time.Duration `yaml:"flow_min_duration"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples:      6,
		MinClusterSize:  0,
		MinPts:          4,
		KMin:            2,
		KMax:            8,
		MaxIterations:   100,
		MatchThreshold:  0.85,
		AnomalyMAD:      3.0,
		RareShare:       0.05,
		FlowMinDuration: 20 * time.Minute,
	}
}

// #endregion config

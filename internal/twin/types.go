package twin

import (
	"errors"
	"math"
	"time"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
)

// SchemaVersion is the snapshot layout this build reads and writes.
const SchemaVersion = 1

// Unknown is the cold-start state and the state noise observations map to.
const Unknown = -1

var (
	// ErrUnknownSchema is returned for snapshots written with another layout.
	ErrUnknownSchema = errors.New("twin: unknown snapshot schema")
	// ErrCorrupt is returned for snapshots that decode but violate state invariants.
	ErrCorrupt = errors.New("twin: corrupt snapshot")
	// ErrNoSnapshot is returned by a SnapshotStore that has nothing saved yet.
	ErrNoSnapshot = errors.New("twin: no snapshot")
)

// #region observation

// Observation is one record as the twin sees it: its cluster and signals.
type Observation struct {
	ClusterID     int
	Timestamp     time.Time
	App           string
	Productivity  float64
	Distraction   float64
	CognitiveLoad float64
}

// NewObservation builds an Observation from a record, its assigned cluster and
// its derived signals.
func NewObservation(rec activity.Record, clusterID int, sig activity.Signals) Observation {
	if clusterID < 0 {
		clusterID = Unknown
	}
	return Observation{
		ClusterID:     clusterID,
		Timestamp:     rec.Timestamp,
		App:           sig.Exe,
		Productivity:  sig.Productivity(),
		Distraction:   sig.Distraction(),
		CognitiveLoad: activity.Clamp01(sig.CognitiveLoad),
	}
}

// sanitize clamps every signal into [0,1]. NaN becomes the neutral 0.5.
func (o Observation) sanitize() Observation {
	o.Productivity = unit(o.Productivity)
	o.Distraction = unit(o.Distraction)
	o.CognitiveLoad = unit(o.CognitiveLoad)
	return o
}

func unit(x float64) float64 {
	if math.IsNaN(x) {
		return 0.5
	}
	return math.Max(0, math.Min(1, x))
}

// #endregion observation

// #region decayed-count

// DecayedCount is an exponentially decayed counter. Value is exact as of
// UpdatedAt; reading it at a later time applies the decay lazily.
type DecayedCount struct {
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// At returns the counter value decayed to now.
func (c DecayedCount) At(now time.Time, halfLife time.Duration) float64 {
	return c.Value * decayFactor(now.Sub(c.UpdatedAt), halfLife)
}

// add decays the counter to now and adds delta. A counter without a
// timestamp is taken as current.
func (c *DecayedCount) add(now time.Time, delta float64, halfLife time.Duration) {
	if c.UpdatedAt.IsZero() {
		c.Value += delta
		c.UpdatedAt = now
		return
	}
	c.Value = c.At(now, halfLife) + delta
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// decayFactor is 2^(-age/halfLife). Negative ages (out-of-order records) do not
// grow the counter.
func decayFactor(age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

// #endregion decayed-count

// #region stat

// Stat is a Welford running mean and variance.
type Stat struct {
	N    int64   `json:"n"`
	Mean float64 `json:"mean"`
	M2   float64 `json:"m2"`
}

// Add folds x into the running statistics.
func (s *Stat) Add(x float64) {
	s.N++
	delta := x - s.Mean
	s.Mean += delta / float64(s.N)
	s.M2 += delta * (x - s.Mean)
}

// Variance returns the sample variance, or 0 below two samples.
func (s Stat) Variance() float64 {
	if s.N < 2 {
		return 0
	}
	return s.M2 / float64(s.N-1)
}

// #endregion stat

// #region factor

// Factor aggregates observations that fall into one context bucket.
type Factor struct {
	Productivity  Stat          `json:"productivity"`
	Distraction   Stat          `json:"distraction"`
	CognitiveLoad Stat          `json:"cognitive_load"`
	Clusters      map[int]int64 `json:"clusters"`
}

// Count returns how many observations the bucket has seen.
func (f *Factor) Count() int64 { return f.Productivity.N }

// Dominant returns the most frequent cluster in the bucket, smallest id on ties.
func (f *Factor) Dominant() (int, bool) {
	best, id := int64(0), Unknown
	for c, n := range f.Clusters {
		if n > best || (n == best && c < id) {
			best, id = n, c
		}
	}
	return id, best > 0
}

func (f *Factor) add(obs Observation) {
	f.Productivity.Add(obs.Productivity)
	f.Distraction.Add(obs.Distraction)
	f.CognitiveLoad.Add(obs.CognitiveLoad)
	if f.Clusters == nil {
		f.Clusters = map[int]int64{}
	}
	f.Clusters[obs.ClusterID]++
}

func (f *Factor) clone() *Factor {
	out := *f
	out.Clusters = make(map[int]int64, len(f.Clusters))
	for k, v := range f.Clusters {
		out.Clusters[k] = v
	}
	return &out
}

// #endregion factor

// #region queries

// Window is a time bucket with its aggregated signals.
type Window struct {
	Hour         int     `json:"hour"`
	Productivity float64 `json:"productivity"`
	Distraction  float64 `json:"distraction"`
	Samples      int64   `json:"samples"`
	Score        float64 `json:"score,omitempty"`
	Entropy      float64 `json:"entropy,omitempty"`
}

// Trigger is a transition into a cluster that historically runs unproductive.
type Trigger struct {
	From               int     `json:"from"`
	To                 int     `json:"to"`
	Weight             float64 `json:"weight"`
	TargetProductivity float64 `json:"target_productivity"`
}

// AppTrigger is an application whose observations lean towards distraction.
type AppTrigger struct {
	App         string  `json:"app"`
	Events      int64   `json:"events"`
	Distraction float64 `json:"distraction"`
}

// Triggers groups the procrastination trigger queries.
type Triggers struct {
	Transitions []Trigger    `json:"transitions"`
	Apps        []AppTrigger `json:"apps"`
}

// Cue is a context bucket with high aggregated cognitive load.
type Cue struct {
	Context       string  `json:"context"`
	CognitiveLoad float64 `json:"cognitive_load"`
	Samples       int64   `json:"samples"`
}

// Stress level labels for the switch-rate estimate.
const (
	StressLow    = "low"
	StressMedium = "medium"
	StressHigh   = "high"
)

// Stress groups the cognitive-load cues and the decayed switch-rate estimate.
type Stress struct {
	Cues       []Cue   `json:"cues"`
	SwitchRate float64 `json:"switch_rate"` // cluster switches per minute
	Estimate   string  `json:"estimate"`
}

// Goal alignment trend labels.
const (
	TrendOnTrack  = "on_track"
	TrendNeutral  = "neutral"
	TrendDrifting = "drifting"
)

// Alignment is the long-horizon goal-alignment estimate.
type Alignment struct {
	Score         float64 `json:"score"`
	Trend         string  `json:"trend"`
	LowConfidence bool    `json:"low_confidence"`
}

// Queries bundles every derived query over one consistent state.
type Queries struct {
	ProductivityWindows []Window        `json:"productivity_windows"`
	ProductivityDips    []Window        `json:"productivity_dips"`
	Triggers            Triggers        `json:"procrastination_triggers"`
	Stress              Stress          `json:"stress"`
	DeepWorkWindows     []Window        `json:"deep_work_windows"`
	Stationary          map[int]float64 `json:"stationary"`
	GoalAlignment       Alignment       `json:"goal_alignment"`
	Events              int64           `json:"events"`
	LastUpdate          time.Time       `json:"last_update"`
}

// #endregion queries

// #region config

// Config holds decay and query thresholds.
type Config struct {
	HalfLife              time.Duration `yaml:"half_life"`
	ProductivityThreshold float64       `yaml:"productivity_threshold"`
	DipThreshold          float64       `yaml:"dip_threshold"`
	LowProductivity       float64       `yaml:"low_productivity"` // trigger target ceiling
	StressThreshold       float64       `yaml:"stress_threshold"` // cognitive load
	MinBucketSamples      int64         `yaml:"min_bucket_samples"`
	TopN                  int           `yaml:"top_n"`
	TopTriggers           int           `yaml:"top_triggers"`
	StressMedium          float64       `yaml:"stress_medium"` // switches per minute
	StressHigh            float64       `yaml:"stress_high"`
	OnTrack               float64       `yaml:"on_track"`
	Drifting              float64       `yaml:"drifting"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HalfLife:              7 * 24 * time.Hour,
		ProductivityThreshold: 0.6,
		DipThreshold:          0.35,
		LowProductivity:       0.4,
		StressThreshold:       0.6,
		MinBucketSamples:      3,
		TopN:                  3,
		TopTriggers:           5,
		StressMedium:          0.4,
		StressHigh:            0.8,
		OnTrack:               0.65,
		Drifting:              0.35,
	}
}

// #endregion config

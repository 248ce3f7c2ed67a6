package forecast

import (
	"math"
	"time"

	"github.com/danielpatrickdp/behavior-twin/internal/embedding"
)

// Unknown is the synthetic state used when no cluster is known at all.
const Unknown = -1

// Tier names, in fallback order.
const (
	TierSequence = "sequence"
	TierSeasonal = "seasonal"
	TierBaseline = "baseline"
)

// #region sample

// Sample is one point of the history window.
type Sample struct {
	Embedding    embedding.Vector
	ClusterID    int
	Productivity float64
	Distraction  float64
	Timestamp    time.Time
}

// TimeFeatures encodes hour-of-day and day-of-week on the unit circle so that
// 23:59 and 00:00 (or Sunday and Monday) are neighbours.
type TimeFeatures struct {
	HourSin float64 `json:"hour_sin"`
	HourCos float64 `json:"hour_cos"`
	DowSin  float64 `json:"dow_sin"`
	DowCos  float64 `json:"dow_cos"`
}

// CyclicalFeatures computes TimeFeatures for ts.
func CyclicalFeatures(ts time.Time) TimeFeatures {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	dow := float64((int(ts.Weekday()) + 6) % 7) // Monday = 0
	return TimeFeatures{
		HourSin: math.Sin(2 * math.Pi * hour / 24),
		HourCos: math.Cos(2 * math.Pi * hour / 24),
		DowSin:  math.Sin(2 * math.Pi * dow / 7),
		DowCos:  math.Cos(2 * math.Pi * dow / 7),
	}
}

// #endregion sample

// #region result

// Result is the next-hour forecast.
type Result struct {
	Distribution     map[int]float64 `json:"distribution"`
	PredictedCluster int             `json:"predicted_cluster"`
	Productivity     float64         `json:"productivity"`
	Distraction      float64         `json:"distraction"`
	LowConfidence    bool            `json:"low_confidence"`
	Tier             string          `json:"tier"`
	TargetHour       int             `json:"target_hour"`
	Samples          int             `json:"samples"`
}

// #endregion result

// #region config

// Config holds tier thresholds and model parameters.
type Config struct {
	MinSequenceSamples int           `yaml:"min_sequence_samples"`
	MinSequenceHours   int           `yaml:"min_sequence_hours"` // distinct (day, hour) buckets
	MinSeasonalDays    int           `yaml:"min_seasonal_days"`
	Horizon            time.Duration `yaml:"horizon"`
	KernelBandwidth    float64       `yaml:"kernel_bandwidth"` // hours
	SmoothingAlpha     float64       `yaml:"smoothing_alpha"`  // Holt level
	SmoothingBeta      float64       `yaml:"smoothing_beta"`   // Holt trend
	RecentWindow       int           `yaml:"recent_window"`    // baseline productivity window
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinSequenceSamples: 120,
		MinSequenceHours:   6,
		MinSeasonalDays:    3,
		Horizon:            time.Hour,
		KernelBandwidth:    2,
		SmoothingAlpha:     0.3,
		SmoothingBeta:      0.1,
		RecentWindow:       5,
	}
}

// #endregion config

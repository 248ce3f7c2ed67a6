package forecast

import (
	"log/slog"
	"math"
	"sort"
	"time"
)

// #region window

// Window is the time-ordered history a strategy predicts from.
type Window struct {
	Samples    []Sample
	Known      []int // cluster ids the caller knows about, ascending
	Target     time.Time
	TargetHour int
}

// Last returns the most recent sample.
func (w Window) Last() (Sample, bool) {
	if len(w.Samples) == 0 {
		return Sample{}, false
	}
	return w.Samples[len(w.Samples)-1], true
}

// #endregion window

// #region strategy

// Strategy is one forecasting tier. Ready is the tier's guard; Predict may
// return an unnormalised distribution.
type Strategy interface {
	Name() string
	Ready(w Window) bool
	Predict(w Window) Result
}

// Strategies returns the ordered fallback chain for cfg.
func Strategies(cfg Config) []Strategy {
	return []Strategy{
		&sequenceStrategy{cfg: cfg},
		&seasonalStrategy{cfg: cfg},
		&baselineStrategy{cfg: cfg},
	}
}

// #endregion strategy

// #region forecaster

// Forecaster selects the first ready tier and normalises its output.
type Forecaster struct {
	config     Config
	strategies []Strategy
	logger     *slog.Logger
}

// NewForecaster creates a Forecaster with the default chain.
func NewForecaster(config Config) *Forecaster {
	return &Forecaster{config: config, strategies: Strategies(config), logger: slog.Default()}
}

// Predict forecasts the hour after the newest sample. It never fails: sparse
// or empty history degrades to the baseline tier with LowConfidence set.
func (f *Forecaster) Predict(history []Sample, known []int) Result {
	samples := append([]Sample(nil), history...)
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	ids := append([]int(nil), known...)
	sort.Ints(ids)

	w := Window{Samples: samples, Known: ids}
	if last, ok := w.Last(); ok {
		w.Target = last.Timestamp.Add(f.config.Horizon)
		w.TargetHour = w.Target.Hour()
	}

	for _, s := range f.strategies {
		if !s.Ready(w) {
			continue
		}
		res := s.Predict(w)
		res.Tier = s.Name()
		res.TargetHour = w.TargetHour
		res.Samples = len(samples)
		finalize(&res, w)
		f.logger.Debug("forecast: tier selected", "tier", res.Tier, "samples", len(samples), "low_confidence", res.LowConfidence)
		return res
	}

	res := uniform(w)
	res.Tier = TierBaseline
	res.LowConfidence = true
	finalize(&res, w)
	return res
}

// #endregion forecaster

// #region normalize

// finalize restricts the distribution to known and observed clusters, fills in
// zero entries for known ids, renormalises and picks the argmax.
func finalize(res *Result, w Window) {
	dist := map[int]float64{}
	for id, p := range res.Distribution {
		if p > 0 && !math.IsNaN(p) {
			dist[id] = p
		}
	}
	if len(dist) > 1 {
		delete(dist, Unknown) // noise only counts when nothing else does
	}
	var total float64
	for _, p := range dist {
		total += p
	}
	if total <= 0 {
		res.Distribution = uniform(w).Distribution
		res.LowConfidence = true
	} else {
		for id := range dist {
			dist[id] /= total
		}
		for _, id := range w.Known {
			if _, ok := dist[id]; !ok {
				dist[id] = 0
			}
		}
		res.Distribution = dist
	}

	res.PredictedCluster = Unknown
	best := -1.0
	ids := make([]int, 0, len(res.Distribution))
	for id := range res.Distribution {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if p := res.Distribution[id]; p > best {
			best, res.PredictedCluster = p, id
		}
	}
	res.Productivity = clamp01(res.Productivity)
	res.Distraction = clamp01(res.Distraction)
}

// uniform spreads mass evenly over known clusters, or puts it all on Unknown.
func uniform(w Window) Result {
	dist := map[int]float64{}
	if len(w.Known) == 0 {
		dist[Unknown] = 1
	} else {
		for _, id := range w.Known {
			dist[id] = 1 / float64(len(w.Known))
		}
	}
	return Result{Distribution: dist}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion normalize

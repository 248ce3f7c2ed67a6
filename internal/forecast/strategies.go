package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/behavior-twin/internal/embedding"
)

// #region sequence

// sequenceStrategy is a context-weighted Markov model over the ordered window.
// Each observed transition out of the current cluster is weighted by how close
// its hour is to the target hour (circular gaussian kernel) and by how similar
// its source embedding is to the newest one. Productivity and distraction are
// Holt-smoothed one step ahead.
type sequenceStrategy struct {
	cfg Config
}

func (s *sequenceStrategy) Name() string { return TierSequence }

func (s *sequenceStrategy) Ready(w Window) bool {
	if len(w.Samples) < s.cfg.MinSequenceSamples {
		return false
	}
	return distinctHours(w.Samples) >= s.cfg.MinSequenceHours
}

func (s *sequenceStrategy) Predict(w Window) Result {
	last, _ := w.Last()
	lastVec := last.Embedding.Float64()
	target := CyclicalFeatures(w.Target)

	next := map[int]float64{}
	occupancy := map[int]float64{}
	for i := 1; i < len(w.Samples); i++ {
		prev, cur := w.Samples[i-1], w.Samples[i]
		k := hourKernel(CyclicalFeatures(cur.Timestamp), target, s.cfg.KernelBandwidth)
		occupancy[cur.ClusterID] += k
		if prev.ClusterID != last.ClusterID {
			continue
		}
		sim := cosine(prev.Embedding, lastVec)
		next[cur.ClusterID] += k * (0.5 + 0.5*sim)
	}

	dist := map[int]float64{}
	mix(dist, next, 0.7)
	mix(dist, occupancy, 0.3)

	prod := make([]float64, len(w.Samples))
	distr := make([]float64, len(w.Samples))
	for i, smp := range w.Samples {
		prod[i], distr[i] = smp.Productivity, smp.Distraction
	}
	return Result{
		Distribution: dist,
		Productivity: holt(prod, s.cfg.SmoothingAlpha, s.cfg.SmoothingBeta),
		Distraction:  holt(distr, s.cfg.SmoothingAlpha, s.cfg.SmoothingBeta),
	}
}

// #endregion sequence

// #region seasonal

// seasonalStrategy predicts from what happened at the target hour on previous
// days. Every day contributes equally.
type seasonalStrategy struct {
	cfg Config
}

func (s *seasonalStrategy) Name() string { return TierSeasonal }

func (s *seasonalStrategy) Ready(w Window) bool {
	if len(w.Samples) == 0 {
		return false
	}
	return len(samplesByDay(w.Samples, w.TargetHour)) >= s.cfg.MinSeasonalDays
}

func (s *seasonalStrategy) Predict(w Window) Result {
	days := samplesByDay(w.Samples, w.TargetHour)
	dist := map[int]float64{}
	var prod, distr []float64
	for _, day := range days {
		share := 1 / float64(len(day))
		for _, smp := range day {
			dist[smp.ClusterID] += share
			prod = append(prod, smp.Productivity)
			distr = append(distr, smp.Distraction)
		}
	}
	return Result{
		Distribution: dist,
		Productivity: stat.Mean(prod, nil),
		Distraction:  stat.Mean(distr, nil),
	}
}

// #endregion seasonal

// #region baseline

// baselineStrategy is the rolling empirical fallback: transitions out of the
// newest cluster, plus overall and same-hour occupancy priors.
type baselineStrategy struct {
	cfg Config
}

func (s *baselineStrategy) Name() string { return TierBaseline }

func (s *baselineStrategy) Ready(Window) bool { return true }

func (s *baselineStrategy) Predict(w Window) Result {
	last, ok := w.Last()
	if !ok {
		res := uniform(w)
		res.LowConfidence = true
		return res
	}

	dist := map[int]float64{}
	for i := 1; i < len(w.Samples); i++ {
		prev, cur := w.Samples[i-1], w.Samples[i]
		if prev.ClusterID == last.ClusterID {
			dist[cur.ClusterID]++
		}
		dist[cur.ClusterID] += 0.25
		if cur.Timestamp.Hour() == last.Timestamp.Hour() {
			dist[cur.ClusterID] += 0.5
		}
	}
	if len(dist) == 0 {
		dist[last.ClusterID] = 1
	}

	n := s.cfg.RecentWindow
	if n <= 0 || n > len(w.Samples) {
		n = len(w.Samples)
	}
	recent := w.Samples[len(w.Samples)-n:]
	var prod, distr float64
	for _, smp := range recent {
		prod += smp.Productivity
		distr += smp.Distraction
	}
	return Result{
		Distribution:  dist,
		Productivity:  prod / float64(n),
		Distraction:   distr / float64(n),
		LowConfidence: true,
	}
}

// #endregion baseline

// #region helpers

// distinctHours counts distinct (day, hour) buckets.
func distinctHours(samples []Sample) int {
	seen := map[string]struct{}{}
	for _, s := range samples {
		seen[s.Timestamp.Format("2006-01-02T15")] = struct{}{}
	}
	return len(seen)
}

// samplesByDay groups samples taken at hour by calendar day, in day order.
func samplesByDay(samples []Sample, hour int) [][]Sample {
	var days [][]Sample
	lastDay := ""
	for _, s := range samples {
		if s.Timestamp.Hour() != hour {
			continue
		}
		day := s.Timestamp.Format("2006-01-02")
		if day != lastDay {
			days = append(days, nil)
			lastDay = day
		}
		days[len(days)-1] = append(days[len(days)-1], s)
	}
	return days
}

// hourKernel is a gaussian in circular hour distance between two time features.
func hourKernel(a, b TimeFeatures, bandwidth float64) float64 {
	if bandwidth <= 0 {
		bandwidth = 1
	}
	angle := math.Atan2(a.HourSin*b.HourCos-a.HourCos*b.HourSin, a.HourCos*b.HourCos+a.HourSin*b.HourSin)
	hours := math.Abs(angle) * 24 / (2 * math.Pi)
	return math.Exp(-(hours * hours) / (2 * bandwidth * bandwidth))
}

// holt returns the one-step-ahead forecast of double exponential smoothing.
func holt(series []float64, alpha, beta float64) float64 {
	if len(series) == 0 {
		return 0
	}
	level, trend := series[0], 0.0
	if len(series) > 1 {
		trend = series[1] - series[0]
	}
	for _, x := range series[1:] {
		prev := level
		level = alpha*x + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
	}
	return level + trend
}

func mix(dst, src map[int]float64, weight float64) {
	var total float64
	for _, v := range src {
		total += v
	}
	if total <= 0 {
		return
	}
	for id, v := range src {
		dst[id] += weight * v / total
	}
}

func cosine(v embedding.Vector, ref []float64) float64 {
	a := v.Float64()
	na, nb := floats.Norm(a, 2), floats.Norm(ref, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, ref) / (na * nb)
}

// #endregion helpers

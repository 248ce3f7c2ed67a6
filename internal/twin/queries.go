package twin

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const (
	stationaryIterations = 100000
	stationaryTolerance  = 1e-12
)

// Queries evaluates every derived query against s. Decayed counts are read as
// of the last applied observation.
func (s *State) Queries(cfg Config) Queries {
	stationary := s.Stationary(cfg)
	return Queries{
		ProductivityWindows: s.ProductivityWindows(cfg),
		ProductivityDips:    s.ProductivityDips(cfg),
		Triggers:            s.ProcrastinationTriggers(cfg),
		Stress:              s.StressCues(cfg),
		DeepWorkWindows:     s.DeepWorkWindows(cfg),
		Stationary:          stationary,
		GoalAlignment:       s.goalAlignment(cfg, stationary),
		Events:              s.Events,
		LastUpdate:          s.LastUpdate,
	}
}

// #region windows

// ProductivityWindows returns the hours whose productivity mean reaches the
// threshold, best first.
func (s *State) ProductivityWindows(cfg Config) []Window {
	out := s.hourWindows(cfg, func(w Window) bool { return w.Productivity >= cfg.ProductivityThreshold })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Productivity > out[j].Productivity })
	return out
}

// ProductivityDips returns the hours whose productivity mean is at or below
// the dip threshold, worst first.
func (s *State) ProductivityDips(cfg Config) []Window {
	out := s.hourWindows(cfg, func(w Window) bool { return w.Productivity <= cfg.DipThreshold })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Productivity < out[j].Productivity })
	return out
}

// DeepWorkWindows ranks hours by productivity minus distraction minus the
// normalised entropy of the dominant cluster's outgoing transitions in that
// hour. Only positive scores qualify; at most TopN are returned.
func (s *State) DeepWorkWindows(cfg Config) []Window {
	out := s.hourWindows(cfg, func(Window) bool { return true })
	kept := out[:0]
	for _, w := range out {
		f := s.Factors[HourBucket(w.Hour)]
		if dom, ok := f.Dominant(); ok {
			w.Entropy = s.outgoingEntropy(w.Hour, dom, cfg)
		}
		w.Score = w.Productivity - w.Distraction - w.Entropy
		if w.Score > 0 {
			kept = append(kept, w)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if cfg.TopN > 0 && len(kept) > cfg.TopN {
		kept = kept[:cfg.TopN]
	}
	return kept
}

// hourWindows lists hour buckets with enough samples, in hour order.
func (s *State) hourWindows(cfg Config, keep func(Window) bool) []Window {
	var out []Window
	for h := 0; h < 24; h++ {
		f := s.Factors[HourBucket(h)]
		if f == nil || f.Count() < cfg.MinBucketSamples {
			continue
		}
		w := Window{
			Hour:         h,
			Productivity: f.Productivity.Mean,
			Distraction:  f.Distraction.Mean,
			Samples:      f.Count(),
		}
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}

// outgoingEntropy is the entropy of src's decayed outgoing distribution at
// hour, normalised to [0, 1] by the log of the number of targets.
func (s *State) outgoingEntropy(hour, src int, cfg Config) float64 {
	row := s.HourlyTransitions[hour][src]
	if len(row) < 2 {
		return 0
	}
	weights := make([]float64, 0, len(row))
	var total float64
	for _, c := range row {
		v := c.At(s.LastUpdate, cfg.HalfLife)
		weights = append(weights, v)
		total += v
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, v := range weights {
		if p := v / total; p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h / math.Log(float64(len(row)))
}

// #endregion windows

// #region triggers

// ProcrastinationTriggers ranks transitions into clusters whose productivity
// mean is below LowProductivity by decayed frequency, plus the applications
// whose observations lean towards distraction.
func (s *State) ProcrastinationTriggers(cfg Config) Triggers {
	var out Triggers
	for src, row := range s.Transitions {
		for dst, c := range row {
			if src == dst || dst == Unknown {
				continue
			}
			f := s.Factors[ClusterBucket(dst)]
			if f == nil || f.Count() < cfg.MinBucketSamples || f.Productivity.Mean >= cfg.LowProductivity {
				continue
			}
			out.Transitions = append(out.Transitions, Trigger{
				From:               src,
				To:                 dst,
				Weight:             c.At(s.LastUpdate, cfg.HalfLife),
				TargetProductivity: f.Productivity.Mean,
			})
		}
	}
	sort.Slice(out.Transitions, func(i, j int) bool {
		a, b := out.Transitions[i], out.Transitions[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})

	for key, f := range s.Factors {
		app, ok := strings.CutPrefix(key, bucketApp)
		if !ok || f.Count() < cfg.MinBucketSamples || f.Distraction.Mean <= f.Productivity.Mean {
			continue
		}
		out.Apps = append(out.Apps, AppTrigger{App: app, Events: f.Count(), Distraction: f.Distraction.Mean})
	}
	sort.Slice(out.Apps, func(i, j int) bool {
		if out.Apps[i].Events != out.Apps[j].Events {
			return out.Apps[i].Events > out.Apps[j].Events
		}
		return out.Apps[i].App < out.Apps[j].App
	})

	out.Transitions = truncate(out.Transitions, cfg.TopTriggers)
	out.Apps = truncate(out.Apps, cfg.TopTriggers)
	return out
}

// #endregion triggers

// #region stress

// StressCues lists contexts whose cognitive-load mean exceeds StressThreshold
// and estimates stress from the decayed cluster switch rate.
func (s *State) StressCues(cfg Config) Stress {
	var out Stress
	for key, f := range s.Factors {
		if f.Count() < cfg.MinBucketSamples || f.CognitiveLoad.Mean <= cfg.StressThreshold {
			continue
		}
		out.Cues = append(out.Cues, Cue{Context: key, CognitiveLoad: f.CognitiveLoad.Mean, Samples: f.Count()})
	}
	sort.Slice(out.Cues, func(i, j int) bool {
		if out.Cues[i].CognitiveLoad != out.Cues[j].CognitiveLoad {
			return out.Cues[i].CognitiveLoad > out.Cues[j].CognitiveLoad
		}
		return out.Cues[i].Context < out.Cues[j].Context
	})
	out.Cues = truncate(out.Cues, cfg.TopTriggers)

	if minutes := s.Minutes.At(s.LastUpdate, cfg.HalfLife); minutes > 0 {
		out.SwitchRate = s.Switches.At(s.LastUpdate, cfg.HalfLife) / minutes
	}
	switch {
	case out.SwitchRate > cfg.StressHigh:
		out.Estimate = StressHigh
	case out.SwitchRate > cfg.StressMedium:
		out.Estimate = StressMedium
	default:
		out.Estimate = StressLow
	}
	return out
}

// #endregion stress

// #region stationary

// Stationary returns the steady-state distribution of the row-normalised
// decayed transition matrix. States without outgoing mass jump uniformly.
// The lazy chain (I+P)/2 is iterated so that periodic habits still converge.
func (s *State) Stationary(cfg Config) map[int]float64 {
	states := s.stateSpace()
	n := len(states)
	out := make(map[int]float64, n)
	if n == 0 {
		return out
	}
	index := make(map[int]int, n)
	for i, id := range states {
		index[id] = i
	}

	p := mat.NewDense(n, n, nil)
	for i, src := range states {
		var total float64
		for dst, c := range s.Transitions[src] {
			v := c.At(s.LastUpdate, cfg.HalfLife)
			p.Set(i, index[dst], v)
			total += v
		}
		for j := 0; j < n; j++ {
			if total <= 0 {
				p.Set(i, j, 1/float64(n))
			} else {
				p.Set(i, j, p.At(i, j)/total)
			}
		}
	}

	pi := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		pi.SetVec(i, 1/float64(n))
	}
	next := mat.NewVecDense(n, nil)
	diff := mat.NewVecDense(n, nil)
	for iter := 0; iter < stationaryIterations; iter++ {
		next.MulVec(p.T(), pi)
		next.AddVec(next, pi)
		next.ScaleVec(0.5, next)
		diff.SubVec(next, pi)
		pi.CopyVec(next)
		if mat.Norm(diff, 1) < stationaryTolerance {
			break
		}
	}

	total := mat.Sum(pi)
	for i, id := range states {
		out[id] = pi.AtVec(i) / total
	}
	return out
}

// stateSpace lists every state that appears in a transition, ascending.
func (s *State) stateSpace() []int {
	seen := map[int]struct{}{}
	for src, row := range s.Transitions {
		seen[src] = struct{}{}
		for dst := range row {
			seen[dst] = struct{}{}
		}
	}
	states := make([]int, 0, len(seen))
	for id := range seen {
		states = append(states, id)
	}
	sort.Ints(states)
	return states
}

// #endregion stationary

// #region alignment

// GoalAlignment weights each cluster's productivity mean by its stationary
// probability.
func (s *State) GoalAlignment(cfg Config) Alignment {
	return s.goalAlignment(cfg, s.Stationary(cfg))
}

func (s *State) goalAlignment(cfg Config, stationary map[int]float64) Alignment {
	var score, weight float64
	for id, p := range stationary {
		f := s.Factors[ClusterBucket(id)]
		if f == nil || f.Count() == 0 {
			continue
		}
		score += p * f.Productivity.Mean
		weight += p
	}
	if weight <= 0 {
		return Alignment{Trend: TrendNeutral, LowConfidence: true}
	}
	score = math.Max(0, math.Min(1, score/weight))
	a := Alignment{Score: score, Trend: TrendNeutral, LowConfidence: s.Events < cfg.MinBucketSamples}
	switch {
	case score >= cfg.OnTrack:
		a.Trend = TrendOnTrack
	case score <= cfg.Drifting:
		a.Trend = TrendDrifting
	}
	return a
}

// #endregion alignment

func truncate[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

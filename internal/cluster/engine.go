package cluster

import (
	"errors"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AlgorithmCatchAll names the single-cluster fallback partition.
const AlgorithmCatchAll = "catch_all"

// #region engine

// Engine runs the clustering fallback chain and keeps ids stable against a
// Registry.
type Engine struct {
	config     Config
	strategies []Strategy
	logger     *slog.Logger
}

// NewEngine creates an Engine with the default strategy chain.
func NewEngine(config Config) *Engine {
	return &Engine{config: config, strategies: Strategies(config), logger: slog.Default()}
}

// WithStrategies replaces the fallback chain. Used by tests.
func (e *Engine) WithStrategies(s ...Strategy) *Engine {
	e.strategies = s
	return e
}

// Run clusters points and returns assignments in input order. prev is not
// modified; the updated registry is returned in Result.Registry. Run never
// fails: degenerate input yields the catch-all partition with LowConfidence set.
func (e *Engine) Run(points []Point, prev Registry) Result {
	reg := prev.Clone()
	res := Result{Registry: reg}
	n := len(points)
	if n == 0 {
		res.Algorithm = "none"
		res.LowConfidence = true
		return res
	}

	vecs := make([][]float64, n)
	for i, p := range points {
		vecs[i] = p.Vector.Float64()
	}

	labels, algorithm := e.partition(vecs)
	res.Algorithm = algorithm
	res.LowConfidence = algorithm == AlgorithmCatchAll

	// Group members and compute batch centroids per raw label.
	members := map[int][]int{}
	for i, l := range labels {
		if l != Noise {
			members[l] = append(members[l], i)
		}
	}
	raw := make(map[int][]float64, len(members))
	for l, idx := range members {
		raw[l] = centroidOf(vecs, idx)
	}

	// Stable ids: matched labels reuse ids, the rest allocate in label order.
	ids := matchCentroids(raw, &reg, e.config.MatchThreshold)
	rawLabels := make([]int, 0, len(members))
	for l := range members {
		rawLabels = append(rawLabels, l)
	}
	sort.Ints(rawLabels)
	for _, l := range rawLabels {
		if _, ok := ids[l]; !ok {
			ids[l] = reg.allocate()
		}
	}

	// Assignments and distances to the batch centroid.
	res.Assignments = make([]Assignment, n)
	for i := range points {
		a := Assignment{Index: i, ClusterID: Noise}
		if l := labels[i]; l != Noise {
			a.ClusterID = ids[l]
			a.Distance = floats.Distance(vecs[i], raw[l], 2)
		} else {
			a.Distance = nearestDistance(vecs[i], raw)
			a.Anomalous = true
		}
		res.Assignments[i] = a
	}

	// Profiles and per-cluster anomaly thresholds.
	for _, l := range rawLabels {
		idx := members[l]
		dists := make([]float64, len(idx))
		for k, i := range idx {
			dists[k] = res.Assignments[i].Distance
		}
		limit := anomalyLimit(dists, e.config.AnomalyMAD)
		for _, i := range idx {
			if res.Assignments[i].Distance > limit {
				res.Assignments[i].Anomalous = true
			}
		}

		id := ids[l]
		old, existed := reg.Get(id)
		p := describe(id, points, idx, dists)
		p.Anomalous = float64(len(idx)) < e.config.RareShare*float64(n)
		if existed {
			p.Centroid = mergeCentroid(old.Centroid, old.Seen, raw[l], len(idx))
			p.Seen = old.Seen + len(idx)
			p.LastSeen = old.LastSeen
		} else {
			p.Centroid = raw[l]
			p.Seen = len(idx)
		}
		for _, i := range idx {
			touch(&p, points[i].Timestamp)
		}
		reg.upsert(p)
		res.Profiles = append(res.Profiles, p)
	}
	sort.Slice(res.Profiles, func(i, j int) bool { return res.Profiles[i].ID < res.Profiles[j].ID })

	for _, a := range res.Assignments {
		if a.Anomalous {
			res.Anomalies = append(res.Anomalies, a.Index)
		}
	}

	res.Transitions, res.Flows, res.SwitchCount, res.FlowLikelihood = e.sequenceStats(points, res.Assignments)
	res.Registry = reg
	return res
}

// partition walks the fallback chain. The first strategy yielding at least two
// non-noise clusters wins; otherwise every point joins one catch-all cluster.
func (e *Engine) partition(vecs [][]float64) ([]int, string) {
	n := len(vecs)
	catchAll := func(reason string) ([]int, string) {
		e.logger.Debug("clustering: catch-all partition", "points", n, "reason", reason)
		return make([]int, n), AlgorithmCatchAll
	}
	if n < e.config.MinSamples || n < 2 {
		return catchAll("insufficient samples")
	}
	if allIdentical(vecs) {
		return catchAll("identical embeddings")
	}

	ds := NewDataset(vecs)
	for _, s := range e.strategies {
		labels, err := s.FitAndAssign(ds)
		if err != nil {
			reason := "error"
			switch {
			case errors.Is(err, ErrInsufficientData):
				reason = "insufficient data"
			case errors.Is(err, ErrDegenerate):
				reason = "degenerate"
			}
			e.logger.Debug("clustering: strategy skipped", "strategy", s.Name(), "reason", reason, "error", err)
			continue
		}
		if k := countClusters(labels); k < 2 {
			e.logger.Debug("clustering: strategy skipped", "strategy", s.Name(), "clusters", k)
			continue
		}
		return labels, s.Name()
	}
	return catchAll("all strategies degenerate")
}

// #endregion engine

// #region describe

// describe labels a cluster from its members' heuristic fields.
func describe(id int, points []Point, idx []int, dists []float64) Profile {
	modes := map[string]int{}
	apps := map[string]int{}
	var conf, cog, dop, goal float64
	for _, i := range idx {
		p := points[i]
		modes[p.Mode]++
		if p.Exe != "" {
			apps[p.Exe]++
		}
		conf += p.Confidence
		cog += p.CognitiveLoad
		dop += p.Dopamine
		goal += p.Goal
	}
	n := float64(len(idx))
	topModes := topCounts(modes, 3)
	prof := Profile{
		ID:               id,
		Size:             len(idx),
		Confidence:       conf / n,
		Cohesion:         1 / (1 + stat.Mean(dists, nil)),
		TopModes:         topModes,
		TopApps:          topCounts(apps, 3),
		AvgCognitiveLoad: cog / n,
		AvgDopamine:      dop / n,
		AvgGoal:          goal / n,
	}
	if len(topModes) > 0 {
		prof.Label = topModes[0].Name
	}
	prof.Archetype = archetype(prof, len(modes))
	return prof
}

func archetype(p Profile, distinctModes int) string {
	switch {
	case p.AvgCognitiveLoad > 0.6 && p.AvgGoal >= p.AvgDopamine:
		return ArchetypeDeepWork
	case p.AvgDopamine > 0.5 && p.AvgGoal < 0.3:
		return ArchetypeDopamineScrolling
	case hasGameMode(p.TopModes):
		return ArchetypeGamingFocus
	case distinctModes > 3 && p.AvgCognitiveLoad < 0.5:
		return ArchetypeMicroTasking
	case p.AvgGoal > 0.5 && p.AvgDopamine < 0.4:
		return ArchetypeResearch
	}
	return ArchetypeGeneric
}

func hasGameMode(modes []ModeCount) bool {
	for _, m := range modes {
		if m.Name == "gaming" || m.Name == "game" {
			return true
		}
	}
	return false
}

// topCounts returns the k most frequent names, ties broken alphabetically.
func topCounts(counts map[string]int, k int) []ModeCount {
	out := make([]ModeCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, ModeCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// #endregion describe

// #region sequence

// sequenceStats orders assignments by timestamp and extracts the transition
// table, flow periods, switch count and dominant-cluster share.
func (e *Engine) sequenceStats(points []Point, assigns []Assignment) ([]Transition, []Flow, int, float64) {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return points[order[a]].Timestamp.Before(points[order[b]].Timestamp)
	})

	table := map[[2]int]int{}
	switches := 0
	for k := 1; k < len(order); k++ {
		from, to := assigns[order[k-1]].ClusterID, assigns[order[k]].ClusterID
		if from == Noise || to == Noise {
			continue
		}
		table[[2]int{from, to}]++
		if from != to {
			switches++
		}
	}
	transitions := make([]Transition, 0, len(table))
	for key, c := range table {
		transitions = append(transitions, Transition{From: key[0], To: key[1], Count: c})
	}
	sort.Slice(transitions, func(i, j int) bool {
		if transitions[i].Count != transitions[j].Count {
			return transitions[i].Count > transitions[j].Count
		}
		if transitions[i].From != transitions[j].From {
			return transitions[i].From < transitions[j].From
		}
		return transitions[i].To < transitions[j].To
	})

	var flows []Flow
	occupancy := map[int]int{}
	total := 0
	for start := 0; start < len(order); {
		id := assigns[order[start]].ClusterID
		end := start
		for end+1 < len(order) && assigns[order[end+1]].ClusterID == id {
			end++
		}
		if id != Noise {
			occupancy[id] += end - start + 1
			total += end - start + 1
			first := points[order[start]].Timestamp
			last := points[order[end]].Timestamp
			if end+1 < len(order) {
				last = points[order[end+1]].Timestamp
			}
			if d := last.Sub(first); d >= e.config.FlowMinDuration && d > 0 {
				flows = append(flows, Flow{ClusterID: id, Start: first, End: last, Duration: d, Samples: end - start + 1})
			}
		}
		start = end + 1
	}

	var likelihood float64
	if total > 0 {
		dominant := 0
		for _, c := range occupancy {
			if c > dominant {
				dominant = c
			}
		}
		likelihood = float64(dominant) / float64(total)
	}
	return transitions, flows, switches, likelihood
}

// #endregion sequence

// #region helpers

func centroidOf(vecs [][]float64, idx []int) []float64 {
	c := make([]float64, len(vecs[idx[0]]))
	for _, i := range idx {
		floats.Add(c, vecs[i])
	}
	floats.Scale(1/float64(len(idx)), c)
	return c
}

func nearestDistance(v []float64, centroids map[int][]float64) float64 {
	best := math.Inf(1)
	for _, c := range centroids {
		best = math.Min(best, floats.Distance(v, c, 2))
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

// anomalyLimit returns median + k*MAD of dists. With zero spread any strictly
// larger distance counts as anomalous.
func anomalyLimit(dists []float64, k float64) float64 {
	if len(dists) == 0 {
		return math.Inf(1)
	}
	sorted := append([]float64(nil), dists...)
	sort.Float64s(sorted)
	med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	dev := make([]float64, len(sorted))
	for i, d := range sorted {
		dev[i] = math.Abs(d - med)
	}
	sort.Float64s(dev)
	mad := stat.Quantile(0.5, stat.Empirical, dev, nil)
	return med + k*mad + 1e-9
}

func allIdentical(vecs [][]float64) bool {
	for _, v := range vecs[1:] {
		if !floats.Equal(v, vecs[0]) {
			return false
		}
	}
	return true
}

// #endregion helpers

package cluster

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// #region strategy

// Dataset is the shared input of every strategy: vectors plus their pairwise
// euclidean distances, computed once per run.
type Dataset struct {
	Vectors [][]float64
	Dist    [][]float64
}

// NewDataset computes the distance matrix for vecs.
func NewDataset(vecs [][]float64) *Dataset {
	n := len(vecs)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(vecs[i], vecs[j], 2)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return &Dataset{Vectors: vecs, Dist: dist}
}

// Len returns the number of points.
func (d *Dataset) Len() int { return len(d.Vectors) }

// Strategy assigns a label per point; Noise marks unassigned points.
// Implementations return ErrInsufficientData or ErrDegenerate rather than a
// meaningless partition.
type Strategy interface {
	Name() string
	FitAndAssign(ds *Dataset) ([]int, error)
}

// Strategies returns the ordered fallback chain for cfg.
func Strategies(cfg Config) []Strategy {
	return []Strategy{
		&densityStrategy{minClusterSize: cfg.MinClusterSize},
		&distanceStrategy{minPts: cfg.MinPts},
		&centroidStrategy{kMin: cfg.KMin, kMax: cfg.KMax, maxIter: cfg.MaxIterations},
	}
}

// #endregion strategy

// #region helpers

// countClusters returns the number of distinct non-noise labels.
func countClusters(labels []int) int {
	seen := map[int]struct{}{}
	for _, l := range labels {
		if l != Noise {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}

// kthNeighborDistance returns, per point, the distance to its k-th nearest
// other point (k >= 1).
func kthNeighborDistance(ds *Dataset, k int) []float64 {
	n := ds.Len()
	out := make([]float64, n)
	row := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		row = row[:0]
		for j := 0; j < n; j++ {
			if j != i {
				row = append(row, ds.Dist[i][j])
			}
		}
		sort.Float64s(row)
		idx := k - 1
		if idx >= len(row) {
			idx = len(row) - 1
		}
		if idx >= 0 {
			out[i] = row[idx]
		}
	}
	return out
}

// #endregion helpers

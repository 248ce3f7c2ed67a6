package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// centroidStrategy is k-means with deterministic farthest-first seeding; K is
// the value in [kMin, kMax] with the best mean silhouette.
type centroidStrategy struct {
	kMin, kMax int
	maxIter    int
}

func (s *centroidStrategy) Name() string { return "centroid" }

func (s *centroidStrategy) FitAndAssign(ds *Dataset) ([]int, error) {
	n := ds.Len()
	kMin, kMax := s.kMin, s.kMax
	if kMin < 2 {
		kMin = 2
	}
	if kMax > n-1 {
		kMax = n - 1
	}
	if kMax < kMin {
		return nil, ErrInsufficientData
	}

	var best []int
	bestScore := math.Inf(-1)
	for k := kMin; k <= kMax; k++ {
		labels := kmeans(ds, k, s.maxIter)
		if countClusters(labels) < 2 {
			continue
		}
		if score := silhouette(ds, labels); score > bestScore {
			best, bestScore = labels, score
		}
	}
	if best == nil {
		return nil, ErrDegenerate
	}
	return best, nil
}

// kmeans runs Lloyd's algorithm from a farthest-first seeding.
func kmeans(ds *Dataset, k, maxIter int) []int {
	n := ds.Len()
	if maxIter <= 0 {
		maxIter = 100
	}
	dim := len(ds.Vectors[0])

	centroids := make([][]float64, 0, k)
	for _, idx := range farthestFirst(ds, k) {
		centroids = append(centroids, append([]float64(nil), ds.Vectors[idx]...))
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range ds.Vectors {
			c := nearestCentroid(v, centroids)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range ds.Vectors {
			floats.Add(sums[labels[i]], v)
			counts[labels[i]]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // keep the previous centroid
			}
			floats.ScaleTo(centroids[c], 1/float64(counts[c]), sums[c])
		}
	}
	return labels
}

// farthestFirst picks the point closest to the mean, then repeatedly the point
// farthest from all picks. Ties resolve to the lowest index.
func farthestFirst(ds *Dataset, k int) []int {
	n := ds.Len()
	mean := make([]float64, len(ds.Vectors[0]))
	for _, v := range ds.Vectors {
		floats.Add(mean, v)
	}
	floats.Scale(1/float64(n), mean)

	first, firstD := 0, math.Inf(1)
	for i, v := range ds.Vectors {
		if d := floats.Distance(v, mean, 2); d < firstD {
			first, firstD = i, d
		}
	}
	picks := []int{first}
	minD := make([]float64, n)
	for i := range minD {
		minD[i] = ds.Dist[first][i]
	}
	for len(picks) < k {
		next, nextD := -1, -1.0
		for i, d := range minD {
			if d > nextD {
				next, nextD = i, d
			}
		}
		picks = append(picks, next)
		for i := range minD {
			minD[i] = math.Min(minD[i], ds.Dist[next][i])
		}
	}
	return picks
}

func nearestCentroid(v []float64, centroids [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, cen := range centroids {
		if d := floats.Distance(v, cen, 2); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

// silhouette returns the mean silhouette coefficient; noise points are skipped.
func silhouette(ds *Dataset, labels []int) float64 {
	n := ds.Len()
	var total float64
	var counted int
	for i := 0; i < n; i++ {
		if labels[i] == Noise {
			continue
		}
		sums := map[int]float64{}
		counts := map[int]int{}
		for j := 0; j < n; j++ {
			if j == i || labels[j] == Noise {
				continue
			}
			sums[labels[j]] += ds.Dist[i][j]
			counts[labels[j]]++
		}
		counted++
		if counts[labels[i]] == 0 {
			continue // singleton scores 0
		}
		a := sums[labels[i]] / float64(counts[labels[i]])
		b := math.Inf(1)
		for c, s := range sums {
			if c != labels[i] {
				b = math.Min(b, s/float64(counts[c]))
			}
		}
		if math.IsInf(b, 1) {
			continue
		}
		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

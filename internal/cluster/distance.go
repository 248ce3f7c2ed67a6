package cluster

import "sort"

// distanceStrategy is DBSCAN with eps taken from the knee of the sorted
// k-distance curve.
type distanceStrategy struct {
	minPts int
}

func (s *distanceStrategy) Name() string { return "distance" }

func (s *distanceStrategy) FitAndAssign(ds *Dataset) ([]int, error) {
	n := ds.Len()
	minPts := s.minPts
	if minPts < 2 {
		minPts = 2
	}
	if n <= minPts {
		return nil, ErrInsufficientData
	}

	eps := kneeEpsilon(kthNeighborDistance(ds, minPts-1))
	if eps <= 0 {
		return nil, ErrDegenerate
	}

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if ds.Dist[i][j] <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	const unvisited = -2
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}
	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		nb := neighbors(i)
		if len(nb) < minPts {
			labels[i] = Noise
			continue
		}
		labels[i] = cluster
		queue := nb
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == Noise {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if jn := neighbors(j); len(jn) >= minPts {
				queue = append(queue, jn...)
			}
		}
		cluster++
	}
	return labels, nil
}

// kneeEpsilon picks the point of the ascending k-distance curve farthest below
// the chord joining its endpoints, both axes scaled to [0,1].
func kneeEpsilon(kdist []float64) float64 {
	sorted := append([]float64(nil), kdist...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	lo, hi := sorted[0], sorted[n-1]
	if n < 3 || hi == lo {
		return hi
	}
	best, bestGap := n-1, 0.0
	for i, y := range sorted {
		gap := float64(i)/float64(n-1) - (y-lo)/(hi-lo)
		if gap > bestGap {
			best, bestGap = i, gap
		}
	}
	return sorted[best]
}

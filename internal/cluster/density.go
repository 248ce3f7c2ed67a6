package cluster

import (
	"math"
	"sort"
)

// densityStrategy is a hierarchical density clusterer: mutual-reachability
// minimum spanning tree, condensed by minimum cluster size, flat clusters picked
// by excess of mass. The root is never selected, so success means >= 2 clusters
// or an error.
type densityStrategy struct {
	minClusterSize int
}

func (s *densityStrategy) Name() string { return "density" }

type mstEdge struct {
	a, b int
	w    float64
}

type condensedEdge struct {
	parent, child int
	lambda        float64
	size          int
}

func (s *densityStrategy) FitAndAssign(ds *Dataset) ([]int, error) {
	n := ds.Len()
	mcs := s.minClusterSize
	if mcs <= 0 {
		mcs = int(math.Sqrt(float64(n)))
	}
	if mcs < 2 {
		mcs = 2
	}
	if n < 2*mcs {
		return nil, ErrInsufficientData
	}

	core := kthNeighborDistance(ds, mcs-1)
	edges := primMST(ds, core)

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].w < edges[j].w })
	if edges[len(edges)-1].w == 0 {
		return nil, ErrDegenerate
	}

	// Single-linkage dendrogram: leaves 0..n-1, internal nodes n..2n-2.
	left := make([]int, n-1)
	right := make([]int, n-1)
	height := make([]float64, n-1)
	size := make([]int, 2*n-1)
	for i := 0; i < n; i++ {
		size[i] = 1
	}
	parent := make([]int, n)
	node := make([]int, n)
	for i := range parent {
		parent[i] = i
		node[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for step, e := range edges {
		ra, rb := find(e.a), find(e.b)
		id := n + step
		left[step], right[step], height[step] = node[ra], node[rb], e.w
		size[id] = size[node[ra]] + size[node[rb]]
		parent[rb] = ra
		node[ra] = id
	}
	root := 2*n - 2

	leaves := func(x int) []int {
		var out []int
		stack := []int{x}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top < n {
				out = append(out, top)
				continue
			}
			stack = append(stack, right[top-n], left[top-n])
		}
		return out
	}

	// Condense.
	relabel := map[int]int{root: n}
	next := n + 1
	var condensed []condensedEdge
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		label := relabel[cur]
		l, r := left[cur-n], right[cur-n]
		lambda := 1 / math.Max(height[cur-n], 1e-12)
		ls, rs := size[l], size[r]

		switch {
		case ls >= mcs && rs >= mcs:
			for _, child := range []int{l, r} {
				relabel[child] = next
				condensed = append(condensed, condensedEdge{label, next, lambda, size[child]})
				next++
				queue = append(queue, child)
			}
		case ls < mcs && rs < mcs:
			for _, p := range append(leaves(l), leaves(r)...) {
				condensed = append(condensed, condensedEdge{label, p, lambda, 1})
			}
		default:
			small, big := l, r
			if ls >= mcs {
				small, big = r, l
			}
			for _, p := range leaves(small) {
				condensed = append(condensed, condensedEdge{label, p, lambda, 1})
			}
			relabel[big] = label
			queue = append(queue, big)
		}
	}

	// Stability and excess-of-mass selection.
	numClusters := next - n
	birth := make([]float64, numClusters)
	stability := make([]float64, numClusters)
	clusterParent := make([]int, numClusters)
	children := make([][]int, numClusters)
	pointParent := make([]int, n)
	clusterParent[0] = -1
	for _, e := range condensed {
		if e.child >= n {
			c := e.child - n
			birth[c] = e.lambda
			clusterParent[c] = e.parent - n
			children[e.parent-n] = append(children[e.parent-n], c)
		} else {
			pointParent[e.child] = e.parent - n
		}
	}
	for _, e := range condensed {
		p := e.parent - n
		stability[p] += (e.lambda - birth[p]) * float64(e.size)
	}

	selected := make([]bool, numClusters)
	for c := numClusters - 1; c >= 1; c-- {
		var childSum float64
		for _, ch := range children[c] {
			childSum += stability[ch]
		}
		if len(children[c]) > 0 && childSum > stability[c] {
			stability[c] = childSum
			continue
		}
		selected[c] = true
		stack := append([]int(nil), children[c]...)
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			selected[top] = false
			stack = append(stack, children[top]...)
		}
	}

	flat := map[int]int{}
	for c := 1; c < numClusters; c++ {
		if selected[c] {
			flat[c] = len(flat)
		}
	}
	if len(flat) < 2 {
		return nil, ErrDegenerate
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = Noise
		for c := pointParent[i]; c > 0; c = clusterParent[c] {
			if id, ok := flat[c]; ok {
				labels[i] = id
				break
			}
		}
	}
	return labels, nil
}

// primMST builds the minimum spanning tree over mutual-reachability distances.
func primMST(ds *Dataset, core []float64) []mstEdge {
	n := ds.Len()
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}
	edges := make([]mstEdge, 0, n-1)
	cur := 0
	inTree[0] = true
	for len(edges) < n-1 {
		next, nextW := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			w := math.Max(ds.Dist[cur][j], math.Max(core[cur], core[j]))
			if w < best[j] {
				best[j] = w
				from[j] = cur
			}
			if best[j] < nextW {
				next, nextW = j, best[j]
			}
		}
		inTree[next] = true
		edges = append(edges, mstEdge{from[next], next, nextW})
		cur = next
	}
	return edges
}

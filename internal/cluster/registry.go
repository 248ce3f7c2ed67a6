package cluster

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// #region registry

// Registry is the arena of every profile ever allocated plus an id index, so
// cluster ids survive across runs and restarts.
type Registry struct {
	Profiles []Profile `json:"profiles"`
	NextID   int       `json:"next_id"`

	index map[int]int
}

// NewRegistry returns an empty registry.
func NewRegistry() Registry {
	return Registry{index: map[int]int{}}
}

// Get returns the profile with the given id.
func (r *Registry) Get(id int) (Profile, bool) {
	r.reindex()
	i, ok := r.index[id]
	if !ok {
		return Profile{}, false
	}
	return r.Profiles[i], true
}

// IDs returns every known cluster id in ascending order.
func (r *Registry) IDs() []int {
	ids := make([]int, 0, len(r.Profiles))
	for _, p := range r.Profiles {
		ids = append(ids, p.ID)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of profiles.
func (r *Registry) Len() int { return len(r.Profiles) }

// Nearest returns the id of the profile whose centroid is most cosine-similar
// to vec, provided the similarity reaches threshold.
func (r *Registry) Nearest(vec []float64, threshold float64) (int, float64, bool) {
	bestID, bestSim := Noise, -1.0
	for _, p := range r.Profiles {
		if sim := cosine(vec, p.Centroid); sim > bestSim || (sim == bestSim && p.ID < bestID) {
			bestID, bestSim = p.ID, sim
		}
	}
	if bestID == Noise || bestSim < threshold {
		return Noise, bestSim, false
	}
	return bestID, bestSim, true
}

// DistanceTo returns the Euclidean distance from vec to the centroid of
// profile id.
func (r *Registry) DistanceTo(id int, vec []float64) (float64, bool) {
	p, ok := r.Get(id)
	if !ok || len(p.Centroid) != len(vec) {
		return 0, false
	}
	return floats.Distance(vec, p.Centroid, 2), true
}

// NearestDistance returns the Euclidean distance from vec to the closest
// centroid, or false for an empty registry.
func (r *Registry) NearestDistance(vec []float64) (float64, bool) {
	best, found := 0.0, false
	for _, p := range r.Profiles {
		if len(p.Centroid) != len(vec) {
			continue
		}
		if d := floats.Distance(vec, p.Centroid, 2); !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

// Clone returns a deep copy.
func (r *Registry) Clone() Registry {
	out := Registry{NextID: r.NextID, Profiles: make([]Profile, len(r.Profiles))}
	for i, p := range r.Profiles {
		p.Centroid = append([]float64(nil), p.Centroid...)
		p.TopModes = append([]ModeCount(nil), p.TopModes...)
		p.TopApps = append([]ModeCount(nil), p.TopApps...)
		out.Profiles[i] = p
	}
	out.reindex()
	return out
}

// upsert replaces the profile with p.ID or appends it.
func (r *Registry) upsert(p Profile) {
	r.reindex()
	if i, ok := r.index[p.ID]; ok {
		r.Profiles[i] = p
		return
	}
	r.index[p.ID] = len(r.Profiles)
	r.Profiles = append(r.Profiles, p)
	if p.ID >= r.NextID {
		r.NextID = p.ID + 1
	}
}

func (r *Registry) allocate() int {
	id := r.NextID
	r.NextID++
	return id
}

func (r *Registry) reindex() {
	if r.index != nil && len(r.index) == len(r.Profiles) {
		return
	}
	r.index = make(map[int]int, len(r.Profiles))
	for i, p := range r.Profiles {
		r.index[p.ID] = i
		if p.ID >= r.NextID {
			r.NextID = p.ID + 1
		}
	}
}

// #endregion registry

// #region matching

type match struct {
	raw, id int
	sim     float64
}

// matchCentroids greedily pairs raw clusters with registry profiles by
// descending cosine similarity, one to one.
func matchCentroids(raw map[int][]float64, reg *Registry, threshold float64) map[int]int {
	var cands []match
	for label, c := range raw {
		for _, p := range reg.Profiles {
			if sim := cosine(c, p.Centroid); sim >= threshold {
				cands = append(cands, match{label, p.ID, sim})
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].sim != cands[j].sim {
			return cands[i].sim > cands[j].sim
		}
		if cands[i].raw != cands[j].raw {
			return cands[i].raw < cands[j].raw
		}
		return cands[i].id < cands[j].id
	})

	out := map[int]int{}
	used := map[int]bool{}
	for _, m := range cands {
		if _, done := out[m.raw]; done || used[m.id] {
			continue
		}
		out[m.raw] = m.id
		used[m.id] = true
	}
	return out
}

// mergeCentroid folds a batch centroid of n members into a running mean that
// has already absorbed seen members.
func mergeCentroid(old []float64, seen int, batch []float64, n int) []float64 {
	if len(old) != len(batch) || seen <= 0 {
		return append([]float64(nil), batch...)
	}
	out := append([]float64(nil), old...)
	diff := make([]float64, len(batch))
	floats.SubTo(diff, batch, old)
	floats.AddScaled(out, float64(n)/float64(seen+n), diff)
	return out
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		if na == nb {
			return 1
		}
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// touch stamps a profile as seen at ts.
func touch(p *Profile, ts time.Time) {
	if ts.After(p.LastSeen) {
		p.LastSeen = ts
	}
}

// #endregion matching

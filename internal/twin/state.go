package twin

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Factor bucket key prefixes.
const (
	bucketHour    = "hour:"
	bucketDow     = "dow:"
	bucketApp     = "app:"
	bucketCluster = "cluster:"
)

// #region state

// State is the persisted twin: decayed transition counts between cluster
// states and running aggregates per context bucket. Transition storage is
// sparse; only observed moves have a cell.
type State struct {
	SchemaVersion     int                                  `json:"schema_version"`
	Transitions       map[int]map[int]DecayedCount         `json:"transitions"`
	HourlyTransitions map[int]map[int]map[int]DecayedCount `json:"hourly_transitions"`
	Factors           map[string]*Factor                   `json:"factors"`
	Switches          DecayedCount                         `json:"switches"`
	Minutes           DecayedCount                         `json:"minutes"`
	LastCluster       int                                  `json:"last_cluster"`
	LastUpdate        time.Time                            `json:"last_update"`
	Events            int64                                `json:"events"`
}

// NewState returns an empty cold-start state.
func NewState() *State {
	return &State{
		SchemaVersion:     SchemaVersion,
		Transitions:       map[int]map[int]DecayedCount{},
		HourlyTransitions: map[int]map[int]map[int]DecayedCount{},
		Factors:           map[string]*Factor{},
		LastCluster:       Unknown,
	}
}

// #endregion state

// #region apply

// Apply folds one observation into the state. It touches one transition cell,
// one hourly cell and four factor buckets, so its cost does not depend on how
// much history has been applied.
func (s *State) Apply(obs Observation, halfLife time.Duration) {
	obs = obs.sanitize()
	now := obs.Timestamp
	src, dst := s.LastCluster, obs.ClusterID
	if dst < 0 {
		dst = Unknown
	}
	obs.ClusterID = dst

	row := s.Transitions[src]
	if row == nil {
		row = map[int]DecayedCount{}
		s.Transitions[src] = row
	}
	cell := row[dst]
	cell.add(now, 1, halfLife)
	row[dst] = cell

	hour := now.Hour()
	byHour := s.HourlyTransitions[hour]
	if byHour == nil {
		byHour = map[int]map[int]DecayedCount{}
		s.HourlyTransitions[hour] = byHour
	}
	hrow := byHour[src]
	if hrow == nil {
		hrow = map[int]DecayedCount{}
		byHour[src] = hrow
	}
	hcell := hrow[dst]
	hcell.add(now, 1, halfLife)
	hrow[dst] = hcell

	if !s.LastUpdate.IsZero() && now.After(s.LastUpdate) {
		s.Minutes.add(now, now.Sub(s.LastUpdate).Minutes(), halfLife)
		if src != dst && src != Unknown && dst != Unknown {
			s.Switches.add(now, 1, halfLife)
		}
	}

	for _, key := range bucketKeys(obs) {
		f := s.Factors[key]
		if f == nil {
			f = &Factor{}
			s.Factors[key] = f
		}
		f.add(obs)
	}

	s.LastCluster = dst
	if now.After(s.LastUpdate) {
		s.LastUpdate = now
	}
	s.Events++
}

// bucketKeys lists the factor buckets an observation updates.
func bucketKeys(obs Observation) []string {
	keys := []string{
		HourBucket(obs.Timestamp.Hour()),
		bucketDow + strconv.Itoa((int(obs.Timestamp.Weekday())+6)%7),
		ClusterBucket(obs.ClusterID),
	}
	if app := strings.ToLower(strings.TrimSpace(obs.App)); app != "" {
		keys = append(keys, bucketApp+app)
	}
	return keys
}

// HourBucket is the factor key for an hour of the day.
func HourBucket(hour int) string { return fmt.Sprintf("%s%02d", bucketHour, hour) }

// ClusterBucket is the factor key for a cluster state.
func ClusterBucket(id int) string { return bucketCluster + strconv.Itoa(id) }

// #endregion apply

// #region clone

// Clone returns a deep copy that shares nothing with s.
func (s *State) Clone() *State {
	out := *s
	out.Transitions = cloneRows(s.Transitions)
	out.HourlyTransitions = make(map[int]map[int]map[int]DecayedCount, len(s.HourlyTransitions))
	for h, rows := range s.HourlyTransitions {
		out.HourlyTransitions[h] = cloneRows(rows)
	}
	out.Factors = make(map[string]*Factor, len(s.Factors))
	for k, f := range s.Factors {
		out.Factors[k] = f.clone()
	}
	return &out
}

func cloneRows(rows map[int]map[int]DecayedCount) map[int]map[int]DecayedCount {
	out := make(map[int]map[int]DecayedCount, len(rows))
	for src, row := range rows {
		cp := make(map[int]DecayedCount, len(row))
		for dst, c := range row {
			cp[dst] = c
		}
		out[src] = cp
	}
	return out
}

// #endregion clone

// #region check

// Check verifies the invariants a restored snapshot must hold: counts are
// finite and non-negative and every running statistic is consistent.
func (s *State) Check() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: version %d", ErrUnknownSchema, s.SchemaVersion)
	}
	if s.Transitions == nil || s.HourlyTransitions == nil || s.Factors == nil {
		return fmt.Errorf("%w: missing section", ErrCorrupt)
	}
	if s.Events < 0 {
		return fmt.Errorf("%w: negative event count", ErrCorrupt)
	}
	if err := checkRows(s.Transitions); err != nil {
		return err
	}
	for h, rows := range s.HourlyTransitions {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: hour %d", ErrCorrupt, h)
		}
		if err := checkRows(rows); err != nil {
			return err
		}
	}
	for _, c := range []DecayedCount{s.Switches, s.Minutes} {
		if !validCount(c.Value) {
			return fmt.Errorf("%w: switch-rate counter %v", ErrCorrupt, c.Value)
		}
	}
	for key, f := range s.Factors {
		if f == nil {
			return fmt.Errorf("%w: nil factor %q", ErrCorrupt, key)
		}
		for _, st := range []Stat{f.Productivity, f.Distraction, f.CognitiveLoad} {
			if st.N < 0 || math.IsNaN(st.Mean) || math.IsInf(st.Mean, 0) || !validCount(st.M2) {
				return fmt.Errorf("%w: factor %q", ErrCorrupt, key)
			}
		}
		var total int64
		for _, n := range f.Clusters {
			if n < 0 {
				return fmt.Errorf("%w: factor %q cluster count", ErrCorrupt, key)
			}
			total += n
		}
		if total != f.Count() {
			return fmt.Errorf("%w: factor %q has %d cluster hits for %d samples", ErrCorrupt, key, total, f.Count())
		}
	}
	return nil
}

func checkRows(rows map[int]map[int]DecayedCount) error {
	for src, row := range rows {
		for dst, c := range row {
			if !validCount(c.Value) {
				return fmt.Errorf("%w: transition %d->%d = %v", ErrCorrupt, src, dst, c.Value)
			}
		}
	}
	return nil
}

func validCount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// #endregion check

package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/embedding"
	"github.com/danielpatrickdp/behavior-twin/internal/eval"
	"github.com/danielpatrickdp/behavior-twin/internal/forecast"
	"github.com/danielpatrickdp/behavior-twin/internal/insights"
	"github.com/danielpatrickdp/behavior-twin/internal/logging"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// ErrNoPersistence is returned by Save when the pipeline has nowhere to write.
var ErrNoPersistence = errors.New("pipeline: no persistence configured")

type entry struct {
	seq    uint64
	label  int
	point  cluster.Point
	record activity.Record
	sig    activity.Signals
}

func (e entry) observation() twin.Observation {
	return twin.NewObservation(e.record, e.label, e.sig)
}

// #region pipeline

// Pipeline wires the per-record path (embed, label, twin update) and the
// on-demand report path (cluster, forecast, summarize). Observe is the single
// writer; Report works on a copy of the history window.
//
// The twin is always base plus the history window applied with the latest
// labels. base holds everything that has aged out of the window.
type Pipeline struct {
	mu       sync.Mutex
	config   Config
	history  []entry
	seq      uint64
	base     *twin.State
	registry cluster.Registry

	reportMu sync.Mutex

	matchThreshold float64
	engine         *cluster.Engine
	forecaster     *forecast.Forecaster
	harness        *eval.EvalHarness
	twin           *twin.Twin
	persistence    Persistence
	reportDB       *sql.DB
	logger         *slog.Logger

	saveMu        sync.Mutex
	lastEvents    int64
	lastVersionID string
}

// New creates a Pipeline.
func New(config Config, c Components) *Pipeline {
	if c.Twin == nil {
		c.Twin = twin.New(twin.DefaultConfig())
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Cluster == (cluster.Config{}) {
		c.Cluster = cluster.DefaultConfig()
	}
	if c.Forecast == (forecast.Config{}) {
		c.Forecast = forecast.DefaultConfig()
	}
	if c.Eval == (eval.EvalConfig{}) {
		c.Eval = eval.DefaultEvalConfig()
	}
	return &Pipeline{
		config:         config,
		registry:       c.Registry.Clone(),
		matchThreshold: c.Cluster.MatchThreshold,
		engine:         cluster.NewEngine(c.Cluster),
		forecaster:     forecast.NewForecaster(c.Forecast),
		harness:        eval.NewEvalHarness(c.Eval),
		twin:           c.Twin,
		base:           c.Twin.Snapshot(),
		persistence:    c.Persistence,
		reportDB:       c.ReportDB,
		logger:         c.Logger,
		lastEvents:     c.Twin.Snapshot().Events,
	}
}

// Twin returns the pipeline's twin.
func (p *Pipeline) Twin() *twin.Twin { return p.twin }

// Registry returns a copy of the current cluster registry.
func (p *Pipeline) Registry() cluster.Registry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.Clone()
}

// HistoryLen returns the number of records in the history window.
func (p *Pipeline) HistoryLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.history)
}

// RecentLabels returns the current cluster labels of the last n records in
// the history window, oldest first.
func (p *Pipeline) RecentLabels(n int) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.history) {
		n = len(p.history)
	}
	out := make([]int, 0, n)
	for _, e := range p.history[len(p.history)-n:] {
		out = append(out, e.label)
	}
	return out
}

// #endregion pipeline

// #region observe

// Observe embeds rec, labels it with the nearest known cluster (or noise) and
// applies it to the twin. Records without a timestamp are stamped with now.
func (p *Pipeline) Observe(ctx context.Context, rec activity.Record) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	vec, sig := embedding.BuildWithSignals(rec)
	v := vec.Float64()

	p.mu.Lock()
	defer p.mu.Unlock()

	id, sim, ok := p.registry.Nearest(v, p.matchThreshold)
	if !ok {
		id = cluster.Noise
	}
	dist, known := p.registry.NearestDistance(v)
	if ok {
		dist, _ = p.registry.DistanceTo(id, v)
	}
	if !known {
		dist, sim = -1, 0
	}

	p.seq++
	e := entry{seq: p.seq, label: id, point: cluster.PointFromVector(rec, vec, sig), record: rec, sig: sig}
	p.twin.Apply(e.observation())
	p.history = append(p.history, e)
	p.trim()

	return Observation{Record: rec, Embedding: vec, Signals: sig, ClusterID: id, Similarity: sim, Distance: dist}, nil
}

// trim caps the window by count and by age relative to the newest record.
// Records leaving the window are folded into base with their final label.
func (p *Pipeline) trim() {
	drop := 0
	if n := p.config.HistorySize; n > 0 && len(p.history) > n {
		drop = len(p.history) - n
	}
	if p.config.HistoryDays > 0 && len(p.history) > 0 {
		cutoff := p.history[len(p.history)-1].point.Timestamp.AddDate(0, 0, -p.config.HistoryDays)
		for drop < len(p.history) && p.history[drop].point.Timestamp.Before(cutoff) {
			drop++
		}
	}
	if drop == 0 {
		return
	}
	halfLife := p.twin.Config().HalfLife
	for _, e := range p.history[:drop] {
		p.base.Apply(e.observation(), halfLife)
	}
	p.history = append(p.history[:0:0], p.history[drop:]...)
}

// relabel adopts the labels a report assigned to the records it saw, labels
// records that arrived since against the new registry, and rebuilds the twin
// from base and the relabeled window. Callers hold p.mu.
func (p *Pipeline) relabel(seen []entry, labels []int) {
	bySeq := make(map[uint64]int, len(seen))
	for i, e := range seen {
		bySeq[e.seq] = labels[i]
	}
	halfLife := p.twin.Config().HalfLife
	st := p.base.Clone()
	for i := range p.history {
		e := &p.history[i]
		if l, ok := bySeq[e.seq]; ok {
			e.label = l
		} else if id, _, ok := p.registry.Nearest(e.point.Vector.Float64(), p.matchThreshold); ok {
			e.label = id
		} else {
			e.label = cluster.Noise
		}
		st.Apply(e.observation(), halfLife)
	}
	p.twin.Replace(st)
}

// #endregion observe

// #region report

// Report clusters the current window, then forecasts while the twin is
// rebuilt with the new labels and queried, and assembles an insight snapshot.
// The updated cluster registry becomes the labeling basis for subsequent
// Observe calls. Reports run one at a time so each builds on the registry the
// previous one committed.
func (p *Pipeline) Report(ctx context.Context) (insights.Snapshot, error) {
	p.reportMu.Lock()
	defer p.reportMu.Unlock()

	p.mu.Lock()
	hist := append([]entry(nil), p.history...)
	reg := p.registry.Clone()
	p.mu.Unlock()

	points := make([]cluster.Point, len(hist))
	for i, e := range hist {
		points[i] = e.point
	}
	clusters := p.engine.Run(points, reg)

	labels := make([]int, len(hist))
	for i := range labels {
		labels[i] = cluster.Noise
	}
	for _, a := range clusters.Assignments {
		if a.Index >= 0 && a.Index < len(labels) {
			labels[a.Index] = a.ClusterID
		}
	}
	samples := make([]forecast.Sample, len(hist))
	for i, e := range hist {
		samples[i] = forecast.Sample{
			Embedding:    e.point.Vector,
			ClusterID:    labels[i],
			Productivity: e.sig.Productivity(),
			Distraction:  e.sig.Distraction(),
			Timestamp:    e.point.Timestamp,
		}
	}
	known := make([]int, 0, len(clusters.Profiles))
	for _, prof := range clusters.Profiles {
		known = append(known, prof.ID)
	}

	var fc forecast.Result
	var queries twin.Queries
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fc = p.forecaster.Predict(samples, known)
		return gctx.Err()
	})
	g.Go(func() error {
		p.mu.Lock()
		p.registry = clusters.Registry.Clone()
		p.relabel(hist, labels)
		p.mu.Unlock()
		queries = p.twin.Queries()
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return insights.Snapshot{}, fmt.Errorf("report: %w", err)
	}

	snap := insights.Summarize(insights.Inputs{
		Clusters:    clusters,
		Forecast:    fc,
		Twin:        queries,
		GeneratedAt: time.Now().UTC(),
	})

	p.logger.Info("report generated",
		"records", len(hist), "algorithm", clusters.Algorithm, "clusters", len(clusters.Profiles),
		"forecast_tier", fc.Tier, "degraded", snap.Degraded)
	p.logReport(ctx, snap)
	return snap, nil
}

func (p *Pipeline) logReport(ctx context.Context, snap insights.Snapshot) {
	if p.reportDB == nil {
		return
	}
	summary, err := json.Marshal(struct {
		Insights      []string            `json:"insights"`
		LowConfidence insights.Confidence `json:"low_confidence"`
	}{snap.Insights, snap.LowConfidence})
	if err != nil {
		p.logger.Warn("report log: marshal summary", "error", err)
		return
	}
	p.saveMu.Lock()
	version := p.lastVersionID
	p.saveMu.Unlock()

	_, err = logging.LogReport(ctx, p.reportDB, logging.ReportEntry{
		SnapshotVersion: version,
		Algorithm:       snap.Algorithm,
		ForecastTier:    snap.Forecast.Tier,
		LowConfidence:   snap.Degraded,
		Clusters:        len(snap.Profiles),
		Anomalies:       len(snap.Anomalies),
		SummaryJSON:     string(summary),
		CreatedAt:       snap.GeneratedAt,
	})
	if err != nil {
		p.logger.Warn("report log: write", "error", err)
	}
}

// #endregion report

// #region save

// Save validates the current twin state and, if it passes, commits it and
// the cluster registry. It returns the committed snapshot version id.
func (p *Pipeline) Save(ctx context.Context) (string, error) {
	if p.persistence == nil {
		return "", ErrNoPersistence
	}
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	st := p.twin.Snapshot()
	result := p.harness.Run(st, p.twin.Config(), p.lastEvents)
	metrics, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal eval metrics: %w", err)
	}
	if !result.Passed {
		p.logger.Warn("snapshot rejected", "reason", result.Reason)
		return "", fmt.Errorf("snapshot rejected: %s", result.Reason)
	}

	payload, err := twin.Marshal(st)
	if err != nil {
		return "", err
	}
	rec, err := p.persistence.CommitState(ctx, payload, string(metrics), p.Registry())
	if err != nil {
		return "", fmt.Errorf("commit snapshot: %w", err)
	}
	p.lastEvents = st.Events
	p.lastVersionID = rec.VersionID
	p.logger.Info("snapshot committed", "version", rec.VersionID, "events", st.Events)
	return rec.VersionID, nil
}

// #endregion save

package pipeline

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/embedding"
	"github.com/danielpatrickdp/behavior-twin/internal/eval"
	"github.com/danielpatrickdp/behavior-twin/internal/forecast"
	"github.com/danielpatrickdp/behavior-twin/internal/store"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// #region config

// Config bounds the history window batch operations run over.
type Config struct {
	HistorySize int `yaml:"history_size"` // most recent records kept
	HistoryDays int `yaml:"history_days"` // and no older than this
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{HistorySize: 5000, HistoryDays: 14}
}

// #endregion config

// #region observation

// Observation is what Observe attaches back to a record.
type Observation struct {
	Record     activity.Record  `json:"record"`
	Embedding  embedding.Vector `json:"embedding"`
	Signals    activity.Signals `json:"signals"`
	ClusterID  int              `json:"cluster_id"`
	Similarity float64          `json:"similarity"` // cosine to the nearest centroid
	Distance   float64          `json:"distance"`   // to the assigned centroid, or the nearest one for noise; -1 with no clusters
}

// #endregion observation

// #region components

// Persistence is where Save commits a snapshot together with the cluster
// registry it was labeled with. *store.Store and *store.FileBackend satisfy it.
type Persistence interface {
	CommitState(ctx context.Context, payload []byte, metricsJSON string, reg cluster.Registry) (store.SnapshotRecord, error)
}

// Components are the collaborators a Pipeline drives. Zero values get
// defaults; Persistence and ReportDB may be nil.
type Components struct {
	Cluster     cluster.Config
	Forecast    forecast.Config
	Eval        eval.EvalConfig
	Twin        *twin.Twin
	Registry    cluster.Registry
	Persistence Persistence
	ReportDB    *sql.DB
	Logger      *slog.Logger
}

// #endregion components

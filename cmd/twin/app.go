package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/config"
	"github.com/danielpatrickdp/behavior-twin/internal/pipeline"
	"github.com/danielpatrickdp/behavior-twin/internal/store"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// backend is where the twin and the registry live between runs.
type backend interface {
	pipeline.Persistence
	twin.SnapshotStore
	LoadRegistry(ctx context.Context) (cluster.Registry, error)
}

// app is a fully wired pipeline plus the storage it was restored from.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	backend  backend
	db       *store.Store // nil in snapshot-file mode
	pipeline *pipeline.Pipeline
}

// openApp restores the twin and the cluster registry and wires a pipeline
// around them. Storage.SnapshotFile selects the JSON file backend; otherwise
// the SQLite store at Storage.DBPath is used.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := cfg.Logger()
	a := &app{cfg: cfg, logger: logger}

	if cfg.Storage.SnapshotFile != "" {
		a.backend = store.NewFileBackend(cfg.Storage.SnapshotFile)
	} else {
		db, err := store.NewStore(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.db = db
		a.backend = db
	}

	reg, err := a.backend.LoadRegistry(ctx)
	if err != nil {
		logger.Warn("cluster registry unreadable, starting empty", "error", err)
		reg = cluster.NewRegistry()
	}

	comps := pipeline.Components{
		Cluster:     cfg.Cluster,
		Forecast:    cfg.Forecast,
		Eval:        cfg.Eval,
		Twin:        twin.Load(ctx, a.backend, cfg.Twin, logger),
		Registry:    reg,
		Persistence: a.backend,
		Logger:      logger,
	}
	if a.db != nil {
		comps.ReportDB = a.db.DB()
	}
	a.pipeline = pipeline.New(cfg.Pipeline, comps)

	logger.Info("twin ready",
		"events", a.pipeline.Twin().Snapshot().Events,
		"clusters", reg.Len(),
		"storage", a.storageName(),
	)
	return a, nil
}

func (a *app) storageName() string {
	if a.db == nil {
		return a.cfg.Storage.SnapshotFile
	}
	return a.cfg.Storage.DBPath
}

// Close releases the SQLite handle, if any.
func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

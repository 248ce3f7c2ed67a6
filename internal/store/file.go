package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// #region file-backend
// FileBackend keeps only the latest twin snapshot and cluster registry as two
// JSON files. It has no version history; every commit replaces the previous
// snapshot.
type FileBackend struct {
	snapshots *twin.FileStore
	registry  *twin.FileStore
}

// NewFileBackend writes the snapshot to path and the registry next to it.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{
		snapshots: twin.NewFileStore(path),
		registry:  twin.NewFileStore(strings.TrimSuffix(path, ".json") + ".registry.json"),
	}
}

// SnapshotPath returns where the twin snapshot is written.
func (b *FileBackend) SnapshotPath() string { return b.snapshots.Path }

// CommitSnapshot replaces the snapshot file. The returned record has no parent.
func (b *FileBackend) CommitSnapshot(ctx context.Context, payload []byte, metricsJSON string) (SnapshotRecord, error) {
	rec, err := newRecord(payload, metricsJSON)
	if err != nil {
		return SnapshotRecord{}, err
	}
	if err := b.snapshots.SaveSnapshot(ctx, payload); err != nil {
		return SnapshotRecord{}, err
	}
	return rec, nil
}

// CommitState writes the registry and then the snapshot. Files cannot share a
// transaction; the snapshot is written last so a failure leaves the previous
// snapshot in place.
func (b *FileBackend) CommitState(ctx context.Context, payload []byte, metricsJSON string, reg cluster.Registry) (SnapshotRecord, error) {
	rec, err := newRecord(payload, metricsJSON)
	if err != nil {
		return SnapshotRecord{}, err
	}
	if err := b.SaveRegistry(ctx, reg); err != nil {
		return SnapshotRecord{}, err
	}
	if err := b.snapshots.SaveSnapshot(ctx, payload); err != nil {
		return SnapshotRecord{}, err
	}
	return rec, nil
}

// SaveSnapshot implements twin.SnapshotStore.
func (b *FileBackend) SaveSnapshot(ctx context.Context, payload []byte) error {
	return b.snapshots.SaveSnapshot(ctx, payload)
}

// LoadSnapshot implements twin.SnapshotStore.
func (b *FileBackend) LoadSnapshot(ctx context.Context) ([]byte, error) {
	return b.snapshots.LoadSnapshot(ctx)
}

// SaveRegistry writes reg as JSON.
func (b *FileBackend) SaveRegistry(ctx context.Context, reg cluster.Registry) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return b.registry.SaveSnapshot(ctx, data)
}

// LoadRegistry reads the registry file. A missing file yields an empty
// registry.
func (b *FileBackend) LoadRegistry(ctx context.Context) (cluster.Registry, error) {
	reg := cluster.NewRegistry()
	data, err := b.registry.LoadSnapshot(ctx)
	if errors.Is(err, twin.ErrNoSnapshot) {
		return reg, nil
	}
	if err != nil {
		return reg, err
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		return cluster.NewRegistry(), fmt.Errorf("unmarshal registry: %w", err)
	}
	return reg.Clone(), nil
}
// #endregion file-backend

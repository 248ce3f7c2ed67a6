package twin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SnapshotStore persists serialised twin snapshots. LoadSnapshot returns
// ErrNoSnapshot when nothing has been saved.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, data []byte) error
	LoadSnapshot(ctx context.Context) ([]byte, error)
}

// #region codec

// Marshal serialises st as a versioned JSON snapshot.
func Marshal(st *State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal twin snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal restores a snapshot. The schema version is checked before the
// body is decoded, so a snapshot from another layout is never partially read.
func Unmarshal(data []byte) (*State, error) {
	var header struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if header.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnknownSchema, header.SchemaVersion)
	}
	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := st.Check(); err != nil {
		return nil, err
	}
	return st, nil
}

// #endregion codec

// #region load

// Load restores a Twin from store. A missing, unreadable, corrupt or
// unknown-version snapshot yields a cold-start Twin and a warning; Load never
// fails.
func Load(ctx context.Context, store SnapshotStore, config Config, logger *slog.Logger) *Twin {
	if logger == nil {
		logger = slog.Default()
	}
	cold := func() *Twin {
		t := New(config)
		t.logger = logger
		return t
	}

	data, err := store.LoadSnapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		logger.Warn("twin: no snapshot, cold start")
		return cold()
	}
	if err != nil {
		logger.Warn("twin: snapshot unreadable, cold start", "error", err)
		return cold()
	}
	st, err := Unmarshal(data)
	if err != nil {
		logger.Warn("twin: snapshot rejected, cold start", "error", err)
		return cold()
	}
	t := FromState(st, config)
	t.logger = logger
	logger.Info("twin: snapshot restored", "events", st.Events, "states", len(st.stateSpace()))
	return t
}

// #endregion load

// #region file-store

// FileStore keeps the snapshot in a single JSON file.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// SaveSnapshot writes data atomically: a temp file in the same directory is
// renamed over the target.
func (f *FileStore) SaveSnapshot(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".twin-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot file.
func (f *FileStore) LoadSnapshot(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// #endregion file-store

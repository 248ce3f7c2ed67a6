package twin

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Twin guards a State for one writer and any number of readers.
type Twin struct {
	mu     sync.RWMutex
	state  *State
	config Config
	logger *slog.Logger
}

// New returns a cold-start Twin.
func New(config Config) *Twin {
	return FromState(NewState(), config)
}

// FromState wraps an existing state. The Twin takes ownership of st.
func FromState(st *State, config Config) *Twin {
	return &Twin{state: st, config: config, logger: slog.Default()}
}

// Config returns the twin's configuration.
func (t *Twin) Config() Config { return t.config }

// Apply folds one observation into the twin.
func (t *Twin) Apply(obs Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Apply(obs, t.config.HalfLife)
}

// Replace swaps in st as the twin's state. The Twin takes ownership of st.
func (t *Twin) Replace(st *State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = st
}

// Snapshot returns a deep copy of the current state.
func (t *Twin) Snapshot() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Queries evaluates the derived queries over a consistent copy of the state.
func (t *Twin) Queries() Queries {
	return t.Snapshot().Queries(t.config)
}

// LastCluster returns the state the twin is currently in.
func (t *Twin) LastCluster() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.LastCluster
}

// Save writes a snapshot of the twin to store.
func (t *Twin) Save(ctx context.Context, store SnapshotStore) error {
	start := time.Now()
	data, err := Marshal(t.Snapshot())
	if err != nil {
		return err
	}
	if err := store.SaveSnapshot(ctx, data); err != nil {
		return err
	}
	t.logger.Debug("twin: snapshot saved", "bytes", len(data), "elapsed", time.Since(start))
	return nil
}

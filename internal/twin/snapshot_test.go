package twin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "state", "twin.json"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := tempFileStore(t)
	cfg := DefaultConfig()

	tw := New(cfg)
	for _, o := range habitStream(4) {
		tw.Apply(o)
	}
	if err := tw.Save(ctx, fs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := Load(ctx, fs, cfg, nil)
	before, after := tw.Snapshot(), restored.Snapshot()

	if after.Events != before.Events || after.LastCluster != before.LastCluster {
		t.Fatalf("header mismatch: %d/%d vs %d/%d", after.Events, after.LastCluster, before.Events, before.LastCluster)
	}
	if !after.LastUpdate.Equal(before.LastUpdate) {
		t.Fatalf("last update %v, want %v", after.LastUpdate, before.LastUpdate)
	}
	for src, row := range before.Transitions {
		for dst, c := range row {
			got := after.Transitions[src][dst]
			if got.Value != c.Value || !got.UpdatedAt.Equal(c.UpdatedAt) {
				t.Fatalf("transition %d->%d: got %+v, want %+v", src, dst, got, c)
			}
		}
	}
	for key, f := range before.Factors {
		g := after.Factors[key]
		if g == nil {
			t.Fatalf("factor %q missing", key)
		}
		if g.Productivity != f.Productivity || g.Distraction != f.Distraction || g.CognitiveLoad != f.CognitiveLoad {
			t.Fatalf("factor %q stats differ", key)
		}
		for c, n := range f.Clusters {
			if g.Clusters[c] != n {
				t.Fatalf("factor %q cluster %d: %d != %d", key, c, g.Clusters[c], n)
			}
		}
	}

	a, _ := Marshal(before)
	b, _ := Marshal(after)
	if !bytes.Equal(a, b) {
		t.Fatal("re-marshalled snapshot differs")
	}
}

func TestLoadCorruptSnapshotColdStarts(t *testing.T) {
	ctx := context.Background()
	fs := tempFileStore(t)
	if err := fs.SaveSnapshot(ctx, []byte(`{"schema_version": 1, "transitions": {`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	tw := Load(ctx, fs, DefaultConfig(), nil)
	st := tw.Snapshot()
	if st.Events != 0 || st.LastCluster != Unknown || len(st.Transitions) != 0 {
		t.Fatalf("expected cold start, got %+v", st)
	}
	// the cold-started twin is usable
	tw.Apply(Observation{ClusterID: 0, Timestamp: start})
	if tw.LastCluster() != 0 {
		t.Fatalf("apply after cold start: last cluster %d", tw.LastCluster())
	}
}

func TestLoadMissingSnapshotColdStarts(t *testing.T) {
	fs := tempFileStore(t)
	if _, err := fs.LoadSnapshot(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if st := Load(context.Background(), fs, DefaultConfig(), nil).Snapshot(); st.Events != 0 {
		t.Fatalf("expected empty state, got %d events", st.Events)
	}
}

func TestUnmarshalUnknownSchema(t *testing.T) {
	_, err := Unmarshal([]byte(`{"schema_version": 99, "transitions": "not even the right shape"}`))
	if !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", err)
	}

	fs := tempFileStore(t)
	if err := os.MkdirAll(filepath.Dir(fs.Path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fs.Path, []byte(`{"schema_version": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if st := Load(context.Background(), fs, DefaultConfig(), nil).Snapshot(); st.SchemaVersion != SchemaVersion || st.Events != 0 {
		t.Fatalf("expected cold start, got %+v", st)
	}
}

func TestUnmarshalRejectsBrokenInvariants(t *testing.T) {
	st := NewState()
	st.Apply(Observation{ClusterID: 1, Timestamp: start}, DefaultConfig().HalfLife)

	negative := st.Clone()
	negative.Transitions[Unknown][1] = DecayedCount{Value: -2, UpdatedAt: start}

	inconsistent := st.Clone()
	inconsistent.Factors[ClusterBucket(1)].Clusters[4] = 3

	for name, bad := range map[string]*State{"negative": negative, "inconsistent": inconsistent} {
		data, err := Marshal(bad)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", name, err)
		}
		if _, err := Unmarshal(data); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

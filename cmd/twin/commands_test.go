package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/behavior-twin/internal/config"
)

var fixturePath = filepath.Join("..", "..", "internal", "replay", "testdata", "single_habit.json")

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", "", "--env-file", filepath.Join(t.TempDir(), "none.env")))
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReplayFixtureWithSnapshotFile(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "twin.json")
	t.Setenv("TWIN_STORAGE_SNAPSHOT_FILE", snap)
	t.Setenv("TWIN_LOG_LEVEL", "error")

	out, err := execute(t, "replay", "--save=true", fixturePath)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	var summary struct {
		TotalRecords int `json:"total_records"`
		Labeled      int `json:"labeled"`
		Noise        int `json:"noise"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.TotalRecords != 30 || summary.Labeled != 30 || summary.Noise != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if _, err := os.Stat(snap); err != nil {
		t.Fatalf("expected snapshot file: %v", err)
	}

	out, err = execute(t, "inspect", "twin")
	if err != nil {
		t.Fatalf("inspect twin: %v", err)
	}
	var q struct {
		Events int64 `json:"events"`
	}
	if err := json.Unmarshal([]byte(out), &q); err != nil {
		t.Fatalf("decode queries: %v\n%s", err, out)
	}
	if q.Events != 30 {
		t.Errorf("expected restored twin with 30 events, got %d", q.Events)
	}

	if _, err := execute(t, "inspect", "versions"); err == nil {
		t.Error("expected versions to need the SQLite store")
	}
}

func TestReplayWithSQLiteThenInspect(t *testing.T) {
	t.Setenv("TWIN_STORAGE_DB_PATH", filepath.Join(t.TempDir(), "twin.db"))
	t.Setenv("TWIN_STORAGE_SNAPSHOT_FILE", "")
	t.Setenv("TWIN_LOG_LEVEL", "error")

	if _, err := execute(t, "replay", "--save=true", fixturePath); err != nil {
		t.Fatalf("replay: %v", err)
	}

	out, err := execute(t, "inspect", "versions", "--limit", "5")
	if err != nil {
		t.Fatalf("inspect versions: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "VERSION") {
		t.Fatalf("expected header and one version, got:\n%s", out)
	}
	if !strings.Contains(lines[1], "30") {
		t.Errorf("expected version row to show 30 events: %s", lines[1])
	}

	out, err = execute(t, "inspect", "reports", "--limit", "5")
	if err != nil {
		t.Fatalf("inspect reports: %v", err)
	}
	if !strings.Contains(out, "catch_all") || !strings.Contains(out, "baseline") {
		t.Errorf("expected logged catch_all/baseline report, got:\n%s", out)
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  dimension: 512\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"inspect", "twin", "--config", path, "--env-file", filepath.Join(t.TempDir(), "none.env")})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestReplayRequiresFile(t *testing.T) {
	if _, err := execute(t, "replay"); err == nil {
		t.Fatal("expected error without a file argument")
	}
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/embedding"
	"github.com/danielpatrickdp/behavior-twin/internal/eval"
	"github.com/danielpatrickdp/behavior-twin/internal/forecast"
	"github.com/danielpatrickdp/behavior-twin/internal/pipeline"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// ErrInvalidConfig is wrapped by every validation failure. It is the only
// error class that should stop the process.
var ErrInvalidConfig = errors.New("invalid configuration")

// #region config

// Config aggregates every component's settings.
type Config struct {
	Embedding embedding.Config `yaml:"embedding"`
	Cluster   cluster.Config   `yaml:"cluster"`
	Forecast  forecast.Config  `yaml:"forecast"`
	Twin      twin.Config      `yaml:"twin"`
	Eval      eval.EvalConfig  `yaml:"eval"`
	Pipeline  pipeline.Config  `yaml:"pipeline"`
	Storage   StorageConfig    `yaml:"storage"`
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
}

// StorageConfig says where state lives.
type StorageConfig struct {
	DBPath       string        `yaml:"db_path"`
	SnapshotFile string        `yaml:"snapshot_file"` // JSON snapshot instead of SQLite when set
	SaveInterval time.Duration `yaml:"save_interval"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the defaults of every component.
func DefaultConfig() Config {
	return Config{
		Embedding: embedding.DefaultConfig(),
		Cluster:   cluster.DefaultConfig(),
		Forecast:  forecast.DefaultConfig(),
		Twin:      twin.DefaultConfig(),
		Eval:      eval.DefaultEvalConfig(),
		Pipeline:  pipeline.DefaultConfig(),
		Storage: StorageConfig{
			DBPath:       "behavior_twin.db",
			SaveInterval: 5 * time.Minute,
		},
		Server: ServerConfig{Addr: "127.0.0.1:50071"},
		Log:    LogConfig{Level: "info"},
	}
}

// #endregion config

// #region load

// Load builds the configuration in layers: defaults, then the YAML file at
// path (skipped when path is empty), then .env files, then TWIN_* environment
// variables. The result is validated.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// existing environment variables win over .env entries
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not load env file", "path", f, "error", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// #endregion load

// #region validate

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Embedding.Dimension == embedding.Dimension, "embedding.dimension must be %d, got %d", embedding.Dimension, c.Embedding.Dimension)

	check(c.Cluster.MinSamples >= 1, "cluster.min_samples must be >= 1")
	check(c.Cluster.MinClusterSize == 0 || c.Cluster.MinClusterSize >= 2, "cluster.min_cluster_size must be 0 or >= 2")
	check(c.Cluster.MinPts >= 2, "cluster.min_pts must be >= 2")
	check(c.Cluster.KMin >= 2 && c.Cluster.KMax >= c.Cluster.KMin, "cluster k range [%d, %d] invalid", c.Cluster.KMin, c.Cluster.KMax)
	check(c.Cluster.MaxIterations > 0, "cluster.max_iterations must be positive")
	check(inUnit(c.Cluster.MatchThreshold), "cluster.match_threshold must be in [0, 1]")
	check(c.Cluster.AnomalyMAD > 0, "cluster.anomaly_mad must be positive")
	check(inUnit(c.Cluster.RareShare), "cluster.rare_share must be in [0, 1]")
	check(c.Cluster.FlowMinDuration >= 0, "cluster.flow_min_duration must not be negative")

	check(c.Forecast.MinSequenceSamples > 0, "forecast.min_sequence_samples must be positive")
	check(c.Forecast.MinSequenceHours > 0, "forecast.min_sequence_hours must be positive")
	check(c.Forecast.MinSeasonalDays > 0, "forecast.min_seasonal_days must be positive")
	check(c.Forecast.Horizon > 0, "forecast.horizon must be positive")
	check(c.Forecast.KernelBandwidth > 0, "forecast.kernel_bandwidth must be positive")
	check(inUnit(c.Forecast.SmoothingAlpha) && inUnit(c.Forecast.SmoothingBeta), "forecast smoothing factors must be in [0, 1]")
	check(c.Forecast.RecentWindow > 0, "forecast.recent_window must be positive")

	check(c.Twin.HalfLife > 0, "twin.half_life must be positive")
	check(inUnit(c.Twin.ProductivityThreshold) && inUnit(c.Twin.DipThreshold) && inUnit(c.Twin.LowProductivity), "twin productivity thresholds must be in [0, 1]")
	check(inUnit(c.Twin.StressThreshold), "twin.stress_threshold must be in [0, 1]")
	check(c.Twin.MinBucketSamples >= 1, "twin.min_bucket_samples must be >= 1")
	check(c.Twin.StressHigh >= c.Twin.StressMedium && c.Twin.StressMedium >= 0, "twin stress rates must satisfy 0 <= medium <= high")
	check(c.Twin.Drifting <= c.Twin.OnTrack && inUnit(c.Twin.Drifting) && inUnit(c.Twin.OnTrack), "twin alignment thresholds must satisfy 0 <= drifting <= on_track <= 1")

	check(c.Eval.MaxFactors > 0, "eval.max_factors must be positive")
	check(c.Pipeline.HistorySize > 0, "pipeline.history_size must be positive")
	check(c.Pipeline.HistoryDays > 0, "pipeline.history_days must be positive")
	check(c.Storage.SaveInterval > 0, "storage.save_interval must be positive")
	check(c.Storage.DBPath != "" || c.Storage.SnapshotFile != "", "storage needs db_path or snapshot_file")

	if _, ok := parseLevel(c.Log.Level); !ok {
		problems = append(problems, fmt.Sprintf("log.level %q unknown", c.Log.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

// #endregion validate

// #region logger

// Logger returns a text slog.Logger at the configured level.
func (c Config) Logger() *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// #endregion logger

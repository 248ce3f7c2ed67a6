package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{env: "TWIN_STORAGE_DB_PATH", typ: kString, apply: func(cfg *Config, v any) { cfg.Storage.DBPath = v.(string) }},
	{env: "TWIN_STORAGE_SNAPSHOT_FILE", typ: kString, apply: func(cfg *Config, v any) { cfg.Storage.SnapshotFile = v.(string) }},
	{env: "TWIN_STORAGE_SAVE_INTERVAL", typ: kDuration, apply: func(cfg *Config, v any) { cfg.Storage.SaveInterval = v.(time.Duration) }},
	{env: "TWIN_SERVER_ADDR", typ: kString, apply: func(cfg *Config, v any) { cfg.Server.Addr = v.(string) }},
	{env: "TWIN_LOG_LEVEL", typ: kString, apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) }},
	{env: "TWIN_EMBEDDING_DIMENSION", typ: kInt, apply: func(cfg *Config, v any) { cfg.Embedding.Dimension = v.(int) }},
	{env: "TWIN_CLUSTER_MIN_SAMPLES", typ: kInt, apply: func(cfg *Config, v any) { cfg.Cluster.MinSamples = v.(int) }},
	{env: "TWIN_CLUSTER_MATCH_THRESHOLD", typ: kFloat, apply: func(cfg *Config, v any) { cfg.Cluster.MatchThreshold = v.(float64) }},
	{env: "TWIN_CLUSTER_ANOMALY_MAD", typ: kFloat, apply: func(cfg *Config, v any) { cfg.Cluster.AnomalyMAD = v.(float64) }},
	{env: "TWIN_CLUSTER_FLOW_MIN_DURATION", typ: kDuration, apply: func(cfg *Config, v any) { cfg.Cluster.FlowMinDuration = v.(time.Duration) }},
	{env: "TWIN_FORECAST_MIN_SEQUENCE_SAMPLES", typ: kInt, apply: func(cfg *Config, v any) { cfg.Forecast.MinSequenceSamples = v.(int) }},
	{env: "TWIN_FORECAST_MIN_SEQUENCE_HOURS", typ: kInt, apply: func(cfg *Config, v any) { cfg.Forecast.MinSequenceHours = v.(int) }},
	{env: "TWIN_FORECAST_MIN_SEASONAL_DAYS", typ: kInt, apply: func(cfg *Config, v any) { cfg.Forecast.MinSeasonalDays = v.(int) }},
	{env: "TWIN_TWIN_HALF_LIFE", typ: kDuration, apply: func(cfg *Config, v any) { cfg.Twin.HalfLife = v.(time.Duration) }},
	{env: "TWIN_PIPELINE_HISTORY_SIZE", typ: kInt, apply: func(cfg *Config, v any) { cfg.Pipeline.HistorySize = v.(int) }},
	{env: "TWIN_PIPELINE_HISTORY_DAYS", typ: kInt, apply: func(cfg *Config, v any) { cfg.Pipeline.HistoryDays = v.(int) }},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		var (
			v   any
			err error
		)
		switch s.typ {
		case kString:
			v = raw
		case kInt:
			v, err = strconv.Atoi(raw)
		case kFloat:
			v, err = strconv.ParseFloat(raw, 64)
		case kDuration:
			v, err = time.ParseDuration(raw)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using configured value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

package eval

// #region eval-config
// EvalConfig holds thresholds for pre-commit snapshot validation.
type EvalConfig struct {
	MaxFactors          int     `yaml:"max_factors"`           // reject if context buckets exceed this
	StationaryTolerance float64 `yaml:"stationary_tolerance"`  // reject if stationary mass drifts from 1
	EntropyBaseline     float64 `yaml:"entropy_baseline"`      // warn if stationary entropy rises above baseline
}

// DefaultEvalConfig returns sensible defaults.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxFactors:          5000,
		StationaryTolerance: 1e-6,
		EntropyBaseline:     2.0,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of pre-commit validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result

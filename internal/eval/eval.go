package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// #region eval-harness
// EvalHarness validates a twin snapshot before it is committed.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks st against its structural invariants and against the previously
// committed event count. Entropy is reported but never fails the run.
func (h *EvalHarness) Run(st *twin.State, cfg twin.Config, prevEvents int64) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	// 1. Structural invariants
	checkErr := st.Check()
	metrics = append(metrics, EvalMetric{Name: "invariants", Value: boolValue(checkErr == nil), Pass: checkErr == nil})
	if checkErr != nil {
		failReasons = append(failReasons, checkErr.Error())
	}

	// 2. Event counter is monotonic across commits
	eventsPass := st.Events >= prevEvents
	metrics = append(metrics, EvalMetric{Name: "events", Value: float64(st.Events), Pass: eventsPass})
	if !eventsPass {
		failReasons = append(failReasons, fmt.Sprintf("events went from %d to %d", prevEvents, st.Events))
	}

	// 3. Context bucket count stays bounded
	factorsPass := len(st.Factors) <= h.config.MaxFactors
	metrics = append(metrics, EvalMetric{Name: "factors", Value: float64(len(st.Factors)), Pass: factorsPass})
	if !factorsPass {
		failReasons = append(failReasons, fmt.Sprintf("%d context buckets exceed %d", len(st.Factors), h.config.MaxFactors))
	}

	// 4. Stationary distribution is a distribution. Skipped when the
	// invariants already failed, since the matrix may hold NaN.
	if checkErr == nil {
		pi := st.Stationary(cfg)
		mass, entropy := massAndEntropy(pi)
		massPass := len(pi) == 0 || math.Abs(mass-1) <= h.config.StationaryTolerance
		metrics = append(metrics, EvalMetric{Name: "stationary_mass", Value: mass, Pass: massPass})
		if !massPass {
			failReasons = append(failReasons, fmt.Sprintf("stationary mass %.6f", mass))
		}

		// 5. Entropy: informational only
		metrics = append(metrics, EvalMetric{
			Name:  "stationary_entropy",
			Value: entropy,
			Pass:  entropy <= h.config.EntropyBaseline,
		})
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func massAndEntropy(pi map[int]float64) (float64, float64) {
	var mass, entropy float64
	for _, p := range pi {
		mass += p
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return mass, entropy
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers

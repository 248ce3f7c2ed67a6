package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// activity session plus what a report over it is expected to say.
type Fixture struct {
	Description string            `json:"description"`
	Records     []activity.Record `json:"records"`
	Expected    FixtureExpected   `json:"expected"`
}

// FixtureExpected captures the assertions a fixture makes about its report.
// Empty fields are not checked.
type FixtureExpected struct {
	Algorithm    string   `json:"algorithm,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	ForecastTier string   `json:"forecast_tier,omitempty"`
	MinProfiles  int      `json:"min_profiles,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// LoadRecords reads a JSONL activity log from path.
func LoadRecords(path string) ([]activity.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records %s: %w", path, err)
	}
	defer f.Close()
	recs, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("read records %s: %w", path, err)
	}
	return recs, nil
}

// ReadRecords decodes one activity record per line. Blank lines and lines
// starting with # are skipped.
func ReadRecords(r io.Reader) ([]activity.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var recs []activity.Record
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec activity.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// #endregion fixture-loader

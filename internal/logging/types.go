package logging

import "time"

// #region report-entry
// ReportEntry is a single row in the report_log table: which snapshot a
// report was generated against and how confident its parts were.
type ReportEntry struct {
	ReportID        string
	SnapshotVersion string
	Algorithm       string // clustering strategy that produced the profiles
	ForecastTier    string
	LowConfidence   bool
	Clusters        int
	Anomalies       int
	SummaryJSON     string
	CreatedAt       time.Time
}
// #endregion report-entry

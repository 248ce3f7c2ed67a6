package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region log-report
// LogReport writes a report entry to the report_log table and returns the
// entry as stored.
func LogReport(ctx context.Context, db *sql.DB, entry ReportEntry) (ReportEntry, error) {
	if entry.ReportID == "" {
		entry.ReportID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO report_log (report_id, snapshot_version, algorithm, forecast_tier, low_confidence, clusters, anomalies, summary_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ReportID,
		nullIfEmpty(entry.SnapshotVersion),
		entry.Algorithm,
		entry.ForecastTier,
		entry.LowConfidence,
		entry.Clusters,
		entry.Anomalies,
		nullIfEmpty(entry.SummaryJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return entry, fmt.Errorf("log report: %w", err)
	}
	return entry, nil
}
// #endregion log-report

// #region list-reports
// ListReports returns the most recent report entries, newest first.
func ListReports(ctx context.Context, db *sql.DB, limit int) ([]ReportEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT report_id, snapshot_version, algorithm, forecast_tier, low_confidence, clusters, anomalies, summary_json, created_at
		 FROM report_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportEntry
	for rows.Next() {
		var e ReportEntry
		var snapshot, summary sql.NullString
		var created string
		if err := rows.Scan(&e.ReportID, &snapshot, &e.Algorithm, &e.ForecastTier, &e.LowConfidence,
			&e.Clusters, &e.Anomalies, &summary, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.SnapshotVersion = snapshot.String
		e.SummaryJSON = summary.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion list-reports

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers

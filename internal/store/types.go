package store

import "time"

// #region snapshot-record
// SnapshotRecord is one saved twin snapshot version.
type SnapshotRecord struct {
	VersionID     string
	ParentID      string
	SchemaVersion int
	Events        int64
	Payload       []byte
	CreatedAt     time.Time
	MetricsJSON   string
}
// #endregion snapshot-record

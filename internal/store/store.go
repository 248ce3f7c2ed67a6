package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/behavior-twin/internal/cluster"
	"github.com/danielpatrickdp/behavior-twin/internal/twin"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS twin_snapshots (
	version_id     TEXT PRIMARY KEY,
	parent_id      TEXT,
	schema_version INTEGER NOT NULL,
	events         INTEGER NOT NULL,
	payload        BLOB NOT NULL,
	created_at     TEXT NOT NULL,
	metrics_json   TEXT,
	FOREIGN KEY (parent_id) REFERENCES twin_snapshots(version_id)
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES twin_snapshots(version_id)
);

CREATE TABLE IF NOT EXISTS cluster_profiles (
	cluster_id    INTEGER PRIMARY KEY,
	label         TEXT NOT NULL,
	archetype     TEXT,
	seen          INTEGER NOT NULL,
	centroid      BLOB NOT NULL,
	profile_json  TEXT NOT NULL,
	last_seen     TEXT
);

CREATE TABLE IF NOT EXISTS registry_meta (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	next_id       INTEGER NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS report_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id        TEXT NOT NULL,
	snapshot_version TEXT,
	algorithm        TEXT NOT NULL,
	forecast_tier    TEXT NOT NULL,
	low_confidence   INTEGER NOT NULL,
	clusters         INTEGER NOT NULL,
	anomalies        INTEGER NOT NULL,
	summary_json     TEXT,
	created_at       TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store keeps versioned twin snapshots, the cluster registry and the report
// log in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region commit-snapshot
// CommitSnapshot inserts a new snapshot version whose parent is the current
// active one and moves the active pointer to it atomically.
func (s *Store) CommitSnapshot(ctx context.Context, payload []byte, metricsJSON string) (SnapshotRecord, error) {
	return s.commit(ctx, payload, metricsJSON, nil)
}

// CommitState commits a snapshot and replaces the cluster registry in one
// transaction, so the active snapshot always matches the registry it was
// labeled with.
func (s *Store) CommitState(ctx context.Context, payload []byte, metricsJSON string, reg cluster.Registry) (SnapshotRecord, error) {
	return s.commit(ctx, payload, metricsJSON, &reg)
}

func (s *Store) commit(ctx context.Context, payload []byte, metricsJSON string, reg *cluster.Registry) (SnapshotRecord, error) {
	rec, err := newRecord(payload, metricsJSON)
	if err != nil {
		return SnapshotRecord{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT version_id FROM active_snapshot WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("get active: %w", err)
	}
	if parent.Valid {
		rec.ParentID = parent.String
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO twin_snapshots (version_id, parent_id, schema_version, events, payload, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), rec.SchemaVersion, rec.Events, payload,
		rec.CreatedAt.Format(time.RFC3339Nano), nullIfEmpty(metricsJSON),
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_snapshot (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("set active: %w", err)
	}

	if reg != nil {
		if err := writeRegistry(ctx, tx, *reg); err != nil {
			return SnapshotRecord{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return SnapshotRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}
// #endregion commit-snapshot

// #region snapshot-store
// SaveSnapshot commits payload as a new version without metrics.
func (s *Store) SaveSnapshot(ctx context.Context, payload []byte) error {
	_, err := s.CommitSnapshot(ctx, payload, "")
	return err
}

// LoadSnapshot returns the active snapshot payload, or twin.ErrNoSnapshot.
func (s *Store) LoadSnapshot(ctx context.Context) ([]byte, error) {
	rec, err := s.GetCurrent(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, twin.ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return rec.Payload, nil
}
// #endregion snapshot-store

// #region get-current
// GetCurrent reads the active snapshot version.
func (s *Store) GetCurrent(ctx context.Context) (SnapshotRecord, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx, `SELECT version_id FROM active_snapshot WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}
// #endregion get-current

// #region get-version
// GetVersion retrieves a specific snapshot version by ID.
func (s *Store) GetVersion(ctx context.Context, id string) (SnapshotRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, parent_id, schema_version, events, payload, created_at, metrics_json
		 FROM twin_snapshots WHERE version_id = ?`, id,
	)
	rec, err := scanSnapshot(row)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}
// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous snapshot version.
func (s *Store) Rollback(ctx context.Context, targetVersionID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM twin_snapshots WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE active_snapshot SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns the most recent snapshot versions, newest first.
func (s *Store) ListVersions(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id, schema_version, events, payload, created_at, metrics_json
		 FROM twin_snapshots ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion list-versions

// #region registry
// SaveRegistry replaces the persisted cluster registry with reg.
func (s *Store) SaveRegistry(ctx context.Context, reg cluster.Registry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := writeRegistry(ctx, tx, reg); err != nil {
		return err
	}
	return tx.Commit()
}

func writeRegistry(ctx context.Context, tx *sql.Tx, reg cluster.Registry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_profiles`); err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}
	for _, p := range reg.Profiles {
		centroid := p.Centroid
		p.Centroid = nil
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal profile %d: %w", p.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cluster_profiles (cluster_id, label, archetype, seen, centroid, profile_json, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Label, nullIfEmpty(p.Archetype), p.Seen, encodeVector(centroid), string(body),
			p.LastSeen.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert profile %d: %w", p.ID, err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO registry_meta (id, next_id, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET next_id = excluded.next_id, updated_at = excluded.updated_at`,
		reg.NextID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("update registry meta: %w", err)
	}
	return nil
}

// LoadRegistry reads the persisted cluster registry. An empty database yields
// an empty registry.
func (s *Store) LoadRegistry(ctx context.Context) (cluster.Registry, error) {
	reg := cluster.NewRegistry()
	err := s.db.QueryRowContext(ctx, `SELECT next_id FROM registry_meta WHERE id = 1`).Scan(&reg.NextID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return reg, fmt.Errorf("get registry meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT centroid, profile_json FROM cluster_profiles ORDER BY cluster_id`)
	if err != nil {
		return reg, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		var body string
		if err := rows.Scan(&blob, &body); err != nil {
			return reg, fmt.Errorf("scan profile: %w", err)
		}
		var p cluster.Profile
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return reg, fmt.Errorf("unmarshal profile: %w", err)
		}
		p.Centroid = decodeVector(blob)
		reg.Profiles = append(reg.Profiles, p)
	}
	if err := rows.Err(); err != nil {
		return reg, err
	}
	return reg.Clone(), nil
}
// #endregion registry

// #region helpers
// newRecord stamps payload with a fresh version id and the counters from its
// JSON header.
func newRecord(payload []byte, metricsJSON string) (SnapshotRecord, error) {
	var header struct {
		SchemaVersion int   `json:"schema_version"`
		Events        int64 `json:"events"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return SnapshotRecord{}, fmt.Errorf("read snapshot header: %w", err)
	}
	return SnapshotRecord{
		VersionID:     uuid.New().String(),
		SchemaVersion: header.SchemaVersion,
		Events:        header.Events,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MetricsJSON:   metricsJSON,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (SnapshotRecord, error) {
	var rec SnapshotRecord
	var parentID, metricsJSON sql.NullString
	var createdStr string
	if err := row.Scan(&rec.VersionID, &parentID, &rec.SchemaVersion, &rec.Events, &rec.Payload, &createdStr, &metricsJSON); err != nil {
		return SnapshotRecord{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	if metricsJSON.Valid {
		rec.MetricsJSON = metricsJSON.String
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers

// Package sqlite persists per-frame row estimates for offline
// evaluation and tuning. It is an adapter, not a domain layer: the
// pipeline sees it only through the EstimateStore interface.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
)

// EstimateStore writes row estimates to a SQLite database.
type EstimateStore struct {
	db *sql.DB
}

// NewEstimateStore opens (creating if needed) the database at path and
// applies the schema.
func NewEstimateStore(path string) (*EstimateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("estimate store: open %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS row_estimates (
			frame_id          TEXT,
			ts_unix_nanos     BIGINT,
			valid             INTEGER,
			reason            TEXT,
			heading_rad       DOUBLE,
			lateral_offset_m  DOUBLE,
			confidence        DOUBLE,
			row_points        BIGINT,
			residual_rms      DOUBLE,
			created           TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_row_estimates_ts ON row_estimates(ts_unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("estimate store: schema: %w", err)
	}
	return &EstimateStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *EstimateStore) Close() error {
	return s.db.Close()
}

// InsertEstimate records one frame's estimate (valid or NoRowDetected).
func (s *EstimateStore) InsertEstimate(frameID string, stamp time.Time, est extract.Estimate) error {
	valid := 0
	if est.Valid {
		valid = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO row_estimates
			(frame_id, ts_unix_nanos, valid, reason, heading_rad, lateral_offset_m, confidence, row_points, residual_rms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		frameID, stamp.UnixNano(), valid, est.Reason,
		est.HeadingRad, est.LateralOffsetM, est.Confidence,
		est.RowPointCount, est.ResidualRMS)
	if err != nil {
		return fmt.Errorf("estimate store: insert frame %s: %w", frameID, err)
	}
	return nil
}

// StoredEstimate is one persisted row estimate.
type StoredEstimate struct {
	FrameID     string
	TSUnixNanos int64
	Estimate    extract.Estimate
}

// RecentEstimates returns up to limit estimates, newest first.
func (s *EstimateStore) RecentEstimates(limit int) ([]StoredEstimate, error) {
	rows, err := s.db.Query(`
		SELECT frame_id, ts_unix_nanos, valid, reason, heading_rad, lateral_offset_m, confidence, row_points, residual_rms
		FROM row_estimates
		ORDER BY ts_unix_nanos DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("estimate store: query: %w", err)
	}
	defer rows.Close()

	var out []StoredEstimate
	for rows.Next() {
		var se StoredEstimate
		var valid int
		if err := rows.Scan(&se.FrameID, &se.TSUnixNanos, &valid, &se.Estimate.Reason,
			&se.Estimate.HeadingRad, &se.Estimate.LateralOffsetM, &se.Estimate.Confidence,
			&se.Estimate.RowPointCount, &se.Estimate.ResidualRMS); err != nil {
			return nil, fmt.Errorf("estimate store: scan: %w", err)
		}
		se.Estimate.Valid = valid == 1
		out = append(out, se)
	}
	return out, rows.Err()
}

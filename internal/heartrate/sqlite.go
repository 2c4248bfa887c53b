package heartrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteRecorder stores readings in heart_rate_readings
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(db *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: db}
}

func (s *SQLiteRecorder) Record(ctx context.Context, r Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heart_rate_readings (node_id, bpm, recorded_at) VALUES (?, ?, ?)`,
		r.NodeID, r.BPM, r.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Recent returns the newest readings first. limit <= 0 means 100.
func (s *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, bpm, recorded_at FROM heart_rate_readings
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	out := []Reading{}
	for rows.Next() {
		var (
			r  Reading
			at int64
		)
		if err := rows.Scan(&r.NodeID, &r.BPM, &at); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		r.At = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

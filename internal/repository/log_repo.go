package repository

import (
	"context"
	"database/sql"
	"time"

	"kiln_control/internal/models"
)

type LogSQLite struct {
	db *sql.DB
}

func NewLogSQLite(db *sql.DB) *LogSQLite { return &LogSQLite{db: db} }

const (
	insertLogSQL = `
		INSERT INTO Log (IsoTime, TimeT, FiringID, StepID, PV, TotalElapsed, SegmentElapsed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	// the window starts at the last sample at or before 'from' so a plot never begins with a gap
	selectLogRangeSQL = `
		SELECT TimeT, FiringID, StepID, PV, TotalElapsed, SegmentElapsed
		FROM Log
		WHERE TimeT >= COALESCE((SELECT MAX(TimeT) FROM Log WHERE TimeT <= ?), ?)
		ORDER BY TimeT ASC
	`
)

// Append inserts one sample. A zero Time is replaced with now.
func (r *LogSQLite) Append(ctx context.Context, s models.LogSample) error {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertLogSQL,
		ts.Format(time.RFC3339),
		unixSeconds(ts),
		s.FiringID,
		s.StepID,
		s.PV,
		s.TotalElapsed,
		s.SegmentElapsed,
	)
	return err
}

// Range returns samples from 'from' onward, ordered ASC.
func (r *LogSQLite) Range(ctx context.Context, from time.Time) ([]models.LogSample, error) {
	sec := unixSeconds(from)
	rows, err := r.db.QueryContext(ctx, selectLogRangeSQL, sec, sec)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.LogSample, 0, 64)
	for rows.Next() {
		var (
			s  models.LogSample
			ts int64
		)
		if err := rows.Scan(&ts, &s.FiringID, &s.StepID, &s.PV, &s.TotalElapsed, &s.SegmentElapsed); err != nil {
			return nil, err
		}
		s.Time = fromUnix(ts)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

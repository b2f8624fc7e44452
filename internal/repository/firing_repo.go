package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kiln_control/internal/models"
)

type FiringSQLite struct {
	db *sql.DB
}

func NewFiringSQLite(db *sql.DB) *FiringSQLite {
	return &FiringSQLite{db: db}
}

var _ FiringRepo = (*FiringSQLite)(nil)

const (
	insertFiringSQL     = `INSERT INTO FiringInfo (ProgramID, StartTimeT) VALUES (?, ?)`
	updateProgramRunSQL = `UPDATE ProgramInfo SET LastExecTime = ?, ExecCount = ExecCount + 1 WHERE ProgramID = ?`
	finishFiringSQL     = `UPDATE FiringInfo SET EndTimeT = ? WHERE FiringID = ? AND EndTimeT IS NULL`
	insertFiringStepSQL = `
		INSERT INTO Firings (FiringID, StepID, SegmentType, PV, Elapsed, StartTimeT, EndTimeT)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	selectFiringSQL      = `SELECT FiringID, ProgramID, StartTimeT, EndTimeT FROM FiringInfo WHERE FiringID = ?`
	selectFiringStepsSQL = `
		SELECT FiringID, StepID, SegmentType, PV, Elapsed, StartTimeT, EndTimeT
		FROM Firings WHERE FiringID = ? ORDER BY StepID
	`
	selectBoundariesSQL = `
		SELECT StartTimeT, EndTimeT FROM Firings
		WHERE StartTimeT > ? OR EndTimeT > ?
		ORDER BY StartTimeT
	`
)

// Create inserts a firing header. When programID is set, the program's last-run
// time and execution count are bumped in the same transaction.
func (r *FiringSQLite) Create(ctx context.Context, programID *int, start time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin firing insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pid any
	if programID != nil {
		pid = *programID
	}
	res, err := tx.ExecContext(ctx, insertFiringSQL, pid, unixSeconds(start))
	if err != nil {
		return 0, fmt.Errorf("insert firing: %w", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for firing: %w", err)
	}

	if programID != nil {
		if _, err := tx.ExecContext(ctx, updateProgramRunSQL, unixSeconds(start), *programID); err != nil {
			return 0, fmt.Errorf("update run stats of program %d: %w", *programID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit firing: %w", err)
	}
	return int(lastID), nil
}

// Finish stamps the end time of a firing. Finishing twice keeps the first end time.
func (r *FiringSQLite) Finish(ctx context.Context, firingID int, end time.Time) error {
	if _, err := r.db.ExecContext(ctx, finishFiringSQL, unixSeconds(end), firingID); err != nil {
		return fmt.Errorf("finish firing %d: %w", firingID, err)
	}
	return nil
}

// AppendStep records the completion of one segment.
func (r *FiringSQLite) AppendStep(ctx context.Context, s models.FiringStep) error {
	_, err := r.db.ExecContext(ctx, insertFiringStepSQL,
		s.FiringID,
		s.StepID,
		s.Type.String(),
		s.PV,
		s.Elapsed,
		unixSeconds(s.StartTime),
		unixSeconds(s.EndTime),
	)
	if err != nil {
		return fmt.Errorf("insert step %d of firing %d: %w", s.StepID, s.FiringID, err)
	}
	return nil
}

// Get returns one firing header.
func (r *FiringSQLite) Get(ctx context.Context, firingID int) (models.Firing, error) {
	var (
		f         models.Firing
		programID sql.NullInt64
		start     int64
		end       sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, selectFiringSQL, firingID).Scan(&f.ID, &programID, &start, &end)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Firing{}, fmt.Errorf("firing %d: %w", firingID, ErrFiringNotFound)
		}
		return models.Firing{}, fmt.Errorf("select firing %d: %w", firingID, err)
	}
	f.StartTime = fromUnix(start)
	if programID.Valid {
		id := int(programID.Int64)
		f.ProgramID = &id
	}
	if end.Valid {
		t := fromUnix(end.Int64)
		f.EndTime = &t
	}
	return f, nil
}

// Steps returns the completed segments of a firing in step order.
func (r *FiringSQLite) Steps(ctx context.Context, firingID int) ([]models.FiringStep, error) {
	rows, err := r.db.QueryContext(ctx, selectFiringStepsSQL, firingID)
	if err != nil {
		return nil, fmt.Errorf("select steps of firing %d: %w", firingID, err)
	}
	defer rows.Close()

	var out []models.FiringStep
	for rows.Next() {
		var (
			s          models.FiringStep
			start, end int64
		)
		if err := rows.Scan(&s.FiringID, &s.StepID, &s.TypeLabel, &s.PV, &s.Elapsed, &start, &end); err != nil {
			return nil, err
		}
		if t, err := models.ParseInstruction(s.TypeLabel); err == nil {
			s.Type = t
		}
		s.StartTime = fromUnix(start)
		s.EndTime = fromUnix(end)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Boundaries returns the start and end times of every firing step that
// started or ended after since. History plots mark them as segment edges.
func (r *FiringSQLite) Boundaries(ctx context.Context, since time.Time) ([]time.Time, error) {
	sec := unixSeconds(since)
	rows, err := r.db.QueryContext(ctx, selectBoundariesSQL, sec, sec)
	if err != nil {
		return nil, fmt.Errorf("select step boundaries: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	var out []time.Time
	for rows.Next() {
		var start, end int64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		for _, ts := range []int64{start, end} {
			if _, ok := seen[ts]; ok {
				continue
			}
			seen[ts] = struct{}{}
			out = append(out, fromUnix(ts))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

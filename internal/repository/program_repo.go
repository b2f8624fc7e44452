package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kiln_control/internal/models"
)

type ProgramSQLite struct {
	db *sql.DB
}

func NewProgramSQLite(db *sql.DB) *ProgramSQLite {
	return &ProgramSQLite{db: db}
}

// Ensure implementation of ProgramRepo interface at compile time.
var _ ProgramRepo = (*ProgramSQLite)(nil)

const (
	selectProgramsSQL = `
		SELECT ProgramID, Name, LastExecTime, ExecCount
		FROM ProgramInfo WHERE Deleted = 0 ORDER BY ProgramID
	`
	selectProgramInfoSQL = `
		SELECT ProgramID, Name, LastExecTime, ExecCount
		FROM ProgramInfo WHERE ProgramID = ? AND Deleted = 0
	`
	selectProgramStepsSQL = `
		SELECT Step, Instruction, Temperature, Param
		FROM Programs WHERE ProgramID = ? AND Step >= ? ORDER BY Step
	`
	insertProgramInfoSQL = `INSERT INTO ProgramInfo (Name) VALUES (?)`
	insertProgramStepSQL = `INSERT INTO Programs (ProgramID, Step, Instruction, Temperature, Param) VALUES (?, ?, ?, ?, ?)`
	deleteProgramSQL     = `UPDATE ProgramInfo SET Deleted = 1 WHERE ProgramID = ?`
)

// List returns the headers of all programs that are not deleted.
func (r *ProgramSQLite) List(ctx context.Context) ([]models.ProgramInfo, error) {
	rows, err := r.db.QueryContext(ctx, selectProgramsSQL)
	if err != nil {
		return nil, fmt.Errorf("select programs: %w", err)
	}
	defer rows.Close()

	var out []models.ProgramInfo
	for rows.Next() {
		p, err := scanProgramInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a program header and all of its steps.
func (r *ProgramSQLite) Get(ctx context.Context, programID int) (models.Program, error) {
	info, err := scanProgramInfo(r.db.QueryRowContext(ctx, selectProgramInfoSQL, programID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Program{}, fmt.Errorf("program %d: %w", programID, ErrProgramNotFound)
		}
		return models.Program{}, fmt.Errorf("select program %d: %w", programID, err)
	}
	steps, err := r.Steps(ctx, programID, 0)
	if err != nil {
		return models.Program{}, err
	}
	return models.Program{ProgramInfo: info, Steps: steps}, nil
}

// Steps returns the program's instructions from fromStep onward, in step order.
func (r *ProgramSQLite) Steps(ctx context.Context, programID, fromStep int) ([]models.Instruction, error) {
	rows, err := r.db.QueryContext(ctx, selectProgramStepsSQL, programID, fromStep)
	if err != nil {
		return nil, fmt.Errorf("select steps of program %d: %w", programID, err)
	}
	defer rows.Close()

	var out []models.Instruction
	for rows.Next() {
		var in models.Instruction
		if err := rows.Scan(&in.Step, &in.Kind, &in.Temperature, &in.Param); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a program header and its steps in one transaction and returns the new id.
// Steps without an explicit number are numbered from 1 in slice order.
func (r *ProgramSQLite) Create(ctx context.Context, p models.Program) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin program insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, insertProgramInfoSQL, p.Name)
	if err != nil {
		return 0, fmt.Errorf("insert program %q: %w", p.Name, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for program %q: %w", p.Name, err)
	}

	for i, s := range p.Steps {
		step := s.Step
		if step == 0 {
			step = i + 1
		}
		if _, err := tx.ExecContext(ctx, insertProgramStepSQL, lastID, step, s.Kind, s.Temperature, s.Param); err != nil {
			return 0, fmt.Errorf("insert step %d of program %q: %w", step, p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit program %q: %w", p.Name, err)
	}
	return int(lastID), nil
}

// Delete soft-deletes a program; its steps stay for firing history.
func (r *ProgramSQLite) Delete(ctx context.Context, programID int) error {
	res, err := r.db.ExecContext(ctx, deleteProgramSQL, programID)
	if err != nil {
		return fmt.Errorf("delete program %d: %w", programID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete program %d: %w", programID, err)
	}
	if n == 0 {
		return fmt.Errorf("program %d: %w", programID, ErrProgramNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgramInfo(row rowScanner) (models.ProgramInfo, error) {
	var (
		p        models.ProgramInfo
		lastExec sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &lastExec, &p.ExecCount); err != nil {
		return models.ProgramInfo{}, err
	}
	if lastExec.Valid {
		t := fromUnix(lastExec.Int64)
		p.LastExecTime = &t
	}
	return p, nil
}

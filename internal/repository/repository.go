package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"kiln_control/internal/models"
)

// ErrProgramNotFound is returned when a program id has no (non-deleted) header row.
var ErrProgramNotFound = errors.New("program not found")

// ErrFiringNotFound is returned when a firing id has no FiringInfo row.
var ErrFiringNotFound = errors.New("firing not found")

type ProgramRepo interface {
	List(ctx context.Context) ([]models.ProgramInfo, error)
	Get(ctx context.Context, programID int) (models.Program, error)
	Steps(ctx context.Context, programID, fromStep int) ([]models.Instruction, error)
	Create(ctx context.Context, p models.Program) (int, error)
	Delete(ctx context.Context, programID int) error
}

type FiringRepo interface {
	Create(ctx context.Context, programID *int, start time.Time) (int, error)
	Finish(ctx context.Context, firingID int, end time.Time) error
	AppendStep(ctx context.Context, s models.FiringStep) error
	Get(ctx context.Context, firingID int) (models.Firing, error)
	Steps(ctx context.Context, firingID int) ([]models.FiringStep, error)
	Boundaries(ctx context.Context, since time.Time) ([]time.Time, error)
}

type LogRepo interface {
	Append(ctx context.Context, s models.LogSample) error
	Range(ctx context.Context, from time.Time) ([]models.LogSample, error)
}

type SettingsRepo interface {
	Save(ctx context.Context, name, value string) error
	All(ctx context.Context) (map[string]string, error)
}

type Repository struct {
	Programs ProgramRepo
	Firings  FiringRepo
	Log      LogRepo
	Settings SettingsRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Programs: NewProgramSQLite(db),
		Firings:  NewFiringSQLite(db),
		Log:      NewLogSQLite(db),
		Settings: NewSettingsSQLite(db),
	}
}

// unixSeconds stores times as epoch seconds, the unit every query in this package uses.
func unixSeconds(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

package service

import (
	"context"
	"time"

	"kiln_control/internal/models"
	"kiln_control/internal/repository"
)

// Recorder is what the engine needs from storage.
type Recorder interface {
	LoadProgram(ctx context.Context, programID, fromStep int) ([]models.Instruction, error)
	CreateFiring(ctx context.Context, programID *int) (int, error)
	RecordSegmentCompletion(ctx context.Context, step models.FiringStep)
	FinishFiring(ctx context.Context, firingID int, end time.Time)
	RecordSample(ctx context.Context, st models.LiveStatus)
}

// Observer receives daemon events for metrics.
type Observer interface {
	SegmentStarted(t models.SegmentType)
	MessageReceived(kind models.MessageKind)
	MessageDropped()
	SampleRecorded()
	StorageFailed(op string)
}

type nopObserver struct{}

func (nopObserver) SegmentStarted(models.SegmentType)  {}
func (nopObserver) MessageReceived(models.MessageKind) {}
func (nopObserver) MessageDropped()                    {}
func (nopObserver) SampleRecorded()                    {}
func (nopObserver) StorageFailed(string)               {}

// Programs exposes the stored firing programs.
type Programs interface {
	List(ctx context.Context) ([]models.ProgramInfo, error)
	Get(ctx context.Context, programID int) (models.Program, error)
	Import(ctx context.Context, p models.Program) (int, error)
	Delete(ctx context.Context, programID int) error
}

// History exposes the temperature log and firing records.
type History interface {
	Range(ctx context.Context, f RangeFilter) (Trace, error)
	Firing(ctx context.Context, firingID int) (FiringDetail, error)
}

// Monitoring exposes the live status published by the daemon.
type Monitoring interface {
	GetStatus(ctx context.Context) (models.LiveStatus, error)
}

// Control forwards control messages to the daemon.
type Control interface {
	Send(ctx context.Context, m models.ControlMessage) error
}

// Service aggregates the read side and the command forwarder used by kilnweb and kilnctl.
// The engine itself lives only in kilnd.
type Service struct {
	Programs
	History
	Monitoring
	Control
}

func NewService(repos *repository.Repository, statusPath, socketPath string) *Service {
	return &Service{
		Programs:   NewProgramService(repos.Programs),
		History:    NewHistoryService(repos.Log, repos.Firings),
		Monitoring: NewMonitoringService(statusPath),
		Control:    NewControlService(socketPath),
	}
}

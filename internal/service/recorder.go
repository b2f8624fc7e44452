package service

import (
	"context"
	"time"

	"kiln_control/internal/logger"
	"kiln_control/internal/models"
	"kiln_control/internal/repository"
)

// Default sample intervals, in seconds of elapsed firing time.
const (
	DefaultFiringLogInterval = 5
	DefaultIdleLogInterval   = 60
)

// RecorderService turns engine events into storage writes. Write failures are
// logged and counted but never stop the control loop.
type RecorderService struct {
	programs repository.ProgramRepo
	firings  repository.FiringRepo
	samples  repository.LogRepo
	log      *logger.Logger
	obs      Observer
	now      func() time.Time

	firingInterval int
	idleInterval   int
	lastFiringTick int
	lastIdleTick   int
}

func NewRecorderService(repos *repository.Repository, log *logger.Logger, obs Observer) *RecorderService {
	if obs == nil {
		obs = nopObserver{}
	}
	return &RecorderService{
		programs:       repos.Programs,
		firings:        repos.Firings,
		samples:        repos.Log,
		log:            log,
		obs:            obs,
		now:            time.Now,
		firingInterval: DefaultFiringLogInterval,
		idleInterval:   DefaultIdleLogInterval,
		lastFiringTick: -1,
		lastIdleTick:   -1,
	}
}

// SetIntervals changes the sample rates. Non-positive values fall back to one second.
func (r *RecorderService) SetIntervals(firing, idle int) {
	r.firingInterval = max(firing, 1)
	r.idleInterval = max(idle, 1)
}

func (r *RecorderService) LoadProgram(ctx context.Context, programID, fromStep int) ([]models.Instruction, error) {
	return r.programs.Steps(ctx, programID, fromStep)
}

func (r *RecorderService) CreateFiring(ctx context.Context, programID *int) (int, error) {
	id, err := r.firings.Create(ctx, programID, r.now())
	if err != nil {
		r.obs.StorageFailed("create_firing")
		return 0, err
	}
	return id, nil
}

func (r *RecorderService) RecordSegmentCompletion(ctx context.Context, step models.FiringStep) {
	if step.FiringID == 0 || step.StepID == 0 {
		return
	}
	if err := r.firings.AppendStep(ctx, step); err != nil {
		r.obs.StorageFailed("append_step")
		r.log.Errorw("record_segment_failed", "firing_id", step.FiringID, "step", step.StepID, "err", err)
	}
}

func (r *RecorderService) FinishFiring(ctx context.Context, firingID int, end time.Time) {
	if err := r.firings.Finish(ctx, firingID, end); err != nil {
		r.obs.StorageFailed("finish_firing")
		r.log.Errorw("finish_firing_failed", "firing_id", firingID, "err", err)
	}
}

// RecordSample writes at most one Log row per interval window. While firing
// the window is measured in total firing time, while idle in segment time.
// Switching mode forgets the other mode's last window.
func (r *RecorderService) RecordSample(ctx context.Context, st models.LiveStatus) {
	if st.Firing() {
		tick := int(st.TotalElapsed()) / r.firingInterval
		r.lastIdleTick = -1
		if tick == r.lastFiringTick {
			return
		}
		r.lastFiringTick = tick
	} else {
		tick := int(st.SegmentElapsed) / r.idleInterval
		r.lastFiringTick = -1
		if tick == r.lastIdleTick {
			return
		}
		r.lastIdleTick = tick
	}

	err := r.samples.Append(ctx, models.LogSample{
		Time:           r.now(),
		FiringID:       int(st.FiringID),
		StepID:         int(st.StepID),
		PV:             int(st.PV),
		TotalElapsed:   int(st.TotalElapsed()),
		SegmentElapsed: int(st.SegmentElapsed),
	})
	if err != nil {
		r.obs.StorageFailed("append_sample")
		r.log.Errorw("record_sample_failed", "err", err)
		return
	}
	r.obs.SampleRecorded()
}

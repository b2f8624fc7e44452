package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kiln_control/internal/device"
	"kiln_control/internal/logger"
	"kiln_control/internal/models"
)

// DefaultPVMargin is the band, in controller units, around a target that counts as reached.
const DefaultPVMargin = 5

// ErrInvalidProgram is returned by Start when a program cannot be unrolled into segments.
var ErrInvalidProgram = errors.New("invalid program")

// Commander accepts raw controller commands. *device.Channel implements it.
type Commander interface {
	Enqueue(cmd string)
}

// Engine is the segment state machine. It owns the current segment, the queue
// of pending segments and the live status fields. It is not safe for
// concurrent use: only the control loop calls it.
type Engine struct {
	cmd Commander
	rec Recorder
	obs Observer
	log *logger.Logger
	now func() time.Time

	margin int

	current models.Segment
	queue   []models.Segment

	sv, pv         int
	firingID       int
	stepID         int
	programElapsed int
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides time.Now.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithEngineObserver attaches metrics hooks.
func WithEngineObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

// NewEngine returns an idle engine. PV reads -1 until the controller first answers.
func NewEngine(cmd Commander, rec Recorder, log *logger.Logger, margin int, opts ...EngineOption) *Engine {
	e := &Engine{
		cmd:    cmd,
		rec:    rec,
		obs:    nopObserver{},
		log:    log,
		now:    time.Now,
		margin: margin,
		pv:     -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.current = models.NewSegment()
	e.current.StartTime = e.now()
	return e
}

// SetMargin replaces the target band. It drives both "target reached" and
// "ramp setpoint moved enough to re-command".
func (e *Engine) SetMargin(m int) {
	if m < 0 {
		m = 0
	}
	e.margin = m
}

// Margin returns the current target band.
func (e *Engine) Margin() int { return e.margin }

// Current returns a copy of the active segment.
func (e *Engine) Current() models.Segment { return e.current }

// Queue returns a copy of the pending segments.
func (e *Engine) Queue() []models.Segment {
	return append([]models.Segment(nil), e.queue...)
}

// Status returns the live status as of now.
func (e *Engine) Status() models.LiveStatus {
	st := models.LiveStatus{
		SV:             int32(e.sv),
		PV:             int32(e.pv),
		SegmentElapsed: int32(e.segmentElapsed(e.now())),
		ProgramElapsed: int32(e.programElapsed),
		SegmentType:    e.current.Type,
		FiringID:       int32(e.firingID),
		StepID:         int32(e.stepID),
	}
	if e.current.Type == models.SegmentHold || e.current.Type == models.SegmentRamp {
		st.SegmentPlanned = int32(e.current.Duration)
	}
	return st
}

// Evaluate feeds a fresh process value into the state machine.
func (e *Engine) Evaluate(ctx context.Context, pv int) {
	e.pv = pv
	seg := e.current

	switch seg.Type {
	case models.SegmentAFAP:
		if e.reached(seg.TargetSV) {
			e.advance(ctx)
		}
	case models.SegmentRamp:
		if e.reached(seg.TargetSV) {
			e.advance(ctx)
			return
		}
		sv := rampSetpoint(seg, e.segmentElapsed(e.now()))
		if d := abs(sv - e.sv); d != 0 && d >= e.margin {
			e.setTemperature(sv, false)
		}
	case models.SegmentHold:
		if e.segmentElapsed(e.now()) >= seg.Duration {
			e.advance(ctx)
		}
	case models.SegmentPause:
		// ends only on RESUME, CANCEL, START or SET
	}
}

// Start runs programID from fromStep. Any running firing is cancelled first.
// A program that cannot be unrolled leaves the engine idle.
func (e *Engine) Start(ctx context.Context, programID, fromStep int) error {
	e.Cancel(ctx)

	steps, err := e.rec.LoadProgram(ctx, programID, fromStep)
	if err != nil {
		return fmt.Errorf("load program %d: %w", programID, err)
	}
	segs, err := unroll(steps, max(e.pv, 0))
	if err != nil {
		return fmt.Errorf("program %d: %w", programID, err)
	}

	e.queue = segs
	e.openFiring(ctx, &programID)
	e.log.Infow("firing_started", "program_id", programID, "from_step", fromStep, "segments", len(segs), "firing_id", e.firingID)
	e.advance(ctx)
	return nil
}

// Set drives to temperature, holds there until RESUME, then returns to 0.
func (e *Engine) Set(ctx context.Context, temperature int) {
	e.Cancel(ctx)

	e.queue = []models.Segment{
		{Type: models.SegmentAFAP, TargetSV: temperature},
		{Type: models.SegmentPause},
		{Type: models.SegmentAFAP, TargetSV: 0},
	}
	e.openFiring(ctx, nil)
	e.log.Infow("firing_started", "set", temperature, "firing_id", e.firingID)
	e.advance(ctx)
}

// Pause holds at the current PV. The interrupted segment goes back on the
// queue, time-adjusted, so the next Resume continues it.
func (e *Engine) Pause(ctx context.Context) {
	if e.current.Type == models.SegmentPause {
		return
	}

	rest := e.current
	switch rest.Type {
	case models.SegmentRamp:
		rest.Duration = pausedRampDuration(rest, e.sv)
	case models.SegmentHold:
		rest.Duration = max(rest.Duration-e.segmentElapsed(e.now()), 0)
	}

	pause := models.Segment{Type: models.SegmentPause, TargetSV: max(e.pv, 0)}
	e.queue = append([]models.Segment{pause, rest}, e.queue...)
	e.log.Infow("firing_paused", "interrupted", rest.Type, "remaining", rest.Duration, "pv", e.pv)
	e.advance(ctx)
}

// Resume ends the current segment. After a Pause that continues the interrupted
// segment; with nothing queued the engine goes idle.
func (e *Engine) Resume(ctx context.Context) {
	e.log.Infow("firing_resumed", "from", e.current.Type)
	e.advance(ctx)
}

// Cancel stops everything and safes the device with a persistent setpoint of 0.
// Calling it while idle is harmless.
func (e *Engine) Cancel(ctx context.Context) {
	now := e.now()
	e.recordCompletion(ctx, now)
	e.reset(ctx, now)
}

// advance completes the current segment and activates the next queued one.
func (e *Engine) advance(ctx context.Context) {
	now := e.now()
	e.recordCompletion(ctx, now)
	e.programElapsed += e.segmentElapsed(now)

	if len(e.queue) == 0 {
		if e.firingID != 0 {
			e.log.Infow("firing_complete", "firing_id", e.firingID, "steps", e.stepID)
		}
		e.reset(ctx, now)
		return
	}

	next := e.queue[0]
	e.queue = e.queue[1:]
	next.StartTime = now
	next.StartTemp = e.pv
	e.current = next
	if e.firingID != 0 {
		e.stepID++
	}
	e.obs.SegmentStarted(next.Type)
	e.log.Infow("segment_started", "type", next.Type, "target", next.TargetSV, "duration", next.Duration, "step", e.stepID)

	if next.Type == models.SegmentAFAP || (next.Type == models.SegmentPause && next.TargetSV != 0) {
		e.setTemperature(next.TargetSV, false)
	}
}

// reset returns to idle Pause/0 without recording the outgoing segment.
func (e *Engine) reset(ctx context.Context, now time.Time) {
	if e.firingID != 0 {
		e.rec.FinishFiring(ctx, e.firingID, now)
	}
	e.queue = nil
	e.firingID = 0
	e.stepID = 0
	e.programElapsed = 0

	e.current = models.NewSegment()
	e.current.StartTime = now
	e.current.StartTemp = e.pv
	e.setTemperature(0, true)
}

func (e *Engine) recordCompletion(ctx context.Context, now time.Time) {
	if e.firingID == 0 || e.stepID == 0 {
		return
	}
	e.rec.RecordSegmentCompletion(ctx, models.FiringStep{
		FiringID:  e.firingID,
		StepID:    e.stepID,
		Type:      e.current.Type,
		TypeLabel: e.current.Type.String(),
		PV:        e.pv,
		Elapsed:   e.segmentElapsed(now),
		StartTime: e.current.StartTime,
		EndTime:   now,
	})
}

func (e *Engine) openFiring(ctx context.Context, programID *int) {
	id, err := e.rec.CreateFiring(ctx, programID)
	if err != nil {
		// keep driving the kiln; the run is just not attributed
		e.log.Errorw("create_firing_failed", "err", err)
		return
	}
	e.firingID = id
}

func (e *Engine) setTemperature(v int, persistent bool) {
	e.cmd.Enqueue(device.SetpointCommand(v, persistent))
	e.sv = v
}

func (e *Engine) reached(target int) bool {
	return abs(e.pv-target) <= e.margin
}

func (e *Engine) segmentElapsed(now time.Time) int {
	if e.current.StartTime.IsZero() {
		return 0
	}
	d := int(now.Sub(e.current.StartTime) / time.Second)
	return max(d, 0)
}

// rampSetpoint interpolates linearly from the segment's start temperature to its target.
func rampSetpoint(seg models.Segment, elapsed int) int {
	if seg.Duration <= 0 || elapsed >= seg.Duration {
		return seg.TargetSV
	}
	return seg.StartTemp + (seg.TargetSV-seg.StartTemp)*elapsed/seg.Duration
}

// pausedRampDuration scales a ramp's duration by how far sv has moved from the
// ramp's start toward its target. The fraction is clamped to [0,1]; an sv that
// has not moved past the start (the last command predates the ramp, or PV
// overshot the previous target) keeps the full duration.
func pausedRampDuration(seg models.Segment, sv int) int {
	span := seg.TargetSV - seg.StartTemp
	if span == 0 || seg.Duration <= 0 {
		return 0
	}
	done := sv - seg.StartTemp
	if done == 0 || (done < 0) != (span < 0) || abs(done) >= abs(span) {
		return seg.Duration
	}
	return max(seg.Duration*done/span, 1)
}

// unroll converts stored instructions into segments. startTemp is where the
// first ramp starts from.
func unroll(steps []models.Instruction, startTemp int) ([]models.Segment, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidProgram)
	}
	segs := make([]models.Segment, 0, len(steps))
	prev := startTemp
	for _, in := range steps {
		t, err := models.ParseInstruction(in.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrInvalidProgram, in.Step, err)
		}
		seg := models.Segment{Type: t, TargetSV: in.Temperature}
		switch t {
		case models.SegmentHold:
			seg.Duration = max(in.Param, 0)
		case models.SegmentRamp:
			if in.Param > 0 {
				seg.Duration = 3600 * abs(in.Temperature-prev) / in.Param
			}
		case models.SegmentAFAP, models.SegmentPause:
		}
		segs = append(segs, seg)
		prev = seg.TargetSV
	}
	return segs, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

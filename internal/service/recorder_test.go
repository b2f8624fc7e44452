package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kiln_control/internal/logger"
	"kiln_control/internal/models"
	"kiln_control/internal/repository"
)

type fakeLogRepo struct {
	appendErr error
	rows      []models.LogSample
	rangeFrom time.Time
}

func (f *fakeLogRepo) Append(ctx context.Context, s models.LogSample) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, s)
	return nil
}

func (f *fakeLogRepo) Range(ctx context.Context, from time.Time) ([]models.LogSample, error) {
	f.rangeFrom = from
	return f.rows, nil
}

type fakeFiringRepo struct {
	createErr error
	stepErr   error
	created   []*int
	steps     []models.FiringStep
	finished  map[int]time.Time
	firing    models.Firing
	getErr    error
	bounds    []time.Time
	since     time.Time
}

func (f *fakeFiringRepo) Create(ctx context.Context, programID *int, start time.Time) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, programID)
	return len(f.created), nil
}

func (f *fakeFiringRepo) Finish(ctx context.Context, firingID int, end time.Time) error {
	if f.finished == nil {
		f.finished = map[int]time.Time{}
	}
	f.finished[firingID] = end
	return nil
}

func (f *fakeFiringRepo) AppendStep(ctx context.Context, s models.FiringStep) error {
	if f.stepErr != nil {
		return f.stepErr
	}
	f.steps = append(f.steps, s)
	return nil
}

func (f *fakeFiringRepo) Get(ctx context.Context, firingID int) (models.Firing, error) {
	return f.firing, f.getErr
}

func (f *fakeFiringRepo) Steps(ctx context.Context, firingID int) ([]models.FiringStep, error) {
	return f.steps, nil
}

func (f *fakeFiringRepo) Boundaries(ctx context.Context, since time.Time) ([]time.Time, error) {
	f.since = since
	return f.bounds, nil
}

type countingObserver struct {
	nopObserver
	storageErrors map[string]int
	samples       int
}

func (o *countingObserver) StorageFailed(op string) {
	if o.storageErrors == nil {
		o.storageErrors = map[string]int{}
	}
	o.storageErrors[op]++
}

func (o *countingObserver) SampleRecorded() { o.samples++ }

func newTestRecorder(logRepo *fakeLogRepo, firingRepo *fakeFiringRepo, obs Observer) *RecorderService {
	return NewRecorderService(&repository.Repository{Log: logRepo, Firings: firingRepo}, logger.Nop(), obs)
}

func TestRecorder_IdleSamplesDeduplicatedPerWindow(t *testing.T) {
	logRepo := &fakeLogRepo{}
	r := newTestRecorder(logRepo, &fakeFiringRepo{}, nil)
	ctx := context.Background()

	r.RecordSample(ctx, models.LiveStatus{PV: 70, SegmentElapsed: 10})
	r.RecordSample(ctx, models.LiveStatus{PV: 71, SegmentElapsed: 30})
	if len(logRepo.rows) != 1 {
		t.Fatalf("expected 1 row within one idle window, got %d", len(logRepo.rows))
	}

	r.RecordSample(ctx, models.LiveStatus{PV: 72, SegmentElapsed: 60})
	if len(logRepo.rows) != 2 {
		t.Fatalf("expected a second row in the next window, got %d", len(logRepo.rows))
	}
}

func TestRecorder_FiringResetsIdleCounter(t *testing.T) {
	logRepo := &fakeLogRepo{}
	r := newTestRecorder(logRepo, &fakeFiringRepo{}, nil)
	ctx := context.Background()

	r.RecordSample(ctx, models.LiveStatus{SegmentElapsed: 5})

	r.RecordSample(ctx, models.LiveStatus{FiringID: 1, StepID: 1, SegmentElapsed: 0})
	r.RecordSample(ctx, models.LiveStatus{FiringID: 1, StepID: 1, SegmentElapsed: 3})
	r.RecordSample(ctx, models.LiveStatus{FiringID: 1, StepID: 2, ProgramElapsed: 4, SegmentElapsed: 1})
	if len(logRepo.rows) != 3 {
		t.Fatalf("expected idle row plus two firing rows, got %d", len(logRepo.rows))
	}
	last := logRepo.rows[2]
	if last.FiringID != 1 || last.StepID != 2 || last.TotalElapsed != 5 || last.SegmentElapsed != 1 {
		t.Fatalf("unexpected row: %+v", last)
	}

	// same idle window index as the first sample, but a firing happened in between
	r.RecordSample(ctx, models.LiveStatus{SegmentElapsed: 20})
	if len(logRepo.rows) != 4 {
		t.Fatalf("expected idle counter reset after firing, got %d rows", len(logRepo.rows))
	}
}

func TestRecorder_SetIntervals(t *testing.T) {
	logRepo := &fakeLogRepo{}
	r := newTestRecorder(logRepo, &fakeFiringRepo{}, nil)
	r.SetIntervals(0, 10)
	ctx := context.Background()

	for i := int32(0); i < 3; i++ {
		r.RecordSample(ctx, models.LiveStatus{FiringID: 2, StepID: 1, SegmentElapsed: i})
	}
	if len(logRepo.rows) != 3 {
		t.Fatalf("interval 0 should fall back to one second, got %d rows", len(logRepo.rows))
	}
}

func TestRecorder_StorageErrorsAreCountedNotFatal(t *testing.T) {
	obs := &countingObserver{}
	logRepo := &fakeLogRepo{appendErr: errors.New("database is locked")}
	firingRepo := &fakeFiringRepo{stepErr: errors.New("database is locked")}
	r := newTestRecorder(logRepo, firingRepo, obs)
	ctx := context.Background()

	r.RecordSample(ctx, models.LiveStatus{SegmentElapsed: 1})
	r.RecordSegmentCompletion(ctx, models.FiringStep{FiringID: 1, StepID: 1})

	if obs.storageErrors["append_sample"] != 1 || obs.storageErrors["append_step"] != 1 {
		t.Fatalf("unexpected storage error counts: %v", obs.storageErrors)
	}
	if obs.samples != 0 {
		t.Fatalf("failed sample counted as recorded")
	}
}

func TestRecorder_SkipsInitialSegment(t *testing.T) {
	firingRepo := &fakeFiringRepo{}
	r := newTestRecorder(&fakeLogRepo{}, firingRepo, nil)
	ctx := context.Background()

	r.RecordSegmentCompletion(ctx, models.FiringStep{FiringID: 1, StepID: 0})
	r.RecordSegmentCompletion(ctx, models.FiringStep{FiringID: 0, StepID: 3})
	if len(firingRepo.steps) != 0 {
		t.Fatalf("records written for ids with a zero: %+v", firingRepo.steps)
	}
}

func TestRecorder_CreateFiringPropagatesError(t *testing.T) {
	obs := &countingObserver{}
	r := newTestRecorder(&fakeLogRepo{}, &fakeFiringRepo{createErr: errors.New("boom")}, obs)

	id := 4
	if _, err := r.CreateFiring(context.Background(), &id); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if obs.storageErrors["create_firing"] != 1 {
		t.Fatalf("create failure not counted: %v", obs.storageErrors)
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kiln_control/internal/models"
)

func TestHistoryService_Range(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	logRepo := &fakeLogRepo{rows: []models.LogSample{{PV: 100}, {PV: 120}}}
	firingRepo := &fakeFiringRepo{bounds: []time.Time{now.Add(-time.Minute)}}
	s := NewHistoryService(logRepo, firingRepo)

	tr, err := s.Range(context.Background(), RangeFilter{Seconds: 3600, Now: now})
	if err != nil {
		t.Fatalf("Range error: %v", err)
	}
	wantFrom := now.Add(-time.Hour)
	if !logRepo.rangeFrom.Equal(wantFrom) || !firingRepo.since.Equal(wantFrom) {
		t.Fatalf("window start = %v / %v, want %v", logRepo.rangeFrom, firingRepo.since, wantFrom)
	}
	if len(tr.Samples) != 2 || len(tr.Boundaries) != 1 {
		t.Fatalf("unexpected trace: %+v", tr)
	}
}

func TestHistoryService_RangeValidation(t *testing.T) {
	s := NewHistoryService(&fakeLogRepo{}, &fakeFiringRepo{})
	for _, secs := range []int{0, -5, MaxRangeSeconds + 1} {
		if _, err := s.Range(context.Background(), RangeFilter{Seconds: secs}); !IsInvalidRange(err) {
			t.Fatalf("seconds=%d: expected invalid range, got %v", secs, err)
		}
	}
}

func TestHistoryService_Firing(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	firingRepo := &fakeFiringRepo{
		firing: models.Firing{ID: 9, StartTime: start},
		steps:  []models.FiringStep{{FiringID: 9, StepID: 1, TypeLabel: "AFAP"}},
	}
	s := NewHistoryService(&fakeLogRepo{}, firingRepo)

	d, err := s.Firing(context.Background(), 9)
	if err != nil {
		t.Fatalf("Firing error: %v", err)
	}
	if d.ID != 9 || len(d.Steps) != 1 {
		t.Fatalf("unexpected detail: %+v", d)
	}

	firingRepo.getErr = errors.New("not found")
	if _, err := s.Firing(context.Background(), 10); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

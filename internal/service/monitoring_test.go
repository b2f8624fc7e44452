package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kiln_control/internal/ipc"
	"kiln_control/internal/models"
)

func TestMonitoringService_NoDaemon(t *testing.T) {
	s := NewMonitoringService(filepath.Join(t.TempDir(), "status"))
	defer s.Close()

	_, err := s.GetStatus(context.Background())
	if !errors.Is(err, ipc.ErrStatusUnavailable) {
		t.Fatalf("expected ErrStatusUnavailable, got %v", err)
	}
}

func TestMonitoringService_ReadsAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	w, err := ipc.CreateStatusBlock(path)
	if err != nil {
		t.Fatalf("CreateStatusBlock error: %v", err)
	}
	w.Publish(models.LiveStatus{SV: 500, PV: 480, SegmentType: models.SegmentAFAP, FiringID: 1, StepID: 1})

	s := NewMonitoringService(path)
	defer s.Close()

	st, err := s.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if st.PV != 480 || !st.Firing() {
		t.Fatalf("unexpected status: %+v", st)
	}

	// daemon restart: the old block is invalidated and a new one created
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	w2, err := ipc.CreateStatusBlock(path)
	if err != nil {
		t.Fatalf("CreateStatusBlock error: %v", err)
	}
	defer w2.Close()
	w2.Publish(models.LiveStatus{PV: 20, SegmentType: models.SegmentPause})

	st, err = s.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus after restart error: %v", err)
	}
	if st.PV != 20 || st.Firing() {
		t.Fatalf("expected the new block's status, got %+v", st)
	}
}

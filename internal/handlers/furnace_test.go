package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"kiln_control/internal/ipc"
	"kiln_control/internal/models"
	"kiln_control/internal/service"
)

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing %s header", requestIDHeader)
	}
}

func TestGetStatus(t *testing.T) {
	mon := &mockMonitoring{status: models.LiveStatus{
		SV: 1800, PV: 1500, SegmentElapsed: 60, ProgramElapsed: 600,
		SegmentType: models.SegmentAFAP, FiringID: 4, StepID: 2,
	}}
	r := newTestRouter(&service.Service{Monitoring: mon})

	w := doJSON(t, r, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["segment_type"] != "AFAP" || body["total_elapsed_s"] != float64(660) || body["firing"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetStatus_DaemonDown(t *testing.T) {
	mon := &mockMonitoring{err: errors.Join(ipc.ErrStatusUnavailable, errors.New("no such file"))}
	r := newTestRouter(&service.Service{Monitoring: mon})

	w := doJSON(t, r, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	mon.err = errors.New("boom")
	w = doJSON(t, r, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestSendCommand(t *testing.T) {
	ctl := &mockControl{}
	r := newTestRouter(&service.Service{Control: ctl})

	w := doJSON(t, r, http.MethodPost, "/api/v1/command", map[string]any{"cmd": "start", "p1": 7, "p2": 1})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if len(ctl.sent) != 1 {
		t.Fatalf("expected one message, got %v", ctl.sent)
	}
	if got := ctl.sent[0]; got.Kind != models.MessageStart || got.Param1 != 7 || got.Param2 != 1 {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestSendCommand_BadRequests(t *testing.T) {
	ctl := &mockControl{}
	r := newTestRouter(&service.Service{Control: ctl})

	cases := []map[string]any{
		{},
		{"cmd": "explode"},
		{"cmd": "set", "p1": -10},
		{"cmd": "start"},
	}
	for _, body := range cases {
		w := doJSON(t, r, http.MethodPost, "/api/v1/command", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d", body, w.Code)
		}
	}
	if len(ctl.sent) != 0 {
		t.Fatalf("invalid commands were forwarded: %v", ctl.sent)
	}
}

func TestSendCommand_DaemonDown(t *testing.T) {
	ctl := &mockControl{err: errors.New("connect: no such file or directory")}
	r := newTestRouter(&service.Service{Control: ctl})

	w := doJSON(t, r, http.MethodPost, "/api/v1/command", map[string]any{"cmd": "cancel"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

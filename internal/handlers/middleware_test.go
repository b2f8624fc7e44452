package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"kiln_control/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(&service.Service{}, nil)
	r.GET("/id", h.requestIDMiddleware, func(c *gin.Context) {
		c.String(http.StatusOK, requestID(c))
	})

	// generated when missing
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
	if _, err := uuid.Parse(w.Body.String()); err != nil {
		t.Fatalf("expected a generated uuid, got %q", w.Body.String())
	}
	if w.Header().Get(requestIDHeader) != w.Body.String() {
		t.Fatalf("header and context id differ")
	}

	// kept when the caller sends a valid one
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(requestIDHeader, id)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != id {
		t.Fatalf("got %q, want caller id %q", w.Body.String(), id)
	}

	// replaced when it is garbage
	req = httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(requestIDHeader, "not-an-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() == "not-an-id" {
		t.Fatalf("invalid caller id was kept")
	}
}

func TestCommandRateLimit(t *testing.T) {
	ctl := &mockControl{}
	h := NewHandler(&service.Service{Control: ctl}, nil)
	h.SetCommandRate(0.001, 2)
	gin.SetMode(gin.TestMode)
	r := h.InitRoutes()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/v1/command", map[string]any{"cmd": "pause"})
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes: %v", codes)
	}
	if len(ctl.sent) != 2 {
		t.Fatalf("expected 2 forwarded commands, got %d", len(ctl.sent))
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kiln_control/internal/models"
	"kiln_control/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockMonitoring struct {
	status models.LiveStatus
	err    error
}

func (m *mockMonitoring) GetStatus(ctx context.Context) (models.LiveStatus, error) {
	return m.status, m.err
}

type mockControl struct {
	err  error
	sent []models.ControlMessage
}

func (m *mockControl) Send(ctx context.Context, msg models.ControlMessage) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type mockPrograms struct {
	list      []models.ProgramInfo
	program   models.Program
	importID  int
	err       error
	imported  []models.Program
	deletedID int
}

func (m *mockPrograms) List(ctx context.Context) ([]models.ProgramInfo, error) {
	return m.list, m.err
}

func (m *mockPrograms) Get(ctx context.Context, programID int) (models.Program, error) {
	return m.program, m.err
}

func (m *mockPrograms) Import(ctx context.Context, p models.Program) (int, error) {
	m.imported = append(m.imported, p)
	return m.importID, m.err
}

func (m *mockPrograms) Delete(ctx context.Context, programID int) error {
	m.deletedID = programID
	return m.err
}

type mockHistory struct {
	trace      service.Trace
	detail     service.FiringDetail
	err        error
	lastFilter service.RangeFilter
	lastFiring int
}

func (m *mockHistory) Range(ctx context.Context, f service.RangeFilter) (service.Trace, error) {
	m.lastFilter = f
	return m.trace, m.err
}

func (m *mockHistory) Firing(ctx context.Context, firingID int) (service.FiringDetail, error) {
	m.lastFiring = firingID
	return m.detail, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

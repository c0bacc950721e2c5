package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldland/gpuwatch/internal/domain"
	"github.com/worldland/gpuwatch/internal/monitor"
)

// MockStatusSource implements StatusSource for testing
type MockStatusSource struct {
	status monitor.Status
}

func (m *MockStatusSource) Status() monitor.Status {
	return m.status
}

func newTestRouter() http.Handler {
	source := &MockStatusSource{status: monitor.Status{
		SessionID:        "session-123",
		Host:             "gpu01",
		State:            monitor.StatePolling,
		RequiredFreeGPUs: 2,
		ThresholdMB:      1000,
		Checks:           7,
		FreeGPUs:         []int{1},
		LastSnapshot: []domain.GPUStatus{
			{ID: 0, MemoryUsedMB: 7000, MemoryTotalMB: 8000},
			{ID: 1, MemoryUsedMB: 100, MemoryTotalMB: 8000},
		},
	}}
	return NewStatusHandler(source).Router()
}

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	newTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleStatus_ReturnsMonitorState(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	newTestRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got monitor.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "session-123", got.SessionID)
	assert.Equal(t, monitor.StatePolling, got.State)
	assert.Equal(t, 7, got.Checks)
	assert.Equal(t, []int{1}, got.FreeGPUs)
	assert.Len(t, got.LastSnapshot, 2)
}

func TestHandleStatus_RejectsPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()

	newTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "METHOD_NOT_ALLOWED", resp.Code)
}

func TestUnknownPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/rentals", nil)
	rec := httptest.NewRecorder()

	newTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

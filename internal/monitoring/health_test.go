package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *HealthChecker) (*httptest.ResponseRecorder, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	return rec, status
}

func TestHealthyAfterRecentTick(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(true)
	h.RecordTick(100.5, "Initial")

	rec, status := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", status.Status)
	assert.InDelta(t, 100.5, status.LastPrice, 1e-9)
}

func TestDegradedWhenStale(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(true)
	// No tick ever recorded

	rec, status := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", status.Status)
}

func TestUnhealthyWinsOverDegraded(t *testing.T) {
	h := NewHealthChecker()
	// Disconnected, stale, and erroring all at once: one status, one code
	h.RecordError("order placement failed")

	rec, status := serveHealth(t, h)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Len(t, status.Errors, 1)
}

func TestErrorListKeepsLastTen(t *testing.T) {
	h := NewHealthChecker()
	for i := 0; i < 15; i++ {
		h.RecordError("boom")
	}

	_, status := serveHealth(t, h)
	assert.Len(t, status.Errors, 10)
}

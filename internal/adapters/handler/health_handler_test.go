package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IANDYI/glucose-diary/internal/adapters/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) handler.HealthResponse {
	t.Helper()
	var response handler.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHealthHandler_Health(t *testing.T) {
	healthHandler := handler.NewHealthHandler(stubPinger{}, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler.Health(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeHealth(t, w)
	assert.Equal(t, "ok", response.Status)
	assert.WithinDuration(t, time.Now(), response.Timestamp, time.Second)
}

func TestHealthHandler_Live(t *testing.T) {
	healthHandler := handler.NewHealthHandler(stubPinger{err: errors.New("down")}, nil)

	req := httptest.NewRequest("GET", "/health/live", nil)
	w := httptest.NewRecorder()

	healthHandler.Live(w, req)

	// liveness does not depend on storage
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decodeHealth(t, w).Status)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		pinger         handler.Pinger
		expectedStatus int
		expectedState  string
	}{
		{"store reachable", stubPinger{}, http.StatusOK, "ready"},
		{"store down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "not ready"},
		{"no store", nil, http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthHandler := handler.NewHealthHandler(tt.pinger, nil)

			req := httptest.NewRequest("GET", "/health/ready", nil)
			w := httptest.NewRecorder()

			healthHandler.Ready(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.expectedState, decodeHealth(t, w).Status)
		})
	}
}

func TestMetrics(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.Metrics(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

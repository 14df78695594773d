package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *HealthChecker, path string) (int, Response) {
	t.Helper()
	r := chi.NewRouter()
	h.Mount(r, "/health/live", "/health/ready")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestHandlers(t *testing.T) {
	h := New(WithFailureThreshold(1))
	h.AddLivenessCheck(NewCheckFunc("process", func(context.Context) error { return nil }))
	h.AddReadinessCheck(NewCheckFunc("storage", func(context.Context) error { return errors.New("disk full") }))
	h.AddReadinessCheck(indexReport{vectors: 3})

	code, live := serve(t, h, "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, live.Status)
	assert.Equal(t, "ok", live.Checks["process"].Status)
	assert.NotEmpty(t, live.Checks["process"].Latency)

	code, ready := serve(t, h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, ready.Status)
	assert.Equal(t, "unhealthy: [storage]", ready.Message)
	assert.Equal(t, CheckStatus{Status: "error", Error: "disk full", Failures: 1, Latency: ready.Checks["storage"].Latency}, ready.Checks["storage"])
	assert.Equal(t, "ok", ready.Checks["engine"].Status)
	assert.EqualValues(t, 3, ready.Checks["engine"].Details["conversation_vectors"])
}

func TestNewResponse_Empty(t *testing.T) {
	resp := NewResponse(&Status{Healthy: true}, nil)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.NotNil(t, resp.Checks)
	assert.Empty(t, resp.Message)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"healthy","checks":{}}`, string(raw))
}

package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// Response is the body of the liveness and readiness endpoints.
type Response struct {
	Status  string                 `json:"status"`
	Checks  map[string]CheckStatus `json:"checks"`
	Message string                 `json:"message,omitempty"`
}

// CheckStatus is one check inside a Response.
type CheckStatus struct {
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
	Failures int            `json:"failures,omitempty"`
	Latency  string         `json:"latency"`
	Details  map[string]any `json:"details,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// NewResponse renders a Status; err is the aggregate error from a check run.
func NewResponse(s *Status, err error) Response {
	resp := Response{Status: StatusHealthy, Checks: make(map[string]CheckStatus, len(s.Results))}
	if !s.Healthy {
		resp.Status = StatusUnhealthy
		if err != nil {
			resp.Message = err.Error()
		}
	}
	for _, r := range s.Results {
		cs := CheckStatus{Status: "ok", Failures: r.Failures, Latency: r.Latency.String(), Details: r.Details}
		if !r.Healthy {
			cs.Status = "error"
			cs.Error = r.Error
		}
		resp.Checks[r.Name] = cs
	}
	return resp
}

// LivenessHandler answers 200 while the process is alive, 503 otherwise.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.CheckLiveness(r.Context())
		h.write(w, s, err)
	}
}

// ReadinessHandler answers 200 while the engine can take turns, 503 otherwise.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.CheckReadiness(r.Context())
		h.write(w, s, err)
	}
}

// Mount registers the liveness and readiness handlers on r.
func (h *HealthChecker) Mount(r chi.Router, livenessPath, readinessPath string) {
	r.Get(livenessPath, h.LivenessHandler())
	r.Get(readinessPath, h.ReadinessHandler())
}

func (h *HealthChecker) write(w http.ResponseWriter, s *Status, err error) {
	code := http.StatusOK
	if !s.Healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(NewResponse(s, err)); err != nil {
		h.log.Error("Failed to encode health response", logger.ErrorField(err))
	}
}

package healthprobe

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// HealthChecker provides health and readiness checks.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool

	mu    sync.RWMutex
	check func() (bool, string)
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the application as started. Readiness additionally
// requires the check set by SetCheck, if any.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetCheck installs a readiness condition evaluated on every /ready request.
// It returns false and a reason while traffic should not be trusted, e.g.
// while no market session is streaming.
func (h *HealthChecker) SetCheck(check func() (bool, string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.check = check
}

// IsReady reports the current readiness and, when not ready, why.
func (h *HealthChecker) IsReady() (bool, string) {
	if !h.ready.Load() {
		return false, "application is starting"
	}

	h.mu.RLock()
	check := h.check
	h.mu.RUnlock()

	if check == nil {
		return true, ""
	}
	return check()
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ok, reason := h.IsReady()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Uptime:  time.Since(h.startTime).String(),
				Message: reason,
			})
			return
		}

		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

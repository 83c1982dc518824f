package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// ReadinessCheck reports why the process cannot serve yet; nil means ready
type ReadinessCheck func() error

// HealthHandler provides process health endpoints. These describe the
// simulator process itself, not the simulated servers.
type HealthHandler struct {
	startTime time.Time
	version   string
	ready     ReadinessCheck
}

// NewHealthHandler creates a new health handler. A nil check is always ready.
func NewHealthHandler(version string, ready ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		version:   version,
		ready:     ready,
	}
}

// ReadinessHandler checks if the application is ready to serve traffic
func (h *HealthHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
	}

	if h.ready != nil {
		if err := h.ready(); err != nil {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
			response["reason"] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// LivenessHandler checks if the application is alive
func (h *HealthHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

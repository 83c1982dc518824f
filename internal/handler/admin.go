package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/mir00r/lb-simulator/internal/domain"
	simerrors "github.com/mir00r/lb-simulator/internal/errors"
	"github.com/mir00r/lb-simulator/internal/eventlog"
	"github.com/mir00r/lb-simulator/internal/middleware"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// Simulation is the command and query surface the control API drives.
// *service.Simulator implements it.
type Simulation interface {
	Snapshot() domain.Snapshot
	LogSnapshot() []domain.LogEntry
	Subscribe() eventlog.Subscriber
	Unsubscribe(subscriber eventlog.Subscriber)
	AddServer() domain.Server
	RemoveServer() bool
	ToggleServerStatus(id int) error
	RestartServer(id int) error
	SetAlgorithm(name string) domain.Algorithm
	SetRequestRate(rate int) error
	StartSimulation()
	StopSimulation()
	ToggleSimulation() bool
	ClearLog()
	GetStats() map[string]interface{}
}

// AdminHandler provides the simulator control API
type AdminHandler struct {
	simulation Simulation
	logger     *logger.Logger
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(simulation Simulation, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		simulation: simulation,
		logger:     logger.WithField("component", "control_api"),
		startTime:  time.Now(),
	}
}

// AlgorithmRequest is the body of PUT /api/v1/algorithm
type AlgorithmRequest struct {
	Algorithm string `json:"algorithm"`
}

// RateRequest is the body of PUT /api/v1/rate
type RateRequest struct {
	Rate *int `json:"rate"`
}

// AlgorithmResponse reports the stored algorithm
type AlgorithmResponse struct {
	Algorithm domain.Algorithm   `json:"algorithm"`
	Known     bool               `json:"known"`
	Available []domain.Algorithm `json:"available"`
}

// SimulationStateResponse reports whether the dispatch loop runs
type SimulationStateResponse struct {
	Running bool `json:"running"`
}

// RemoveServerResponse reports the outcome of a removal
type RemoveServerResponse struct {
	Removed      bool `json:"removed"`
	TotalServers int  `json:"total_servers"`
}

// LogResponse carries event log entries, newest first
type LogResponse struct {
	Entries []domain.LogEntry `json:"entries"`
	Count   int               `json:"count"`
}

// StatsResponse carries internal statistics
type StatsResponse struct {
	Uptime     string                 `json:"uptime"`
	Simulation map[string]interface{} `json:"simulation"`
}

// ErrorResponse represents error responses
type ErrorResponse struct {
	Error     string              `json:"error"`
	Code      simerrors.ErrorCode `json:"code"`
	Timestamp time.Time           `json:"timestamp"`
	RequestID string              `json:"request_id,omitempty"`
}

// RegisterRoutes mounts the control API on router under /api/v1
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/snapshot", h.SnapshotHandler).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet)

	api.HandleFunc("/servers", h.ListServersHandler).Methods(http.MethodGet)
	api.HandleFunc("/servers", h.AddServerHandler).Methods(http.MethodPost)
	api.HandleFunc("/servers", h.RemoveServerHandler).Methods(http.MethodDelete)
	api.HandleFunc("/servers/{id}/toggle", h.ToggleServerHandler).Methods(http.MethodPost)
	api.HandleFunc("/servers/{id}/restart", h.RestartServerHandler).Methods(http.MethodPost)

	api.HandleFunc("/algorithm", h.SetAlgorithmHandler).Methods(http.MethodPut)
	api.HandleFunc("/rate", h.SetRateHandler).Methods(http.MethodPut)

	api.HandleFunc("/simulation/start", h.StartSimulationHandler).Methods(http.MethodPost)
	api.HandleFunc("/simulation/stop", h.StopSimulationHandler).Methods(http.MethodPost)
	api.HandleFunc("/simulation/toggle", h.ToggleSimulationHandler).Methods(http.MethodPost)

	api.HandleFunc("/log", h.LogHandler).Methods(http.MethodGet)
	api.HandleFunc("/log", h.ClearLogHandler).Methods(http.MethodDelete)
	api.HandleFunc("/log/stream", h.StreamLogHandler).Methods(http.MethodGet)
}

// SnapshotHandler handles GET /api/v1/snapshot
func (h *AdminHandler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.simulation.Snapshot())
}

// StatsHandler handles GET /api/v1/stats
func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:     time.Since(h.startTime).String(),
		Simulation: h.simulation.GetStats(),
	})
}

// ListServersHandler handles GET /api/v1/servers
func (h *AdminHandler) ListServersHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.simulation.Snapshot().Servers)
}

// AddServerHandler handles POST /api/v1/servers
func (h *AdminHandler) AddServerHandler(w http.ResponseWriter, r *http.Request) {
	server := h.simulation.AddServer()

	h.logger.WithFields(map[string]interface{}{
		"action":    "add_server",
		"server_id": server.ID,
	}).Info("Added server")

	h.writeJSON(w, http.StatusCreated, server)
}

// RemoveServerHandler handles DELETE /api/v1/servers. A refused removal of
// the last server is a normal outcome reported in the body and the event log.
func (h *AdminHandler) RemoveServerHandler(w http.ResponseWriter, r *http.Request) {
	removed := h.simulation.RemoveServer()

	h.logger.WithFields(map[string]interface{}{
		"action":  "remove_server",
		"removed": removed,
	}).Info("Server removal requested")

	h.writeJSON(w, http.StatusOK, RemoveServerResponse{
		Removed:      removed,
		TotalServers: len(h.simulation.Snapshot().Servers),
	})
}

// ToggleServerHandler handles POST /api/v1/servers/{id}/toggle
func (h *AdminHandler) ToggleServerHandler(w http.ResponseWriter, r *http.Request) {
	h.serverCommand(w, r, "toggle_server", h.simulation.ToggleServerStatus)
}

// RestartServerHandler handles POST /api/v1/servers/{id}/restart
func (h *AdminHandler) RestartServerHandler(w http.ResponseWriter, r *http.Request) {
	h.serverCommand(w, r, "restart_server", h.simulation.RestartServer)
}

func (h *AdminHandler) serverCommand(w http.ResponseWriter, r *http.Request, action string, command func(int) error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, simerrors.NewError(simerrors.ErrCodeInvalidRequest, "control_api", "server id must be an integer"))
		return
	}

	if err := command(id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"action":    action,
		"server_id": id,
	}).Info("Server command applied")

	for _, view := range h.simulation.Snapshot().Servers {
		if view.ID == id {
			h.writeJSON(w, http.StatusOK, view)
			return
		}
	}
	h.writeError(w, r, simerrors.NewServerNotFoundError(id))
}

// SetAlgorithmHandler handles PUT /api/v1/algorithm
func (h *AdminHandler) SetAlgorithmHandler(w http.ResponseWriter, r *http.Request) {
	var req AlgorithmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, simerrors.NewError(simerrors.ErrCodeInvalidRequest, "control_api", "invalid JSON body"))
		return
	}
	if req.Algorithm == "" {
		h.writeError(w, r, simerrors.NewInvalidAlgorithmError(req.Algorithm))
		return
	}

	algorithm := h.simulation.SetAlgorithm(req.Algorithm)
	h.writeJSON(w, http.StatusOK, AlgorithmResponse{
		Algorithm: algorithm,
		Known:     algorithm.IsKnown(),
		Available: domain.AvailableAlgorithms(),
	})
}

// SetRateHandler handles PUT /api/v1/rate
func (h *AdminHandler) SetRateHandler(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rate == nil {
		h.writeError(w, r, simerrors.NewError(simerrors.ErrCodeInvalidRequest, "control_api", `body must be {"rate": <integer>}`))
		return
	}

	if err := h.simulation.SetRequestRate(*req.Rate); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"rate": *req.Rate})
}

// StartSimulationHandler handles POST /api/v1/simulation/start
func (h *AdminHandler) StartSimulationHandler(w http.ResponseWriter, r *http.Request) {
	h.simulation.StartSimulation()
	h.writeJSON(w, http.StatusOK, SimulationStateResponse{Running: true})
}

// StopSimulationHandler handles POST /api/v1/simulation/stop
func (h *AdminHandler) StopSimulationHandler(w http.ResponseWriter, r *http.Request) {
	h.simulation.StopSimulation()
	h.writeJSON(w, http.StatusOK, SimulationStateResponse{Running: false})
}

// ToggleSimulationHandler handles POST /api/v1/simulation/toggle
func (h *AdminHandler) ToggleSimulationHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, SimulationStateResponse{Running: h.simulation.ToggleSimulation()})
}

// LogHandler handles GET /api/v1/log. An optional limit query parameter
// keeps only the newest entries.
func (h *AdminHandler) LogHandler(w http.ResponseWriter, r *http.Request) {
	entries := h.simulation.LogSnapshot()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, r, simerrors.NewError(simerrors.ErrCodeInvalidRequest, "control_api", "limit must be a non-negative integer"))
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}

	h.writeJSON(w, http.StatusOK, LogResponse{Entries: entries, Count: len(entries)})
}

// ClearLogHandler handles DELETE /api/v1/log
func (h *AdminHandler) ClearLogHandler(w http.ResponseWriter, r *http.Request) {
	h.simulation.ClearLog()
	entries := h.simulation.LogSnapshot()
	h.writeJSON(w, http.StatusOK, LogResponse{Entries: entries, Count: len(entries)})
}

// StreamLogHandler handles GET /api/v1/log/stream as server-sent events. Each
// new log entry is sent as a "log" event until the client disconnects; the
// server write timeout does not apply to the stream.
func (h *AdminHandler) StreamLogHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, simerrors.NewError(simerrors.ErrCodeInternalError, "control_api", "streaming not supported"))
		return
	}

	// the server write timeout would otherwise end the stream
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.WithError(err).Warn("Failed to clear write deadline for log stream")
	}

	subscriber := h.simulation.Subscribe()
	defer h.simulation.Unsubscribe(subscriber)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.WithField("request_id", middleware.RequestID(r.Context())).Debug("Log stream opened")

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("Log stream closed")
			return
		case entry, open := <-subscriber:
			if !open {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: log\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes a standardized error response
func (h *AdminHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	message := err.Error()
	var simErr *simerrors.SimulatorError
	if errors.As(err, &simErr) {
		message = simErr.Message
	}

	response := ErrorResponse{
		Error:     message,
		Code:      simerrors.GetErrorCode(err),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.RequestID(r.Context()),
	}
	status := simerrors.GetHTTPStatusCode(err)

	h.logger.WithFields(map[string]interface{}{
		"error":      message,
		"code":       response.Code,
		"status":     status,
		"request_id": response.RequestID,
	}).Warn("API error response")

	h.writeJSON(w, status, response)
}

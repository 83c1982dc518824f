package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mir00r/lb-simulator/internal/config"
	simerrors "github.com/mir00r/lb-simulator/internal/errors"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// maxConfigBody bounds the size of a posted YAML document
const maxConfigBody = 1 << 20

// ConfigReloader is implemented by *service.ConfigReloadService
type ConfigReloader interface {
	GetCurrentConfig() *config.Config
	ReloadFromAPI(data []byte) error
	CheckForChanges() (bool, error)
	GetReloadStats() map[string]interface{}
}

// ConfigHandler exposes the active configuration and runtime reloads
type ConfigHandler struct {
	reloader ConfigReloader
	logger   *logger.Logger
}

// NewConfigHandler creates a new configuration handler
func NewConfigHandler(reloader ConfigReloader, logger *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		reloader: reloader,
		logger:   logger.WithField("component", "config_api"),
	}
}

// RegisterRoutes mounts the config endpoints under /api/v1/config
func (ch *ConfigHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/config", ch.GetConfigHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/config/reload", ch.ReloadConfigHandler).Methods(http.MethodPost)
}

// GetConfigHandler handles GET /api/v1/config
func (ch *ConfigHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"config": ch.reloader.GetCurrentConfig(),
		"reload": ch.reloader.GetReloadStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ReloadConfigHandler handles POST /api/v1/config/reload. A YAML body is
// merged over the current configuration; an empty body re-reads the file.
func (ch *ConfigHandler) ReloadConfigHandler(w http.ResponseWriter, r *http.Request) {
	ch.logger.Info("Configuration reload requested")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody))
	if err != nil {
		ch.writeError(w, simerrors.NewErrorWithCause(simerrors.ErrCodeInvalidRequest, "config_api", "failed to read body", err))
		return
	}

	source := "api"
	if len(body) == 0 {
		source = "file"
		_, err = ch.reloader.CheckForChanges()
	} else {
		err = ch.reloader.ReloadFromAPI(body)
	}
	if err != nil {
		ch.writeError(w, simerrors.WrapError(err, simerrors.ErrCodeInvalidConfig, "config_api", "configuration rejected"))
		return
	}

	response := map[string]interface{}{
		"status": "success",
		"source": source,
		"config": ch.reloader.GetCurrentConfig(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (ch *ConfigHandler) writeError(w http.ResponseWriter, err *simerrors.SimulatorError) {
	ch.logger.WithError(err).Warn("Configuration reload rejected")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatusCode())
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     err.Message,
		"details":   err.Details,
		"code":      err.Code,
		"timestamp": err.Timestamp,
	})
}

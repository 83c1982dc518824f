package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mir00r/lb-simulator/pkg/logger"
)

// PrometheusHandler serves the simulation metrics registered on a gatherer
type PrometheusHandler struct {
	handler http.Handler
}

// NewPrometheusHandler creates a handler exposing gatherer in the Prometheus
// text format. Scrape errors are logged and the remaining metrics served.
func NewPrometheusHandler(gatherer prometheus.Gatherer, logger *logger.Logger) *PrometheusHandler {
	return &PrometheusHandler{
		handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorLog:      logger.WithField("component", "metrics").Entry(),
			ErrorHandling: promhttp.ContinueOnError,
		}),
	}
}

// MetricsHandler serves Prometheus-formatted metrics
func (h *PrometheusHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mir00r/lb-simulator/internal/domain"
)

// Dispatch failure reasons used as metric labels
const (
	reasonNoServer = "no_server"
	reasonCapacity = "capacity"
)

// Metrics exports the simulation state as Prometheus collectors
type Metrics struct {
	RequestsDispatched *prometheus.CounterVec
	DispatchFailures   *prometheus.CounterVec
	ProcessingTime     prometheus.Histogram
	ServerHealth       *prometheus.GaugeVec
	ServerConnections  *prometheus.GaugeVec
	BandTransitions    *prometheus.CounterVec
	HealthTicks        prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil registerer gets a private
// registry so the simulator can run without exposing metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestsDispatched: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lbsim_requests_dispatched_total",
			Help: "Total number of simulated requests admitted, by server.",
		}, []string{"server"}),

		DispatchFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lbsim_dispatch_failures_total",
			Help: "Dispatch attempts that admitted no request, by reason.",
		}, []string{"reason"}),

		ProcessingTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "lbsim_request_processing_seconds",
			Help:    "Scheduled processing time of simulated requests.",
			Buckets: []float64{.5, 1, 1.5, 2, 2.5, 3, 4, 5, 7.5, 10, 20},
		}),

		ServerHealth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lbsim_server_health",
			Help: "Current health of each simulated server (0-100).",
		}, []string{"server"}),

		ServerConnections: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lbsim_server_connections",
			Help: "In-flight simulated requests per server.",
		}, []string{"server"}),

		BandTransitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lbsim_health_band_transitions_total",
			Help: "Health band changes observed by the monitor, by new band.",
		}, []string{"band"}),

		HealthTicks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lbsim_health_ticks_total",
			Help: "Number of completed health monitor passes.",
		}),
	}
}

// ObserveServer refreshes the per-server gauges
func (m *Metrics) ObserveServer(server *domain.Server) {
	m.ServerHealth.WithLabelValues(server.Name).Set(server.Health)
	m.ServerConnections.WithLabelValues(server.Name).Set(float64(server.Connections))
}

// ObserveDispatch records one admitted request
func (m *Metrics) ObserveDispatch(server *domain.Server, processing time.Duration) {
	m.RequestsDispatched.WithLabelValues(server.Name).Inc()
	m.ProcessingTime.Observe(processing.Seconds())
	m.ObserveServer(server)
}

// ObserveFailure records a dispatch attempt that admitted nothing
func (m *Metrics) ObserveFailure(reason string) {
	m.DispatchFailures.WithLabelValues(reason).Inc()
}

// ObserveBandChange records a health band transition
func (m *Metrics) ObserveBandChange(band domain.HealthBand) {
	m.BandTransitions.WithLabelValues(string(band)).Inc()
}

// ForgetServer drops the per-server gauges of a server label
func (m *Metrics) ForgetServer(name string) {
	m.ServerHealth.DeleteLabelValues(name)
	m.ServerConnections.DeleteLabelValues(name)
}

package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/mir00r/lb-simulator/internal/clock"
	"github.com/mir00r/lb-simulator/internal/domain"
	"github.com/mir00r/lb-simulator/internal/eventlog"
	"github.com/mir00r/lb-simulator/internal/repository"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// Processing time model, in milliseconds
const (
	baseProcessingMs       = 800.0
	jitterProcessingMs     = 2400.0
	healthPenaltyMs        = 10.0
	connectionPenaltyMs    = 50.0
	noServerMessage        = "No healthy servers available to handle request"
	simulationStartMessage = "Simulation started"
	simulationStopMessage  = "Simulation stopped"
)

// DispatchResult describes the outcome of one dispatch attempt
type DispatchResult struct {
	ServerID       int           `json:"server_id,omitempty"`
	ServerName     string        `json:"server_name,omitempty"`
	Admitted       bool          `json:"admitted"`
	ProcessingTime time.Duration `json:"processing_time,omitempty"`
}

// Dispatcher drives the simulated request stream. While running it performs
// one dispatch per 1/requestRate seconds, re-reading the rate every iteration.
type Dispatcher struct {
	lock    sync.Locker
	repo    *repository.InMemoryServerRepository
	config  *domain.SimulationConfig
	router  *Router
	events  *eventlog.Log
	random  RandomSource
	clock   clock.Clock
	metrics *Metrics
	logger  *logger.Logger

	// guarded by lock
	timer      clock.Timer
	generation uint64
	inFlight   int
}

// NewDispatcher creates a dispatcher over config, which it shares with the
// simulator
func NewDispatcher(
	lock sync.Locker,
	repo *repository.InMemoryServerRepository,
	config *domain.SimulationConfig,
	router *Router,
	events *eventlog.Log,
	random RandomSource,
	clk clock.Clock,
	metrics *Metrics,
	log *logger.Logger,
) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		lock:    lock,
		repo:    repo,
		config:  config,
		router:  router,
		events:  events,
		random:  random,
		clock:   clk,
		metrics: metrics,
		logger:  log.DispatcherLogger(),
	}
}

// Start begins the dispatch loop. It is a no-op if already running.
func (d *Dispatcher) Start() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.startLocked()
}

// Stop halts new admissions. Completions already scheduled still fire and
// release their connection slot. It is a no-op if already stopped.
func (d *Dispatcher) Stop() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stopLocked()
}

// Dispatch performs one dispatch attempt immediately, regardless of state
func (d *Dispatcher) Dispatch() DispatchResult {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.dispatchLocked()
}

// InFlight returns the number of scheduled completions that have not fired yet
func (d *Dispatcher) InFlight() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.inFlight
}

func (d *Dispatcher) startLocked() {
	if d.config.Running {
		return
	}

	d.config.Running = true
	d.generation++
	d.events.Append(simulationStartMessage, domain.SeveritySuccess)
	d.logger.WithFields(map[string]interface{}{
		"algorithm":    d.config.Algorithm.String(),
		"request_rate": d.config.RequestRate,
	}).Info("Dispatch loop started")
	d.scheduleLocked(d.generation)
}

func (d *Dispatcher) stopLocked() {
	if !d.config.Running {
		return
	}

	d.config.Running = false
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.events.Append(simulationStopMessage, domain.SeverityWarning)
	d.logger.WithField("in_flight", d.inFlight).Info("Dispatch loop stopped")
}

func (d *Dispatcher) scheduleLocked(generation uint64) {
	d.timer = d.clock.AfterFunc(d.config.DispatchInterval(), func() {
		d.lock.Lock()
		defer d.lock.Unlock()

		if !d.config.Running || d.generation != generation {
			return
		}
		d.dispatchLocked()
		d.scheduleLocked(generation)
	})
}

func (d *Dispatcher) dispatchLocked() DispatchResult {
	server := d.router.Next(d.repo.GetAll(), d.config)
	if server == nil {
		d.events.Append(noServerMessage, domain.SeverityError)
		d.metrics.ObserveFailure(reasonNoServer)
		d.logger.Warn("No eligible server for request")
		return DispatchResult{}
	}

	if d.config.EnforceCapacity && server.AtCapacity() {
		d.events.Append(fmt.Sprintf("%s at capacity, request rejected", server.Name), domain.SeverityWarning)
		d.metrics.ObserveFailure(reasonCapacity)
		return DispatchResult{ServerID: server.ID, ServerName: server.Name}
	}

	server.Connections++
	d.config.TotalRequests++
	d.inFlight++

	processing := d.processingTime(server)
	d.clock.AfterFunc(processing, func() {
		d.complete(server)
	})

	d.metrics.ObserveDispatch(server, processing)
	d.logger.ServerLogger(server.ID, server.Name).WithFields(map[string]interface{}{
		"connections":   server.Connections,
		"processing_ms": processing.Milliseconds(),
	}).Debug("Request dispatched")

	return DispatchResult{
		ServerID:       server.ID,
		ServerName:     server.Name,
		Admitted:       true,
		ProcessingTime: processing,
	}
}

// processingTime reads health and connections as they are at dispatch time,
// after the new request was counted
func (d *Dispatcher) processingTime(server *domain.Server) time.Duration {
	ms := baseProcessingMs +
		d.random.Float64()*jitterProcessingMs +
		(domain.MaxHealth-server.Health)*healthPenaltyMs +
		float64(server.Connections)*connectionPenaltyMs
	return time.Duration(ms * float64(time.Millisecond))
}

// complete releases the connection slot reserved by a dispatch. It only
// touches the connections field of the server it was scheduled against.
func (d *Dispatcher) complete(server *domain.Server) {
	d.lock.Lock()
	defer d.lock.Unlock()

	server.Connections--
	d.inFlight--
	if d.repo.Contains(server) {
		d.metrics.ObserveServer(server)
	}
}

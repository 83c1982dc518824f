package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mir00r/lb-simulator/internal/clock"
	"github.com/mir00r/lb-simulator/internal/config"
	"github.com/mir00r/lb-simulator/internal/domain"
	simerrors "github.com/mir00r/lb-simulator/internal/errors"
	"github.com/mir00r/lb-simulator/internal/eventlog"
	"github.com/mir00r/lb-simulator/internal/repository"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// Options configures a simulator
type Options struct {
	InitialServers      int
	Algorithm           domain.Algorithm
	RequestRate         int
	HealthCheckInterval time.Duration
	MaxConnections      int
	LogCapacity         int
	EnforceCapacity     bool
	Autostart           bool
}

// DefaultOptions returns the reference settings: three servers, round robin,
// five requests per second and a three second health interval
func DefaultOptions() Options {
	return Options{
		InitialServers:      3,
		Algorithm:           domain.RoundRobin,
		RequestRate:         5,
		HealthCheckInterval: DefaultHealthCheckInterval,
		MaxConnections:      domain.DefaultMaxConnections,
		LogCapacity:         eventlog.DefaultCapacity,
	}
}

// OptionsFromConfig converts the simulation section of a loaded configuration
func OptionsFromConfig(cfg config.SimulationConfig) Options {
	return Options{
		InitialServers:      cfg.InitialServers,
		Algorithm:           cfg.AlgorithmName(),
		RequestRate:         cfg.RequestRate,
		HealthCheckInterval: cfg.HealthCheckInterval,
		MaxConnections:      cfg.MaxConnections,
		LogCapacity:         cfg.LogCapacity,
		EnforceCapacity:     cfg.EnforceCapacity,
		Autostart:           cfg.Autostart,
	}
}

// Simulator owns the registry, event log, health monitor and dispatcher of one
// simulation. Every command, query and scheduled task runs under a single
// mutex, so handlers never interleave mid-mutation.
type Simulator struct {
	mu         sync.Mutex
	options    Options
	config     domain.SimulationConfig
	repo       *repository.InMemoryServerRepository
	events     *eventlog.Log
	router     *Router
	monitor    *HealthMonitor
	dispatcher *Dispatcher
	clock      clock.Clock
	metrics    *Metrics
	logger     *logger.Logger
	poolLog    *logger.Logger
}

// NewSimulator creates a simulator populated with options.InitialServers servers.
// Nil metrics or logger are replaced by private no-op instances.
func NewSimulator(options Options, clk clock.Clock, random RandomSource, metrics *Metrics, log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	if random == nil {
		random = NewRandomSource(0)
	}
	if options.RequestRate <= 0 {
		options.RequestRate = DefaultOptions().RequestRate
	}
	if options.RequestRate > domain.MaxRequestRate {
		options.RequestRate = domain.MaxRequestRate
	}
	if options.Algorithm == "" {
		options.Algorithm = domain.RoundRobin
	}

	s := &Simulator{
		options: options,
		config: domain.SimulationConfig{
			Algorithm:       options.Algorithm,
			RequestRate:     options.RequestRate,
			EnforceCapacity: options.EnforceCapacity,
		},
		repo:    repository.NewInMemoryServerRepository(options.MaxConnections),
		events:  eventlog.New(options.LogCapacity, clk, log),
		router:  NewRouter(),
		clock:   clk,
		metrics: metrics,
		logger:  log.SimulatorLogger(),
		poolLog: log.RegistryLogger(),
	}
	s.monitor = NewHealthMonitor(&s.mu, s.repo, s.events, random, clk, metrics, log, options.HealthCheckInterval)
	s.dispatcher = NewDispatcher(&s.mu, s.repo, &s.config, s.router, s.events, random, clk, metrics, log)

	initial := options.InitialServers
	if initial < 1 {
		initial = 1
	}
	for i := 0; i < initial; i++ {
		s.AddServer()
	}
	return s
}

// Start launches the health monitor and, with Autostart, the dispatch loop
func (s *Simulator) Start(ctx context.Context) error {
	if err := s.monitor.Start(ctx); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"servers":      s.repo.Count(),
		"algorithm":    s.options.Algorithm.String(),
		"request_rate": s.options.RequestRate,
	}).Info("Simulator started")

	if s.options.Autostart {
		s.StartSimulation()
	}
	return nil
}

// Stop halts the dispatch loop and the health monitor. Pending completions
// are left to fire.
func (s *Simulator) Stop(ctx context.Context) error {
	s.StopSimulation()
	s.monitor.Stop()
	s.logger.Info("Simulator stopped")
	return ctx.Err()
}

// AddServer appends a full-health server to the pool
func (s *Simulator) AddServer() domain.Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	server := s.repo.Add(s.clock.Now())
	s.events.Append(fmt.Sprintf("Server %d added to the pool", server.ID), domain.SeveritySuccess)
	s.metrics.ObserveServer(server)
	s.poolLog.ServerLogger(server.ID, server.Name).WithField("pool_size", s.repo.Count()).Info("Server added")
	return server.Clone()
}

// RemoveServer removes the most recently added server. With a single server
// left it records an error entry and changes nothing.
func (s *Simulator) RemoveServer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedID, err := s.repo.RemoveLast()
	if err != nil {
		s.events.Append("Cannot remove the last server", domain.SeverityError)
		s.poolLog.WithError(err).Warn("Server removal refused")
		return false
	}

	s.events.Append(fmt.Sprintf("Server %d removed from the pool", removedID), domain.SeverityWarning)
	s.metrics.ForgetServer(domain.ServerName(removedID))
	s.poolLog.WithFields(map[string]interface{}{
		"server_id": removedID,
		"pool_size": s.repo.Count(),
	}).Info("Server removed")
	return true
}

// ToggleServerStatus flips a server between online and offline. Going offline
// zeroes health; coming back online restores it to 80. An unknown id changes
// nothing and records no entry.
func (s *Simulator) ToggleServerStatus(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	server, err := s.repo.GetByID(id)
	if err != nil {
		return simerrors.NewServerNotFoundError(id)
	}

	if server.IsOnline() {
		server.Status = domain.StatusOffline
		server.SetHealth(domain.MinHealth)
	} else {
		server.Status = domain.StatusOnline
		server.SetHealth(domain.RestartHealth)
	}
	server.RecomputeMetrics()
	s.metrics.ObserveServer(server)

	if server.IsOnline() {
		s.events.Append(fmt.Sprintf("Server %d started", id), domain.SeveritySuccess)
	} else {
		s.events.Append(fmt.Sprintf("Server %d stopped", id), domain.SeverityError)
	}
	s.logger.ServerLogger(server.ID, server.Name).WithField("status", server.Status.String()).Info("Server toggled")
	return nil
}

// RestartServer puts an online server into a fixed recovering state. Offline
// servers are left alone; an unknown id returns SERVER_NOT_FOUND.
func (s *Simulator) RestartServer(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	server, err := s.repo.GetByID(id)
	if err != nil {
		return simerrors.NewServerNotFoundError(id)
	}
	if !server.IsOnline() {
		return nil
	}

	server.SetHealth(domain.RestartHealth)
	server.Latency = 50
	server.PacketLoss = 1
	s.metrics.ObserveServer(server)
	s.events.Append(fmt.Sprintf("Server %d restarted - recovering", id), domain.SeverityWarning)
	s.logger.ServerLogger(server.ID, server.Name).Info("Server restarted")
	return nil
}

// SetAlgorithm selects the routing algorithm. Names are normalized with
// domain.ParseAlgorithm; unrecognized names route as round robin.
func (s *Simulator) SetAlgorithm(name string) domain.Algorithm {
	s.mu.Lock()
	defer s.mu.Unlock()

	algorithm := domain.ParseAlgorithm(name)
	s.config.Algorithm = algorithm
	s.logger.WithFields(map[string]interface{}{
		"algorithm": algorithm.String(),
		"known":     algorithm.IsKnown(),
	}).Info("Routing algorithm changed")
	return algorithm
}

// SetRequestRate changes the dispatch rate; a running loop picks it up on its
// next iteration
func (s *Simulator) SetRequestRate(rate int) error {
	if !domain.ValidRequestRate(rate) {
		return simerrors.NewInvalidRateError(rate, domain.MaxRequestRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.RequestRate = rate
	s.logger.WithField("request_rate", rate).Info("Request rate changed")
	return nil
}

// SetEnforceCapacity turns admission control on or off
func (s *Simulator) SetEnforceCapacity(enforce bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.EnforceCapacity = enforce
	s.logger.WithField("enforce_capacity", enforce).Info("Capacity enforcement changed")
}

// StartSimulation starts the dispatch loop
func (s *Simulator) StartSimulation() {
	s.dispatcher.Start()
}

// StopSimulation stops the dispatch loop
func (s *Simulator) StopSimulation() {
	s.dispatcher.Stop()
}

// ToggleSimulation starts a stopped loop or stops a running one and returns
// the new running state
func (s *Simulator) ToggleSimulation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Running {
		s.dispatcher.stopLocked()
	} else {
		s.dispatcher.startLocked()
	}
	return s.config.Running
}

// Dispatch performs one dispatch attempt immediately
func (s *Simulator) Dispatch() DispatchResult {
	return s.dispatcher.Dispatch()
}

// TickHealth runs one health monitor pass immediately
func (s *Simulator) TickHealth() {
	s.monitor.Tick()
}

// ClearLog empties the event log, leaving only the "Log cleared" entry
func (s *Simulator) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.Clear()
}

// Snapshot returns the ordered server list and pool statistics
func (s *Simulator) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := s.repo.GetAll()
	totalConnections := 0
	for _, server := range servers {
		totalConnections += server.Connections
	}

	views := make([]domain.ServerView, len(servers))
	for i, server := range servers {
		share := 0.0
		if totalConnections > 0 {
			share = float64(server.Connections) / float64(totalConnections) * 100
		}
		views[i] = domain.ServerView{
			Server:            server.Clone(),
			Band:              server.Band(),
			HealthClass:       healthClass(server),
			LoadPercentage:    server.LoadPercentage(),
			DistributionShare: share,
		}
	}

	return domain.Snapshot{
		Servers: views,
		Stats: domain.Stats{
			TotalRequests:     s.config.TotalRequests,
			ActiveConnections: totalConnections,
			HealthyServers:    s.repo.CountEligible(),
			TotalServers:      len(servers),
			Algorithm:         s.config.Algorithm,
			RequestRate:       s.config.RequestRate,
			Running:           s.config.Running,
		},
		Timestamp: s.clock.Now(),
	}
}

// LogSnapshot returns the event log, newest first
func (s *Simulator) LogSnapshot() []domain.LogEntry {
	return s.events.Snapshot()
}

// Subscribe returns a channel receiving every new log entry
func (s *Simulator) Subscribe() eventlog.Subscriber {
	return s.events.Subscribe()
}

// Unsubscribe closes a channel returned by Subscribe
func (s *Simulator) Unsubscribe(subscriber eventlog.Subscriber) {
	s.events.Unsubscribe(subscriber)
}

// IsRunning returns true while the dispatch loop is active
func (s *Simulator) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Running
}

// Ready reports whether the health monitor is running
func (s *Simulator) Ready() error {
	if !s.monitor.IsRunning() {
		return errors.New("health monitor not running")
	}
	return nil
}

// InFlight returns the number of simulated requests awaiting completion
func (s *Simulator) InFlight() int {
	return s.dispatcher.InFlight()
}

// GetStats returns orchestrator statistics for diagnostics
func (s *Simulator) GetStats() map[string]interface{} {
	monitor := s.monitor.GetStats()

	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"registry":       s.repo.GetStats(),
		"health_monitor": monitor,
		"total_requests": s.config.TotalRequests,
		"in_flight":      s.dispatcher.inFlight,
		"log_entries":    s.events.Len(),
		"log_dropped":    s.events.Dropped(),
	}
}

func healthClass(server *domain.Server) string {
	if !server.IsOnline() {
		return "offline"
	}
	return server.Band().Class()
}

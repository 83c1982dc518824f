package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mir00r/lb-simulator/internal/clock"
	"github.com/mir00r/lb-simulator/internal/domain"
	"github.com/mir00r/lb-simulator/internal/eventlog"
	"github.com/mir00r/lb-simulator/internal/repository"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

const (
	// DefaultHealthCheckInterval is the period between two health ticks
	DefaultHealthCheckInterval = 3 * time.Second

	// maxHealthGain caps the improvement of a single tick
	maxHealthGain = 15.0
)

// HealthMonitor perturbs the health of every online server once per interval
// and reports band transitions to the event log
type HealthMonitor struct {
	lock     sync.Locker
	repo     *repository.InMemoryServerRepository
	events   *eventlog.Log
	random   RandomSource
	clock    clock.Clock
	metrics  *Metrics
	logger   *logger.Logger
	interval time.Duration

	// guarded by lock
	timer      clock.Timer
	generation uint64
	isRunning  bool
	ticks      uint64
}

// NewHealthMonitor creates a health monitor. lock is shared with every other
// component mutating the registry.
func NewHealthMonitor(
	lock sync.Locker,
	repo *repository.InMemoryServerRepository,
	events *eventlog.Log,
	random RandomSource,
	clk clock.Clock,
	metrics *Metrics,
	log *logger.Logger,
	interval time.Duration,
) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &HealthMonitor{
		lock:     lock,
		repo:     repo,
		events:   events,
		random:   random,
		clock:    clk,
		metrics:  metrics,
		logger:   log.HealthMonitorLogger(),
		interval: interval,
	}
}

// Start schedules periodic ticks until Stop is called or ctx is done
func (hm *HealthMonitor) Start(ctx context.Context) error {
	hm.lock.Lock()
	defer hm.lock.Unlock()

	if hm.isRunning {
		return fmt.Errorf("health monitor is already running")
	}

	hm.isRunning = true
	hm.generation++
	hm.logger.Infof("Starting health monitor with interval %v", hm.interval)
	hm.scheduleLocked(ctx, hm.generation)
	return nil
}

// Stop cancels the pending tick
func (hm *HealthMonitor) Stop() {
	hm.lock.Lock()
	defer hm.lock.Unlock()

	if !hm.isRunning {
		return
	}
	hm.isRunning = false
	hm.generation++
	if hm.timer != nil {
		hm.timer.Stop()
		hm.timer = nil
	}
	hm.logger.Info("Health monitor stopped")
}

// Tick runs one monitor pass immediately
func (hm *HealthMonitor) Tick() {
	hm.lock.Lock()
	defer hm.lock.Unlock()
	hm.tickLocked()
}

// IsRunning returns true if periodic ticks are scheduled
func (hm *HealthMonitor) IsRunning() bool {
	hm.lock.Lock()
	defer hm.lock.Unlock()
	return hm.isRunning
}

// Ticks returns the number of completed passes
func (hm *HealthMonitor) Ticks() uint64 {
	hm.lock.Lock()
	defer hm.lock.Unlock()
	return hm.ticks
}

// GetStats returns health monitor statistics
func (hm *HealthMonitor) GetStats() map[string]interface{} {
	hm.lock.Lock()
	defer hm.lock.Unlock()

	return map[string]interface{}{
		"running":  hm.isRunning,
		"interval": hm.interval.String(),
		"ticks":    hm.ticks,
	}
}

func (hm *HealthMonitor) scheduleLocked(ctx context.Context, generation uint64) {
	hm.timer = hm.clock.AfterFunc(hm.interval, func() {
		hm.lock.Lock()
		defer hm.lock.Unlock()

		if !hm.isRunning || hm.generation != generation {
			return
		}
		if ctx.Err() != nil {
			hm.isRunning = false
			hm.logger.Debug("Health monitor stopped due to context cancellation")
			return
		}

		hm.tickLocked()
		hm.scheduleLocked(ctx, generation)
	})
}

// tickLocked updates every online server. Offline servers keep their frozen
// health.
func (hm *HealthMonitor) tickLocked() {
	now := hm.clock.Now()

	for _, server := range hm.repo.GetOnline() {
		previousHealth := server.Health
		previousBand := domain.BandFor(previousHealth)

		change := hm.random.Float64()*maxHealthGain - float64(server.Connections)/2
		server.SetHealth(previousHealth + change)
		server.RecomputeMetrics()
		server.LastHealthCheck = now

		currentBand := server.Band()
		log := hm.logger.ServerLogger(server.ID, server.Name)
		log.WithFields(map[string]interface{}{
			"health":      server.Health,
			"latency_ms":  server.Latency,
			"packet_loss": server.PacketLoss,
			"connections": server.Connections,
		}).Debug("Health tick")

		if currentBand != previousBand {
			hm.events.Append(
				fmt.Sprintf("%s health changed to %s (%d%%)", server.Name, currentBand, int(math.Round(server.Health))),
				currentBand.Severity(),
			)
			hm.metrics.ObserveBandChange(currentBand)
			log.WithField("band", string(currentBand)).Info("Server health band changed")
		}

		// Reported independently of the band change above; both may fire in
		// the same tick.
		if previousHealth >= domain.EligibleHealthThreshold && server.Health < domain.EligibleHealthThreshold {
			hm.events.Append(fmt.Sprintf("%s health became CRITICAL", server.Name), domain.SeverityError)
			log.Warn("Server became critical")
		} else if previousHealth < domain.EligibleHealthThreshold && server.Health >= domain.EligibleHealthThreshold {
			hm.events.Append(fmt.Sprintf("%s recovered from critical status", server.Name), domain.SeveritySuccess)
			log.Info("Server recovered from critical status")
		}

		hm.metrics.ObserveServer(server)
	}

	hm.ticks++
	hm.metrics.HealthTicks.Inc()
}

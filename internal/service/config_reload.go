package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mir00r/lb-simulator/internal/config"
	"github.com/mir00r/lb-simulator/internal/domain"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// DefaultReloadInterval is how often the config file is polled
const DefaultReloadInterval = 5 * time.Second

// ReloadTarget receives the settings that may change while the simulation
// runs. *Simulator implements it.
type ReloadTarget interface {
	SetAlgorithm(name string) domain.Algorithm
	SetRequestRate(rate int) error
	SetEnforceCapacity(enforce bool)
}

// ConfigReloadService polls the configuration file and applies runtime
// settings (algorithm, request rate, capacity enforcement) to the simulator.
// Pool size, intervals and logging are start-up only.
type ConfigReloadService struct {
	config          *config.Config
	target          ReloadTarget
	configFilePath  string
	interval        time.Duration
	logger          *logger.Logger
	mutex           sync.RWMutex
	reloadCallbacks []func(*config.Config) error
	watcherStop     chan struct{}
	watcherActive   bool
	lastModTime     time.Time
	reloads         int
}

// NewConfigReloadService creates a new configuration reload service
func NewConfigReloadService(
	cfg *config.Config,
	target ReloadTarget,
	configFilePath string,
	interval time.Duration,
	log *logger.Logger,
) *ConfigReloadService {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ConfigReloadService{
		config:         cfg,
		target:         target,
		configFilePath: configFilePath,
		interval:       interval,
		logger:         log.WithField("component", "config_reload"),
	}
}

// RegisterReloadCallback registers a callback to be called when config is reloaded
func (crs *ConfigReloadService) RegisterReloadCallback(callback func(*config.Config) error) {
	crs.mutex.Lock()
	defer crs.mutex.Unlock()
	crs.reloadCallbacks = append(crs.reloadCallbacks, callback)
}

// StartWatcher starts polling the configuration file until ctx is done or
// StopWatcher is called
func (crs *ConfigReloadService) StartWatcher(ctx context.Context) error {
	info, err := os.Stat(crs.configFilePath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	crs.mutex.Lock()
	if crs.watcherActive {
		crs.mutex.Unlock()
		return fmt.Errorf("config watcher is already running")
	}
	crs.watcherActive = true
	crs.watcherStop = make(chan struct{})
	crs.lastModTime = info.ModTime()
	stop := crs.watcherStop
	crs.mutex.Unlock()

	go crs.watchConfigFile(ctx, stop)

	crs.logger.WithFields(map[string]interface{}{
		"config_file": crs.configFilePath,
		"interval":    crs.interval.String(),
	}).Info("Started configuration file watcher")

	return nil
}

// StopWatcher stops the configuration file watcher
func (crs *ConfigReloadService) StopWatcher() {
	crs.mutex.Lock()
	defer crs.mutex.Unlock()

	if !crs.watcherActive {
		return
	}
	close(crs.watcherStop)
	crs.watcherActive = false
	crs.logger.Info("Stopped configuration file watcher")
}

func (crs *ConfigReloadService) watchConfigFile(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(crs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := crs.CheckForChanges(); err != nil {
				crs.logger.WithError(err).Error("Failed to reload configuration")
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CheckForChanges reloads the file if its modification time moved. It
// reports whether a reload was applied.
func (crs *ConfigReloadService) CheckForChanges() (bool, error) {
	info, err := os.Stat(crs.configFilePath)
	if err != nil {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	crs.mutex.RLock()
	unchanged := info.ModTime().Equal(crs.lastModTime)
	crs.mutex.RUnlock()
	if unchanged {
		return false, nil
	}

	newConfig, err := config.LoadConfigFrom(crs.configFilePath)
	if err != nil {
		return false, err
	}

	crs.mutex.Lock()
	crs.lastModTime = info.ModTime()
	crs.mutex.Unlock()

	crs.logger.Info("Configuration file changed, reloading...")
	if err := crs.ReloadConfig(newConfig); err != nil {
		return false, err
	}
	return true, nil
}

// ReloadConfig validates newConfig and applies its runtime settings
func (crs *ConfigReloadService) ReloadConfig(newConfig *config.Config) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	crs.mutex.Lock()
	defer crs.mutex.Unlock()

	// a rejected reload leaves the simulator untouched
	for _, callback := range crs.reloadCallbacks {
		if err := callback(newConfig); err != nil {
			crs.logger.WithError(err).Error("Config reload callback failed")
			return err
		}
	}

	old := crs.config.Simulation
	next := newConfig.Simulation

	if old.AlgorithmName() != next.AlgorithmName() {
		crs.target.SetAlgorithm(next.Algorithm)
		crs.logger.WithFields(map[string]interface{}{
			"old_algorithm": old.AlgorithmName().String(),
			"new_algorithm": next.AlgorithmName().String(),
		}).Info("Updated routing algorithm")
	}

	if old.RequestRate != next.RequestRate {
		if err := crs.target.SetRequestRate(next.RequestRate); err != nil {
			return err
		}
		crs.logger.WithFields(map[string]interface{}{
			"old_rate": old.RequestRate,
			"new_rate": next.RequestRate,
		}).Info("Updated request rate")
	}

	if old.EnforceCapacity != next.EnforceCapacity {
		crs.target.SetEnforceCapacity(next.EnforceCapacity)
	}

	crs.config = newConfig
	crs.reloads++

	crs.logger.Info("Configuration reloaded successfully")
	return nil
}

// ReloadFromAPI applies a YAML document posted to the control API. Fields the
// document omits keep their current values.
func (crs *ConfigReloadService) ReloadFromAPI(newConfigData []byte) error {
	newConfig := crs.GetCurrentConfig()
	if err := config.MergeYAML(newConfig, newConfigData); err != nil {
		return fmt.Errorf("invalid YAML configuration: %w", err)
	}

	return crs.ReloadConfig(newConfig)
}

// GetCurrentConfig returns a copy of the current configuration
func (crs *ConfigReloadService) GetCurrentConfig() *config.Config {
	crs.mutex.RLock()
	defer crs.mutex.RUnlock()
	copied := *crs.config
	return &copied
}

// GetReloadStats returns reload statistics
func (crs *ConfigReloadService) GetReloadStats() map[string]interface{} {
	crs.mutex.RLock()
	defer crs.mutex.RUnlock()

	return map[string]interface{}{
		"config_file":     crs.configFilePath,
		"watcher_active":  crs.watcherActive,
		"callbacks_count": len(crs.reloadCallbacks),
		"reloads":         crs.reloads,
		"last_modified":   crs.lastModTime,
	}
}

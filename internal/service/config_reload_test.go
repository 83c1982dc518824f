package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/lb-simulator/internal/config"
	"github.com/mir00r/lb-simulator/internal/domain"
)

func writeConfig(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func newReloadFixture(t *testing.T) (*ConfigReloadService, *Simulator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "simulation:\n  request_rate: 5\n", testStart)

	cfg, err := config.LoadConfigFrom(path)
	require.NoError(t, err)

	sim, _ := newTestSimulator(t, OptionsFromConfig(cfg.Simulation), 0)
	reload := NewConfigReloadService(cfg, sim, path, time.Hour, nil)
	require.NoError(t, reload.StartWatcher(context.Background()))
	t.Cleanup(reload.StopWatcher)

	return reload, sim, path
}

func TestConfigReloadService_CheckForChanges(t *testing.T) {
	reload, sim, path := newReloadFixture(t)

	changed, err := reload.CheckForChanges()
	require.NoError(t, err)
	assert.False(t, changed, "untouched file must not reload")

	writeConfig(t, path, `
simulation:
  algorithm: least_connections
  request_rate: 12
  enforce_capacity: true
`, testStart.Add(time.Minute))

	changed, err = reload.CheckForChanges()
	require.NoError(t, err)
	assert.True(t, changed)

	stats := sim.Snapshot().Stats
	assert.Equal(t, domain.LeastConnections, stats.Algorithm)
	assert.Equal(t, 12, stats.RequestRate)
	assert.True(t, sim.config.EnforceCapacity)
	assert.Equal(t, 1, reload.GetReloadStats()["reloads"])
	assert.Equal(t, 12, reload.GetCurrentConfig().Simulation.RequestRate)
}

func TestConfigReloadService_InvalidFileKeepsSettings(t *testing.T) {
	reload, sim, path := newReloadFixture(t)

	writeConfig(t, path, "simulation:\n  algorithm: weighted\n", testStart.Add(time.Minute))

	changed, err := reload.CheckForChanges()
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.RoundRobin, sim.Snapshot().Stats.Algorithm)
	assert.Equal(t, 0, reload.GetReloadStats()["reloads"])
}

func TestConfigReloadService_ReloadFromAPI(t *testing.T) {
	reload, sim, _ := newReloadFixture(t)

	require.NoError(t, reload.ReloadFromAPI([]byte("simulation:\n  request_rate: 30\n")))
	assert.Equal(t, 30, sim.Snapshot().Stats.RequestRate)
	assert.Equal(t, domain.RoundRobin, sim.Snapshot().Stats.Algorithm, "omitted fields keep current values")

	assert.Error(t, reload.ReloadFromAPI([]byte("simulation: [")))
	assert.Error(t, reload.ReloadFromAPI([]byte("simulation:\n  request_rate: 0\n")))
	assert.Equal(t, 30, sim.Snapshot().Stats.RequestRate)
}

func TestConfigReloadService_Callbacks(t *testing.T) {
	reload, _, _ := newReloadFixture(t)

	var seen *config.Config
	reload.RegisterReloadCallback(func(cfg *config.Config) error {
		seen = cfg
		return nil
	})
	require.NoError(t, reload.ReloadFromAPI([]byte("logging:\n  level: debug\n")))
	require.NotNil(t, seen)
	assert.Equal(t, "debug", seen.Logging.Level)

	reload.RegisterReloadCallback(func(*config.Config) error {
		return errors.New("rejected")
	})
	assert.Error(t, reload.ReloadFromAPI([]byte("logging:\n  level: warn\n")))
	assert.Equal(t, "debug", reload.GetCurrentConfig().Logging.Level)
}

func TestConfigReloadService_RejectedCallbackKeepsSimulator(t *testing.T) {
	reload, sim, _ := newReloadFixture(t)

	reload.RegisterReloadCallback(func(*config.Config) error {
		return errors.New("rejected")
	})

	err := reload.ReloadFromAPI([]byte(`
simulation:
  algorithm: least_connections
  request_rate: 40
  enforce_capacity: true
`))
	require.Error(t, err)

	stats := sim.Snapshot().Stats
	assert.Equal(t, domain.RoundRobin, stats.Algorithm)
	assert.Equal(t, 5, stats.RequestRate)
	assert.False(t, sim.config.EnforceCapacity)

	current := reload.GetCurrentConfig().Simulation
	assert.Equal(t, 5, current.RequestRate)
	assert.Equal(t, 0, reload.GetReloadStats()["reloads"])
}

func TestConfigReloadService_Watcher(t *testing.T) {
	reload, _, path := newReloadFixture(t)

	assert.Error(t, reload.StartWatcher(context.Background()), "second start must fail")
	assert.Equal(t, true, reload.GetReloadStats()["watcher_active"])

	reload.StopWatcher()
	reload.StopWatcher()
	assert.Equal(t, false, reload.GetReloadStats()["watcher_active"])

	missing := NewConfigReloadService(config.DefaultConfig(), nil, path+".missing", 0, nil)
	assert.Error(t, missing.StartWatcher(context.Background()))
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/lb-simulator/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Simulation.InitialServers)
	assert.Equal(t, domain.RoundRobin, cfg.Simulation.AlgorithmName())
	assert.Equal(t, 5, cfg.Simulation.RequestRate)
	assert.Equal(t, 3*time.Second, cfg.Simulation.HealthCheckInterval)
	assert.Equal(t, 10, cfg.Simulation.MaxConnections)
	assert.Equal(t, 100, cfg.Simulation.LogCapacity)
	assert.False(t, cfg.Simulation.Autostart)
	assert.False(t, cfg.Simulation.EnforceCapacity)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 70000 }, "invalid port"},
		{"no servers", func(c *Config) { c.Simulation.InitialServers = 0 }, "initial_servers"},
		{"unknown algorithm", func(c *Config) { c.Simulation.Algorithm = "random" }, "unsupported routing algorithm"},
		{"zero rate", func(c *Config) { c.Simulation.RequestRate = 0 }, "request_rate"},
		{"rate above maximum", func(c *Config) { c.Simulation.RequestRate = 2_000_000_000 }, "request_rate must be between 1 and 1000"},
		{"zero interval", func(c *Config) { c.Simulation.HealthCheckInterval = 0 }, "health_check_interval"},
		{"zero capacity", func(c *Config) { c.Simulation.MaxConnections = 0 }, "max_connections"},
		{"zero log capacity", func(c *Config) { c.Simulation.LogCapacity = 0 }, "log_capacity"},
		{"rate limit without rps", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerSecond = 0
		}, "requests_per_second"},
		{"metrics without path", func(c *Config) { c.Metrics.Path = "" }, "metrics.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad log output", func(c *Config) { c.Logging.Output = "syslog" }, "invalid log output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_AlgorithmSpellings(t *testing.T) {
	for _, name := range []string{"roundRobin", "round_robin", "round-robin", "leastConnections", "least_connections"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Simulation.Algorithm = name
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
simulation:
  initial_servers: 5
  algorithm: least_connections
  request_rate: 12
  health_check_interval: 500ms
  enforce_capacity: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Simulation.InitialServers)
	assert.Equal(t, domain.LeastConnections, cfg.Simulation.AlgorithmName())
	assert.Equal(t, 12, cfg.Simulation.RequestRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Simulation.HealthCheckInterval)
	assert.True(t, cfg.Simulation.EnforceCapacity)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched fields keep defaults
	assert.Equal(t, 10, cfg.Simulation.MaxConnections)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("simulation:\n  request_rate: -1\n"), 0644))
	_, err = LoadFromFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_rate")

	garbage := filepath.Join(dir, "garbage.yaml")
	require.NoError(t, os.WriteFile(garbage, []byte("simulation: [unterminated"), 0644))
	_, err = LoadFromFile(garbage)
	assert.Error(t, err)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")

	cfg := DefaultConfig()
	cfg.Simulation.Algorithm = string(domain.LeastConnections)
	cfg.Simulation.HealthCheckInterval = 2 * time.Second
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigFrom_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  request_rate: 7\n  algorithm: roundRobin\n"), 0644))

	t.Setenv("LB_SIM_REQUEST_RATE", "20")
	t.Setenv("LB_SIM_ALGORITHM", "leastConnections")
	t.Setenv("LB_SIM_HEALTH_INTERVAL", "1s")
	t.Setenv("LB_SIM_AUTOSTART", "true")
	t.Setenv("LB_SIM_SEED", "42")
	t.Setenv("LB_SIM_PORT", "9000")
	t.Setenv("PORT", "9100")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Simulation.RequestRate)
	assert.Equal(t, domain.LeastConnections, cfg.Simulation.AlgorithmName())
	assert.Equal(t, time.Second, cfg.Simulation.HealthCheckInterval)
	assert.True(t, cfg.Simulation.Autostart)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoadConfigFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFrom_IgnoresMalformedEnvironment(t *testing.T) {
	t.Setenv("LB_SIM_REQUEST_RATE", "fast")
	t.Setenv("LB_SIM_HEALTH_INTERVAL", "-3s")
	t.Setenv("LB_SIM_MAX_CONNECTIONS", "0")

	cfg, err := LoadConfigFrom("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Simulation.RequestRate)
	assert.Equal(t, 3*time.Second, cfg.Simulation.HealthCheckInterval)
	assert.Equal(t, 10, cfg.Simulation.MaxConnections)
}

func TestLoadConfigFrom_InvalidEnvironmentAlgorithm(t *testing.T) {
	t.Setenv("LB_SIM_ALGORITHM", "weighted")

	_, err := LoadConfigFrom("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported routing algorithm")
}

func TestConfigFilePath(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	assert.Equal(t, DefaultConfigFile, ConfigFilePath())

	t.Setenv("CONFIG_FILE", "/etc/lbsim.yaml")
	assert.Equal(t, "/etc/lbsim.yaml", ConfigFilePath())
}

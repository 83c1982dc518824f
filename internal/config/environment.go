package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultConfigFile is read when CONFIG_FILE is not set
const DefaultConfigFile = "config.yaml"

// ApplyEnvironment overrides config with every LB_SIM_* variable that is set.
// Values that fail to parse are ignored. PORT, when set, wins over
// LB_SIM_PORT.
func ApplyEnvironment(config *Config) {
	if port, ok := envInt("LB_SIM_PORT"); ok && port > 0 && port <= 65535 {
		config.Server.Port = port
	}
	if port, ok := envInt("PORT"); ok && port > 0 && port <= 65535 {
		config.Server.Port = port
	}

	// Simulation
	if n, ok := envInt("LB_SIM_INITIAL_SERVERS"); ok && n > 0 {
		config.Simulation.InitialServers = n
	}
	if algorithm := os.Getenv("LB_SIM_ALGORITHM"); algorithm != "" {
		config.Simulation.Algorithm = algorithm
	}
	if rate, ok := envInt("LB_SIM_REQUEST_RATE"); ok && rate > 0 {
		config.Simulation.RequestRate = rate
	}
	if interval, ok := envDuration("LB_SIM_HEALTH_INTERVAL"); ok {
		config.Simulation.HealthCheckInterval = interval
	}
	if n, ok := envInt("LB_SIM_MAX_CONNECTIONS"); ok && n > 0 {
		config.Simulation.MaxConnections = n
	}
	if n, ok := envInt("LB_SIM_LOG_CAPACITY"); ok && n > 0 {
		config.Simulation.LogCapacity = n
	}
	if seed := os.Getenv("LB_SIM_SEED"); seed != "" {
		if s, err := strconv.ParseInt(seed, 10, 64); err == nil {
			config.Simulation.Seed = s
		}
	}
	if autostart, ok := envBool("LB_SIM_AUTOSTART"); ok {
		config.Simulation.Autostart = autostart
	}
	if enforce, ok := envBool("LB_SIM_ENFORCE_CAPACITY"); ok {
		config.Simulation.EnforceCapacity = enforce
	}

	// Rate limiting
	if enabled, ok := envBool("LB_SIM_RATE_LIMIT_ENABLED"); ok {
		config.RateLimit.Enabled = enabled
	}
	if rps := os.Getenv("LB_SIM_RATE_LIMIT_RPS"); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil && r > 0 {
			config.RateLimit.RequestsPerSecond = r
		}
	}
	if burst, ok := envInt("LB_SIM_RATE_LIMIT_BURST"); ok && burst > 0 {
		config.RateLimit.BurstSize = burst
	}

	// Metrics
	if enabled, ok := envBool("LB_SIM_METRICS_ENABLED"); ok {
		config.Metrics.Enabled = enabled
	}

	// Logging
	if level := os.Getenv("LB_SIM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LB_SIM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("LB_SIM_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}
	if file := os.Getenv("LB_SIM_LOG_FILE"); file != "" {
		config.Logging.File = file
	}
}

// ConfigFilePath returns CONFIG_FILE or the default file name
func ConfigFilePath() string {
	return getEnv("CONFIG_FILE", DefaultConfigFile)
}

// LoadConfig loads configuration with priority: env vars > config file > defaults.
// A missing config file is not an error; an unreadable or invalid one is.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigFilePath())
}

// LoadConfigFrom is LoadConfig with an explicit file path
func LoadConfigFrom(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
			if err := MergeYAML(config, data); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
			}
		}
	}

	ApplyEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// getEnv gets environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func envBool(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}
	return strings.ToLower(value) == "true" || value == "1", true
}

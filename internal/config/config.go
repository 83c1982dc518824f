package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mir00r/lb-simulator/internal/domain"
	"gopkg.in/yaml.v2"
)

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server specific configuration
type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// SimulationConfig contains the parameters of the simulated pool
type SimulationConfig struct {
	InitialServers      int           `yaml:"initial_servers" json:"initial_servers"`
	Algorithm           string        `yaml:"algorithm" json:"algorithm"`
	RequestRate         int           `yaml:"request_rate" json:"request_rate"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	MaxConnections      int           `yaml:"max_connections" json:"max_connections"`
	LogCapacity         int           `yaml:"log_capacity" json:"log_capacity"`
	Seed                int64         `yaml:"seed" json:"seed"`
	Autostart           bool          `yaml:"autostart" json:"autostart"`
	EnforceCapacity     bool          `yaml:"enforce_capacity" json:"enforce_capacity"`
}

// RateLimitConfig limits calls to the control API per client
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" json:"burst_size"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Simulation: SimulationConfig{
			InitialServers:      3,
			Algorithm:           string(domain.RoundRobin),
			RequestRate:         5,
			HealthCheckInterval: 3 * time.Second,
			MaxConnections:      domain.DefaultMaxConnections,
			LogCapacity:         100,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := MergeYAML(config, data); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if err := c.Simulation.Validate(); err != nil {
		return err
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path cannot be empty")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	return nil
}

// Validate checks the simulation section. Algorithm names are normalized
// before the check, so "round-robin" and "least_connections" are accepted.
func (s *SimulationConfig) Validate() error {
	if s.InitialServers < 1 {
		return fmt.Errorf("simulation.initial_servers must be at least 1: %d", s.InitialServers)
	}

	if !domain.ParseAlgorithm(s.Algorithm).IsKnown() {
		return fmt.Errorf("unsupported routing algorithm: %s", s.Algorithm)
	}

	if !domain.ValidRequestRate(s.RequestRate) {
		return fmt.Errorf("simulation.request_rate must be between 1 and %d: %d", domain.MaxRequestRate, s.RequestRate)
	}

	if s.HealthCheckInterval <= 0 {
		return fmt.Errorf("simulation.health_check_interval must be positive")
	}

	if s.MaxConnections <= 0 {
		return fmt.Errorf("simulation.max_connections must be positive")
	}

	if s.LogCapacity <= 0 {
		return fmt.Errorf("simulation.log_capacity must be positive")
	}

	return nil
}

// AlgorithmName returns the normalized routing algorithm
func (s *SimulationConfig) AlgorithmName() domain.Algorithm {
	return domain.ParseAlgorithm(s.Algorithm)
}

// MergeYAML decodes a YAML document over an existing config, keeping fields
// the document does not mention
func MergeYAML(config *Config, data []byte) error {
	return yaml.Unmarshal(data, config)
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}

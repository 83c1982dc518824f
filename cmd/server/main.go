package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/mir00r/lb-simulator/internal/clock"
	"github.com/mir00r/lb-simulator/internal/config"
	"github.com/mir00r/lb-simulator/internal/handler"
	"github.com/mir00r/lb-simulator/internal/middleware"
	"github.com/mir00r/lb-simulator/internal/service"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

// getConfigSource returns the configuration source for logging
func getConfigSource(configFile string) string {
	source := "defaults"
	if _, err := os.Stat(configFile); err == nil {
		source = "file"
	}

	envVars := []string{
		"PORT", "LB_SIM_PORT", "LB_SIM_INITIAL_SERVERS", "LB_SIM_ALGORITHM",
		"LB_SIM_REQUEST_RATE", "LB_SIM_LOG_LEVEL", "LB_SIM_RATE_LIMIT_ENABLED",
	}
	for _, envVar := range envVars {
		if os.Getenv(envVar) != "" {
			return source + "+env"
		}
	}
	return source
}

func newLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
		File:   cfg.File,
	})
}

func main() {
	if checkIfAdminMode() {
		runAdminProcess()
		return
	}

	configFile := config.ConfigFilePath()
	cfg, err := config.LoadConfigFrom(configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"version":         version,
		"algorithm":       cfg.Simulation.AlgorithmName().String(),
		"initial_servers": cfg.Simulation.InitialServers,
		"request_rate":    cfg.Simulation.RequestRate,
		"config_source":   getConfigSource(configFile),
		"process":         getProcessInfo(),
	}).Info("Starting load balancer simulator")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	simulator := service.NewSimulator(
		service.OptionsFromConfig(cfg.Simulation),
		clock.NewReal(),
		service.NewRandomSource(cfg.Simulation.Seed),
		service.NewMetrics(registry),
		log,
	)

	reloader := service.NewConfigReloadService(cfg, simulator, configFile, service.DefaultReloadInterval, log)
	reloader.RegisterReloadCallback(func(newConfig *config.Config) error {
		level, err := logrus.ParseLevel(newConfig.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		if level != log.GetLevel() {
			log.SetLevel(level)
			log.WithField("level", level.String()).Info("Log level changed")
		}
		return nil
	})

	opts := handler.RouterOptions{
		Admin:  handler.NewAdminHandler(simulator, log),
		Config: handler.NewConfigHandler(reloader, log),
		Health: handler.NewHealthHandler(version, simulator.Ready),
		Logger: log,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = handler.NewPrometheusHandler(registry, log)
		opts.MetricsPath = cfg.Metrics.Path
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit, log)
		log.Info("Rate limiting enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := getPort(cfg.Server.Port)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler.NewRouter(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	if err := simulator.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start simulator")
	}

	if _, err := os.Stat(configFile); err == nil {
		if err := reloader.StartWatcher(ctx); err != nil {
			log.WithError(err).Warn("Configuration watcher not started")
		}
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"port":         port,
			"metrics":      cfg.Metrics.Enabled,
			"rate_limited": cfg.RateLimit.Enabled,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	reloader.StopWatcher()

	// cancelling the base context ends open log streams
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}

	if err := simulator.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Error stopping simulator")
	}

	log.WithField("in_flight", simulator.InFlight()).Info("Simulator stopped gracefully")
}

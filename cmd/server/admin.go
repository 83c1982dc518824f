package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mir00r/lb-simulator/internal/clock"
	"github.com/mir00r/lb-simulator/internal/config"
	"github.com/mir00r/lb-simulator/internal/service"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// Admin processes run one-off tasks against the configuration and exit

// runConfigValidation validates the current configuration
func runConfigValidation(out io.Writer) error {
	cfg, err := config.LoadConfigFrom(config.ConfigFilePath())
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Fprintln(out, "Configuration validation passed ✓")
	fmt.Fprintf(out, "Algorithm: %s\n", cfg.Simulation.AlgorithmName())
	fmt.Fprintf(out, "Port: %d\n", cfg.Server.Port)
	fmt.Fprintf(out, "Initial servers: %d\n", cfg.Simulation.InitialServers)
	fmt.Fprintf(out, "Request rate: %d/s\n", cfg.Simulation.RequestRate)
	fmt.Fprintf(out, "Health check interval: %s\n", cfg.Simulation.HealthCheckInterval)
	fmt.Fprintf(out, "Capacity enforced: %t\n", cfg.Simulation.EnforceCapacity)
	fmt.Fprintf(out, "Rate Limiting: %t\n", cfg.RateLimit.Enabled)
	fmt.Fprintf(out, "Metrics: %t\n", cfg.Metrics.Enabled)

	return nil
}

// runSimulation replays the configured simulation for duration of simulated
// time on a fake clock and prints the final snapshot as JSON
func runSimulation(out io.Writer, duration time.Duration) error {
	cfg, err := config.LoadConfigFrom(config.ConfigFilePath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	clk := clock.NewFake(time.Now())
	simulator := service.NewSimulator(
		service.OptionsFromConfig(cfg.Simulation),
		clk,
		service.NewRandomSource(cfg.Simulation.Seed),
		nil,
		logger.Discard(),
	)

	ctx := context.Background()
	if err := simulator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}
	simulator.StartSimulation()

	clk.Advance(duration)
	if err := simulator.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop simulator: %w", err)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"duration": duration.String(),
		"snapshot": simulator.Snapshot(),
		"log":      simulator.LogSnapshot(),
	})
}

// runStats prints the pool a fresh simulator starts with
func runStats(out io.Writer) error {
	cfg, err := config.LoadConfigFrom(config.ConfigFilePath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	simulator := service.NewSimulator(service.OptionsFromConfig(cfg.Simulation), clock.NewFake(time.Now()), nil, nil, logger.Discard())
	snapshot := simulator.Snapshot()

	fmt.Fprintf(out, "Total servers: %d\n", snapshot.Stats.TotalServers)
	for _, view := range snapshot.Servers {
		fmt.Fprintf(out, "  %s: health %.0f%%, capacity %d\n", view.Name, view.Health, view.MaxConnections)
	}
	return nil
}

func printAdminUsage() {
	fmt.Println("Usage: lbsim -admin <command>")
	fmt.Println("Commands:")
	fmt.Println("  validate-config     - Validate configuration")
	fmt.Println("  simulate <duration> - Run the simulation offline and print the final state")
	fmt.Println("  stats               - Show the initial server pool")
}

// runAdminProcess handles admin process execution
func runAdminProcess() {
	if len(os.Args) < 3 {
		printAdminUsage()
		os.Exit(1)
	}

	command := os.Args[2] // Third argument after program name and -admin flag
	var err error

	switch command {
	case "validate-config", "validate":
		err = runConfigValidation(os.Stdout)
	case "simulate":
		duration := time.Minute
		if len(os.Args) > 3 {
			duration, err = time.ParseDuration(os.Args[3])
			if err == nil && duration <= 0 {
				err = fmt.Errorf("duration must be positive: %s", os.Args[3])
			}
		}
		if err == nil {
			err = runSimulation(os.Stdout, duration)
		}
	case "stats":
		err = runStats(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printAdminUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command failed: %v\n", err)
		os.Exit(1)
	}
}

// checkIfAdminMode checks if running in admin mode
func checkIfAdminMode() bool {
	for _, arg := range os.Args {
		if arg == "-admin" {
			return true
		}
	}
	return false
}

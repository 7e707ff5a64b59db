package sim

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "simulation_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Backtest Simulation Tool
========================

Generates a synthetic national solar backtest, runs every pipeline stage
over it and verifies the output.

Usage:
  go run cmd/simulate-backtest/main.go [options]

Options:
  -dir string
        Working directory for generated files (default: simulated_backtest_TIMESTAMP)
  -days int
        Days of issue times to simulate (default 2)
  -issues int
        Forecast runs per source per day; must divide 24 evenly (default 8)
  -horizons int
        Half-hour steps per intraday run (default 16)
  -gsps int
        Regional locations generated besides the national aggregate (default 3)
  -workers int
        Number of concurrent run writers (default CPU cores)
  -seed int
        Generator seed; equal seeds reproduce a simulation exactly (default 1)
  -start string
        First issue time, YYYY-MM-DD (default 2021-06-01)
  -log string
        Log file for simulation output (default: simulation_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/simulate-backtest/main.go

  # A week of runs with more locations
  go run cmd/simulate-backtest/main.go -days 7 -gsps 10

  # Reproduce a previous simulation
  go run cmd/simulate-backtest/main.go -seed 42 -dir simulated_backtest_42
`)
}

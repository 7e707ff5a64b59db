package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/sim"
)

// Default configuration constants.
const (
	defaultDays       = 2
	defaultIssues     = 8
	defaultHorizons   = 16
	defaultExtraGSPs  = 3
	defaultSeed       = 1
	defaultStart      = "2021-06-01"
	defaultSimTimeout = 10 * time.Minute
)

func main() {
	var (
		dir      = flag.String("dir", "", "Working directory for generated files (default: simulated_backtest_TIMESTAMP)")
		days     = flag.Int("days", defaultDays, "Days of issue times to simulate")
		issues   = flag.Int("issues", defaultIssues, "Forecast runs per source per day; must divide 24 evenly")
		horizons = flag.Int("horizons", defaultHorizons, "Half-hour steps per intraday run")
		gsps     = flag.Int("gsps", defaultExtraGSPs, "Regional locations generated besides the national aggregate")
		workers  = flag.Int("workers", runtime.NumCPU(), "Number of concurrent run writers")
		seed     = flag.Int64("seed", defaultSeed, "Generator seed; equal seeds reproduce a simulation exactly")
		start    = flag.String("start", defaultStart, "First issue time, YYYY-MM-DD")
		logFile  = flag.String("log", "", "Log file for simulation output (default: simulation_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		sim.ShowHelp()
		return
	}

	// Setup logging
	if err := sim.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	firstIssue, err := time.Parse("2006-01-02", *start)
	if err != nil {
		os.Stderr.WriteString("Invalid start date: " + err.Error() + "\n")
		return
	}

	workDir := *dir
	if workDir == "" {
		workDir = "simulated_backtest_" + time.Now().Format("20060102_150405")
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultSimTimeout)
	defer cancel()

	// Create simulation configuration
	config := &sim.Config{
		Dir:          workDir,
		Days:         *days,
		IssuesPerDay: *issues,
		Horizons:     *horizons,
		ExtraGSPs:    *gsps,
		Workers:      *workers,
		Seed:         *seed,
		Start:        firstIssue,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	// Run the simulation
	if err := sim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}

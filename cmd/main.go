package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	pipeline "github.com/openclimatefix/uk-pv-backtest/internal/app"
	"github.com/openclimatefix/uk-pv-backtest/internal/config"
	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
	"github.com/openclimatefix/uk-pv-backtest/pkg/metrics"
)

// Build metadata, set via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

var (
	// Global flags
	configPath  string
	logLevel    string
	metricsAddr string

	// Loaded configuration, shared by every subcommand
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "uk-pv-backtest",
	Short: "Format and verify UK solar generation backtests",
	Long: `uk-pv-backtest turns raw per-run forecast files into the canonical
backtest output: it consolidates run archives, extracts a location,
blends intraday and day-ahead trajectories, rescales against the PVLive
generation series and checks the result for coverage holes.

Stages run one at a time and write plain CSV, so any intermediate file
can be inspected or rebuilt on its own.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		if err := logger.Init(); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		// Load configuration (defaults -> optional file -> env)
		var err error
		cfg, err = config.Load(cmd.Context(), configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Apply configured log level (fallback to info on invalid input)
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			logger.Get().Warn(cmd.Context(), "invalid log level; falling back to info",
				logger.String("log_level", cfg.LogLevel), logger.Error(err))
			_ = logger.SetLevelString("info")
		}

		// Long backtests expose progress counters on the metrics listener.
		if cmd.Flags().Changed("metrics-addr") {
			cfg.MetricsAddr = metricsAddr
		}
		if cfg.MetricsAddr != "" {
			go func() {
				if err := metrics.Serve(cmd.Context(), cfg.MetricsAddr); err != nil {
					logger.Get().Warn(cmd.Context(), "metrics listener stopped", logger.Error(err))
				}
			}()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (or set UKPV_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log verbosity: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newPipeline builds the pipeline a subcommand runs against the loaded
// configuration.
func newPipeline() *pipeline.Pipeline {
	return pipeline.New(cfg)
}

// parseTimeFlag reads a timestamp flag as RFC3339 or a bare date. An empty
// value maps to the zero time.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither RFC3339 nor YYYY-MM-DD", value)
	}
	return t, nil
}

package sim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/table"
	pipeline "github.com/openclimatefix/uk-pv-backtest/internal/app"
	appconfig "github.com/openclimatefix/uk-pv-backtest/internal/config"
	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// layout names every file the simulation produces under the working
// directory.
type layout struct {
	intradayRuns    string
	dayAheadRuns    string
	intradayArchive string
	dayAheadArchive string
	intradayFlat    string
	dayAheadFlat    string
	dayAheadDense   string
	reference       string
	blended         string
	final           string
	gaps            string
	firstBlend      string
	secondBlend     string
	firstHalf       string
	secondHalf      string
	rejoined        string
}

// newLayout lays the simulation files out under the working directory. The
// final output carries the canonical forecast filename for its range.
func newLayout(config *Config) layout {
	dir := config.Dir
	final := table.BuildName("1.0",
		[]table.ModelRef{{Name: "synthetic", Version: "1"}},
		config.Start, lastValidTime(config))
	return layout{
		intradayRuns:    filepath.Join(dir, "intraday-runs"),
		dayAheadRuns:    filepath.Join(dir, "dayahead-runs"),
		intradayArchive: filepath.Join(dir, "intraday_archive.csv.gz"),
		dayAheadArchive: filepath.Join(dir, "dayahead_archive.csv.gz"),
		intradayFlat:    filepath.Join(dir, "intraday.csv"),
		dayAheadFlat:    filepath.Join(dir, "dayahead.csv"),
		dayAheadDense:   filepath.Join(dir, "dayahead_30m.csv"),
		reference:       filepath.Join(dir, "pvlive.csv"),
		blended:         filepath.Join(dir, "blended.csv"),
		final:           filepath.Join(dir, final),
		gaps:            filepath.Join(dir, "gaps.csv"),
		firstBlend:      filepath.Join(dir, "first_half_blend.csv"),
		secondBlend:     filepath.Join(dir, "second_half_blend.csv"),
		firstHalf:       filepath.Join(dir, "first_half.csv.gz"),
		secondHalf:      filepath.Join(dir, "second_half.csv.gz"),
		rejoined:        filepath.Join(dir, "rejoined.csv.gz"),
	}
}

// pipelineConfig builds the configuration the simulated pipeline runs under:
// normalized forecast values and zero-horizon backfill on.
func pipelineConfig(ctx context.Context) *appconfig.Config {
	cfg := appconfig.New(ctx)
	cfg.Normalized = true
	cfg.BackfillZeroHorizon = true
	return cfg
}

// Run executes the complete simulated backtest.
func Run(ctx context.Context, config *Config) error {
	if config.Days < 1 || config.IssuesPerDay < 1 || config.Horizons < 1 {
		return fmt.Errorf("days, issues and horizons must all be positive")
	}
	if HoursPerDay%config.IssuesPerDay != 0 {
		return fmt.Errorf("issues per day must divide %d evenly, got %d", HoursPerDay, config.IssuesPerDay)
	}
	if config.Days*config.IssuesPerDay < 2 {
		return fmt.Errorf("need at least two issue times, got %d", config.Days*config.IssuesPerDay)
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting simulated backtest",
		logger.String("dir", config.Dir),
		logger.Int("days", config.Days),
		logger.Int("issuesPerDay", config.IssuesPerDay),
		logger.Int("horizons", config.Horizons),
		logger.Int("extraGSPs", config.ExtraGSPs),
		logger.Int("workers", config.Workers),
		logger.Any("seed", config.Seed),
		logger.Time("start", config.Start),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	files := newLayout(config)

	// Step 1: Prepare the working directory
	for _, dir := range []string{config.Dir, files.intradayRuns, files.dayAheadRuns} {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Step 2: Generate synthetic forecast runs
	if err := generateRuns(ctx, config, stats); err != nil {
		return fmt.Errorf("run generation failed: %w", err)
	}

	// Step 3: Generate the reference series
	if _, err := generateReference(ctx, config, files.reference); err != nil {
		return fmt.Errorf("reference generation failed: %w", err)
	}

	p := pipeline.New(pipelineConfig(ctx))

	// Step 4: Compile both sources
	intradayStats, err := p.Compile(ctx, files.intradayRuns, files.intradayArchive)
	if err != nil {
		return fmt.Errorf("intraday compile failed: %w", err)
	}
	dayAheadStats, err := p.Compile(ctx, files.dayAheadRuns, files.dayAheadArchive)
	if err != nil {
		return fmt.Errorf("day-ahead compile failed: %w", err)
	}
	if got := intradayStats.FilesRead + dayAheadStats.FilesRead; got != stats.RunsGenerated {
		return fmt.Errorf("compiled %d of %d generated runs", got, stats.RunsGenerated)
	}

	// Step 5: Extract the national aggregate
	extracted, err := p.Extract(ctx, files.intradayArchive, files.intradayFlat)
	if err != nil {
		return fmt.Errorf("intraday extract failed: %w", err)
	}
	stats.RowsExtracted = extracted
	extracted, err = p.Extract(ctx, files.dayAheadArchive, files.dayAheadFlat)
	if err != nil {
		return fmt.Errorf("day-ahead extract failed: %w", err)
	}
	stats.RowsExtracted += extracted

	// Step 6: Resample the day-ahead table to the half-hour grid
	resampled, err := p.Resample(ctx, files.dayAheadFlat, files.dayAheadDense)
	if err != nil {
		return fmt.Errorf("resample failed: %w", err)
	}
	stats.RowsResampled = resampled

	// Step 7: Blend the two sources
	blendStats, err := p.Blend(ctx, pipeline.BlendRequest{
		IntradayPath: files.intradayFlat,
		DayAheadPath: files.dayAheadDense,
		Output:       files.blended,
	})
	if err != nil {
		return fmt.Errorf("blend failed: %w", err)
	}
	stats.RowsBlended = blendStats.Blended + blendStats.IntradayOnly +
		blendStats.DayAheadOnly + blendStats.Backfilled

	// Step 8: Format against the reference
	formatted, err := p.Format(ctx, pipeline.FormatRequest{
		InputPath:     files.blended,
		ReferencePath: files.reference,
		Output:        files.final,
	})
	if err != nil {
		return fmt.Errorf("format failed: %w", err)
	}
	stats.RowsFormatted = formatted

	// Step 9: Scan for coverage gaps
	_, summary, err := p.Gaps(ctx, pipeline.GapsRequest{
		InputPath: files.final,
		Output:    files.gaps,
	})
	if err != nil {
		return fmt.Errorf("gap scan failed: %w", err)
	}
	stats.GapsFound = summary.Gaps

	// Step 10: Rebuild the output from two windowed halves
	mid := config.Start.Add(time.Duration(config.Days*HoursPerDay/2) * time.Hour)
	if _, err := p.Blend(ctx, pipeline.BlendRequest{
		IntradayPath: files.intradayFlat,
		DayAheadPath: files.dayAheadDense,
		Output:       files.firstBlend,
		Until:        mid,
	}); err != nil {
		return fmt.Errorf("first-half blend failed: %w", err)
	}
	if _, err := p.Blend(ctx, pipeline.BlendRequest{
		IntradayPath: files.intradayFlat,
		DayAheadPath: files.dayAheadDense,
		Output:       files.secondBlend,
		From:         mid,
	}); err != nil {
		return fmt.Errorf("second-half blend failed: %w", err)
	}
	if _, err := p.Format(ctx, pipeline.FormatRequest{
		InputPath:     files.firstBlend,
		ReferencePath: files.reference,
		Output:        files.firstHalf,
	}); err != nil {
		return fmt.Errorf("first-half format failed: %w", err)
	}
	if _, err := p.Format(ctx, pipeline.FormatRequest{
		InputPath:     files.secondBlend,
		ReferencePath: files.reference,
		Output:        files.secondHalf,
	}); err != nil {
		return fmt.Errorf("second-half format failed: %w", err)
	}
	rejoined, err := p.Join(ctx, files.firstHalf, files.secondHalf, files.rejoined)
	if err != nil {
		return fmt.Errorf("join failed: %w", err)
	}
	stats.RowsRejoined = rejoined

	// Step 11: Verify results
	if err := verifyResults(ctx, config, files, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var checkPassRate, rowsPerSecond float64

	if stats.ChecksRun > 0 {
		checkPassRate = float64(stats.ChecksRun-stats.ChecksFailed) / float64(stats.ChecksRun) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		rowsPerSecond = float64(stats.RowsGenerated) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("runsGenerated", stats.RunsGenerated),
		logger.Int("rowsGenerated", stats.RowsGenerated),
		logger.Int("rowsExtracted", stats.RowsExtracted),
		logger.Int("rowsResampled", stats.RowsResampled),
		logger.Int("rowsBlended", stats.RowsBlended),
		logger.Int("rowsFormatted", stats.RowsFormatted),
		logger.Int("rowsRejoined", stats.RowsRejoined),
		logger.Int("gapsFound", stats.GapsFound),
		logger.Int("checksRun", stats.ChecksRun),
		logger.Int("checksFailed", stats.ChecksFailed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("checkPassRate", checkPassRate),
		logger.Float64("rowsPerSecond", rowsPerSecond))
}

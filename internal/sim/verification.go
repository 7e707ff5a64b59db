package sim

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/table"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// verifyResults checks the simulation output for the properties the pipeline
// guarantees.
func verifyResults(ctx context.Context, config *Config, files layout, stats *Stats) error {
	log.Println("🔍 Verifying results...")

	blended, err := table.ReadFlat(files.blended)
	if err != nil {
		return fmt.Errorf("failed to read blended table: %w", err)
	}
	final, err := table.ReadCanonical(files.final)
	if err != nil {
		return fmt.Errorf("failed to read final output: %w", err)
	}
	rejoined, err := table.ReadCanonical(files.rejoined)
	if err != nil {
		return fmt.Errorf("failed to read rejoined output: %w", err)
	}

	checks := []struct {
		name string
		err  error
	}{
		{"blend coverage", verifyBlendCoverage(config, files, blended)},
		{"output ordering", verifyOrdering(final)},
		{"quantile envelope", verifyQuantileEnvelope(final)},
		{"night clamp", verifyNightClamp(final)},
		{"gap free", verifyGapFree(stats)},
		{"split and rejoin", verifyRejoin(final, rejoined)},
	}
	for _, check := range checks {
		stats.ChecksRun++
		if check.err != nil {
			stats.ChecksFailed++
			log.Printf("⚠️  %s: %v", check.name, check.err)
			continue
		}
		log.Printf("✅ %s", check.name)
	}

	displayGenerationStats(final, config.Verbose)

	if stats.ChecksFailed > 0 {
		return fmt.Errorf("%d of %d checks failed", stats.ChecksFailed, stats.ChecksRun)
	}

	log.Println("✅ Result verification completed")
	return nil
}

// verifyBlendCoverage checks the blended table holds the union of its input
// keys exactly once, plus one backfilled zero-horizon row per quantile for
// every issue after the first.
func verifyBlendCoverage(config *Config, files layout, blended []model.ForecastRow) error {
	intraday, err := table.ReadFlat(files.intradayFlat)
	if err != nil {
		return fmt.Errorf("failed to read intraday table: %w", err)
	}
	dayAhead, err := table.ReadFlat(files.dayAheadDense)
	if err != nil {
		return fmt.Errorf("failed to read day-ahead table: %w", err)
	}

	union := make(map[model.RowKey]struct{}, len(intraday)+len(dayAhead))
	for _, r := range intraday {
		union[r.Key()] = struct{}{}
	}
	for _, r := range dayAhead {
		union[r.Key()] = struct{}{}
	}

	seen := make(map[model.RowKey]struct{}, len(blended))
	backfilled := 0
	for _, r := range blended {
		key := r.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate key in blended table: %s", key)
		}
		seen[key] = struct{}{}
		if _, ok := union[key]; !ok {
			if !r.ValidTime.Equal(r.IssueTime) {
				return fmt.Errorf("key outside both inputs: %s", key)
			}
			backfilled++
		}
	}
	for key := range union {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("key missing from blended table: %s", key)
		}
	}

	// One row per quantile for every issue with a predecessor.
	want := (config.Days*config.IssuesPerDay - 1) * 3
	if backfilled != want {
		return fmt.Errorf("backfilled %d zero-horizon rows, want %d", backfilled, want)
	}
	return nil
}

// verifyOrdering checks the final output is sorted by creation time, then
// settlement period start.
func verifyOrdering(final []model.OutputRow) error {
	if len(final) == 0 {
		return fmt.Errorf("final output is empty")
	}
	for i := 1; i < len(final); i++ {
		prev, cur := final[i-1], final[i]
		if cur.CreationTime.Before(prev.CreationTime) {
			return fmt.Errorf("rows %d and %d are out of creation-time order", i-1, i)
		}
		if cur.CreationTime.Equal(prev.CreationTime) && cur.StartTime.Before(prev.StartTime) {
			return fmt.Errorf("rows %d and %d are out of start-time order", i-1, i)
		}
	}
	return nil
}

// verifyQuantileEnvelope checks p10 <= expected <= p90 on every row. The
// night clamp preserves the envelope because it is monotone.
func verifyQuantileEnvelope(final []model.OutputRow) error {
	for i, r := range final {
		if r.P10 > r.GenerationMW || r.GenerationMW > r.P90 {
			return fmt.Errorf("row %d breaks the quantile envelope: p10=%.3f expected=%.3f p90=%.3f",
				i, r.P10, r.GenerationMW, r.P90)
		}
	}
	return nil
}

// verifyNightClamp checks that settlement periods outside daylight carry
// zero generation.
func verifyNightClamp(final []model.OutputRow) error {
	clamped := 0
	for i, r := range final {
		if curveMW(r.EndTime) > 0 {
			continue
		}
		if r.GenerationMW != 0 {
			return fmt.Errorf("row %d carries %.4f MW at %s, outside daylight",
				i, r.GenerationMW, r.EndTime.Format("15:04"))
		}
		clamped++
	}
	if clamped == 0 {
		return fmt.Errorf("no night rows found")
	}
	return nil
}

// verifyGapFree checks the coverage scan found nothing.
func verifyGapFree(stats *Stats) error {
	if stats.GapsFound != 0 {
		return fmt.Errorf("coverage scan found %d gaps", stats.GapsFound)
	}
	return nil
}

// verifyRejoin checks the windowed halves rebuild the full output. The
// second half's first issue has no predecessor inside its window, so exactly
// one zero-horizon row is absent from the rejoined table.
func verifyRejoin(final, rejoined []model.OutputRow) error {
	want := len(final) - 1
	if len(rejoined) != want {
		return fmt.Errorf("rejoined output has %d rows, want %d", len(rejoined), want)
	}
	if len(rejoined) == 0 {
		return nil
	}
	if !rejoined[0].CreationTime.Equal(final[0].CreationTime) {
		return fmt.Errorf("rejoined output starts at issue %s, want %s",
			rejoined[0].CreationTime.Format("2006-01-02 15:04"),
			final[0].CreationTime.Format("2006-01-02 15:04"))
	}
	last, full := rejoined[len(rejoined)-1], final[len(final)-1]
	if !last.CreationTime.Equal(full.CreationTime) || !last.EndTime.Equal(full.EndTime) {
		return fmt.Errorf("rejoined output ends on a different row")
	}
	return nil
}

// displayGenerationStats summarizes the final generation distribution.
func displayGenerationStats(final []model.OutputRow, verbose bool) {
	if !verbose || len(final) == 0 {
		return
	}

	values := make([]float64, len(final))
	for i, r := range final {
		values[i] = r.GenerationMW
	}
	sort.Float64s(values)

	log.Printf(`📊 Generation statistics:
   Mean: %.1f MW
   Std dev: %.1f MW
   Median: %.1f MW
   95th percentile: %.1f MW
   Maximum: %.1f MW
`,
		stat.Mean(values, nil),
		stat.StdDev(values, nil),
		stat.Quantile(0.5, stat.Empirical, values, nil),
		stat.Quantile(0.95, stat.Empirical, values, nil),
		values[len(values)-1])
}

package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/archive"
	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/pvlive"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
)

// runSpec describes one synthetic forecast run to generate.
type runSpec struct {
	source   string
	issue    time.Time
	step     time.Duration
	horizons int
	noise    float64
}

// curveMW returns the clear-sky generation at t in MW, zero outside daylight
// hours. The generator and the verification checks share this curve.
func curveMW(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	if h <= SunriseHour || h >= SunsetHour {
		return 0
	}
	phase := (h - SunriseHour) / (SunsetHour - SunriseHour)
	return EffectiveCapacityMW * PeakFraction * math.Sin(math.Pi*phase)
}

// issueSpacing returns the gap between consecutive issue times.
func issueSpacing(config *Config) time.Duration {
	return time.Duration(HoursPerDay/config.IssuesPerDay) * time.Hour
}

// buildSpecs lists every run both sources will produce.
func buildSpecs(config *Config) []runSpec {
	spacing := issueSpacing(config)
	specs := make([]runSpec, 0, 2*config.Days*config.IssuesPerDay)
	for day := 0; day < config.Days; day++ {
		for i := 0; i < config.IssuesPerDay; i++ {
			issue := config.Start.AddDate(0, 0, day).Add(time.Duration(i) * spacing)
			specs = append(specs,
				runSpec{source: "intraday", issue: issue, step: 30 * time.Minute, horizons: config.Horizons, noise: IntradayNoise},
				runSpec{source: "dayahead", issue: issue, step: time.Hour, horizons: DayAheadHorizonHours, noise: DayAheadNoise},
			)
		}
	}
	return specs
}

// rows generates one run's rows as normalized capacity fractions. Daylight
// values carry horizon noise around the curve; night values are tiny
// residuals the formatter clamps to zero. Locations beyond the national
// aggregate are scaled down so extraction has something to discard.
//
// The row RNG is seeded from the run identity, not the worker, so a fixed
// seed reproduces every file no matter how specs land on workers.
func (s runSpec) rows(seed int64, extraGSPs int) []model.LocatedRow {
	rng := rand.New(rand.NewSource(seed ^ s.issue.Unix() ^ int64(s.step)))
	quantiles := []struct {
		quantile model.Quantile
		spread   float64
	}{
		{model.P10, P10Scale},
		{model.Expected, 1},
		{model.P90, P90Scale},
	}

	rows := make([]model.LocatedRow, 0, s.horizons*len(quantiles)*(extraGSPs+1))
	for step := 1; step <= s.horizons; step++ {
		valid := s.issue.Add(time.Duration(step) * s.step)
		frac := curveMW(valid) / InstalledCapacityMW
		if frac > 0 {
			frac *= 1 + s.noise*(2*rng.Float64()-1)
		} else {
			frac = rng.Float64() * NightResidual
		}
		for gsp := 0; gsp <= extraGSPs; gsp++ {
			scale := 1 / float64(gsp+1)
			for _, q := range quantiles {
				rows = append(rows, model.LocatedRow{
					GSP: gsp,
					ForecastRow: model.ForecastRow{
						IssueTime: s.issue,
						ValidTime: valid,
						Quantile:  q.quantile,
						Value:     frac * q.spread * scale,
					},
				})
			}
		}
	}
	return rows
}

// generateRuns writes every synthetic run file using a worker pool.
func generateRuns(ctx context.Context, config *Config, stats *Stats) error {
	specs := buildSpecs(config)
	logger.Get().Info(ctx, "generating synthetic forecast runs",
		logger.Int("runs", len(specs)),
		logger.Int("workers", config.Workers),
		logger.Any("seed", config.Seed))

	specChan := make(chan runSpec, WorkerChannelMultiplier*config.Workers)
	errChan := make(chan error, len(specs))

	var (
		runs int64
		rows int64
		wg   sync.WaitGroup
	)

	workerCount := minInt(config.Workers, len(specs))
	for worker := 0; worker < workerCount; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range specChan {
				select {
				case <-ctx.Done():
					errChan <- ctx.Err()
					return
				default:
				}
				generated := spec.rows(config.Seed, config.ExtraGSPs)
				name := filepath.Join(config.Dir, spec.source+"-runs",
					spec.source+"_"+spec.issue.Format("20060102T1504")+".csv")
				if err := archive.WriteConsolidated(name, generated); err != nil {
					errChan <- fmt.Errorf("failed to write %s: %w", name, err)
					return
				}
				atomic.AddInt64(&runs, 1)
				atomic.AddInt64(&rows, int64(len(generated)))
			}
		}()
	}

	go func() {
		defer close(specChan)
		for _, spec := range specs {
			select {
			case <-ctx.Done():
				return
			case specChan <- spec:
			}
		}
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return err
		}
	}

	stats.RunsGenerated = int(atomic.LoadInt64(&runs))
	stats.RowsGenerated = int(atomic.LoadInt64(&rows))
	logger.Get().Info(ctx, "generated runs successfully",
		logger.Int("runs", stats.RunsGenerated),
		logger.Int("rows", stats.RowsGenerated))
	return nil
}

// generateReference writes the measured-generation series covering every
// instant a forecast can reach, including the zero-horizon rows backfill
// adds.
func generateReference(ctx context.Context, config *Config, path string) (int, error) {
	last := lastValidTime(config)
	rows := make([]model.ReferenceRow, 0, int(last.Sub(config.Start)/(30*time.Minute))+1)
	for end := config.Start; !end.After(last); end = end.Add(30 * time.Minute) {
		rows = append(rows, model.ReferenceRow{
			StartTime:         end.Add(-30 * time.Minute),
			EndTime:           end,
			GenerationMW:      curveMW(end),
			CapacityMW:        EffectiveCapacityMW,
			InstalledCapacity: InstalledCapacityMW,
		})
	}
	if err := pvlive.WriteCache(path, rows); err != nil {
		return 0, fmt.Errorf("failed to write reference series: %w", err)
	}

	logger.Get().Info(ctx, "reference series written",
		logger.Int("rows", len(rows)),
		logger.Time("start", config.Start),
		logger.Time("end", last))
	return len(rows), nil
}

// lastValidTime returns the latest instant any generated forecast covers.
func lastValidTime(config *Config) time.Time {
	lastIssue := config.Start.AddDate(0, 0, config.Days-1).
		Add(time.Duration(config.IssuesPerDay-1) * issueSpacing(config))
	return lastIssue.Add(DayAheadHorizonHours * time.Hour)
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

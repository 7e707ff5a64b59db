// Package resample densifies forecast tables onto a finer valid-time grid.
package resample

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/dedupe"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// DefaultTarget is the grid the output lands on.
const DefaultTarget = 30 * time.Minute

// Option applies a configuration option to the Resampler.
type Option func(*Resampler)

// WithTarget sets the output grid spacing.
func WithTarget(target time.Duration) Option {
	return func(r *Resampler) {
		if target > 0 {
			r.target = target
		}
	}
}

// Resampler interpolates each (issue time, quantile) series linearly onto
// the target grid. Midpoints of an hourly series come out as the average of
// the surrounding hourly values.
type Resampler struct {
	target time.Duration
}

// New creates a Resampler with configuration options.
func New(opts ...Option) *Resampler {
	r := &Resampler{
		target: DefaultTarget,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resample returns a flat table covering every target step from the first to
// the last valid time of each series. Series with fewer than two points pass
// through unchanged. Duplicate valid times within a series are rejected.
func (r *Resampler) Resample(ctx context.Context, rows []model.ForecastRow) ([]model.ForecastRow, error) {
	type seriesKey struct {
		issue    int64
		quantile model.Quantile
	}

	grouped := make(map[seriesKey][]model.ForecastRow)
	tracker := dedupe.NewInMemoryTracker()
	for _, row := range rows {
		if tracker.SeenAndRecord(ctx, row.Key()) {
			return nil, fmt.Errorf("%w: %s", dedupe.ErrDuplicateRow, row.Key())
		}
		k := seriesKey{issue: row.IssueTime.Unix(), quantile: row.Quantile}
		grouped[k] = append(grouped[k], row)
	}

	out := make([]model.ForecastRow, 0, len(rows)*2)
	for _, series := range grouped {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sort.Slice(series, func(i, j int) bool {
			return series[i].ValidTime.Before(series[j].ValidTime)
		})

		if len(series) < 2 {
			out = append(out, series...)
			continue
		}

		xs := make([]float64, len(series))
		ys := make([]float64, len(series))
		for i, row := range series {
			xs[i] = float64(row.ValidTime.Unix())
			ys[i] = row.Value
		}

		var line interp.PiecewiseLinear
		if err := line.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("fit series issued %s: %w",
				series[0].IssueTime.UTC().Format(time.RFC3339), err)
		}

		issue := series[0].IssueTime
		quantile := series[0].Quantile
		last := series[len(series)-1].ValidTime
		for at := series[0].ValidTime; !at.After(last); at = at.Add(r.target) {
			out = append(out, model.ForecastRow{
				IssueTime: issue,
				ValidTime: at,
				Quantile:  quantile,
				Value:     line.Predict(float64(at.Unix())),
			})
		}
	}

	model.SortRows(out)
	return out, nil
}

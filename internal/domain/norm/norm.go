// Package norm turns blended forecast tables into canonical output rows by
// joining them against the live generation reference series.
package norm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// DefaultNightThreshold is the capacity fraction below which a normalized
// value is treated as night noise and clamped to zero.
const DefaultNightThreshold = 0.000234

// defaultInterval is the settlement period length.
const defaultInterval = 30 * time.Minute

// Option applies a configuration option to the Rescaler.
type Option func(*Rescaler)

// WithNormalizedInput marks the input values as capacity fractions that must
// be clamped and rescaled by installed capacity.
func WithNormalizedInput(enabled bool) Option {
	return func(r *Rescaler) {
		r.normalized = enabled
	}
}

// WithNightThreshold sets the clamp threshold for normalized values.
func WithNightThreshold(threshold float64) Option {
	return func(r *Rescaler) {
		if threshold >= 0 {
			r.nightThreshold = threshold
		}
	}
}

// WithInterval sets the settlement period length used to derive period
// starts from valid times.
func WithInterval(interval time.Duration) Option {
	return func(r *Rescaler) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// Rescaler maps blended rows and the reference series to canonical output
// rows.
type Rescaler struct {
	normalized     bool
	nightThreshold float64
	interval       time.Duration
}

// New creates a Rescaler with configuration options.
func New(opts ...Option) *Rescaler {
	r := &Rescaler{
		nightThreshold: DefaultNightThreshold,
		interval:       defaultInterval,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// group collects the quantile values of one output row.
type group struct {
	issue, valid time.Time
	values       map[model.Quantile]float64
}

// Rescale joins rows against the reference on valid time and produces one
// canonical row per (issue time, valid time). Every valid time must have a
// reference observation; the first one without aborts the run so no partial
// output is written.
func (r *Rescaler) Rescale(ctx context.Context, rows []model.ForecastRow, ref []model.ReferenceRow) ([]model.OutputRow, error) {
	byEnd := make(map[int64]model.ReferenceRow, len(ref))
	for _, obs := range ref {
		byEnd[obs.EndTime.Unix()] = obs
	}

	groups := make(map[[2]int64]*group, len(rows)/3+1)
	for _, row := range rows {
		gk := [2]int64{row.IssueTime.Unix(), row.ValidTime.Unix()}
		g, ok := groups[gk]
		if !ok {
			g = &group{issue: row.IssueTime, valid: row.ValidTime, values: make(map[model.Quantile]float64, 3)}
			groups[gk] = g
		}
		g.values[row.Quantile] = row.Value
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].issue.Equal(ordered[j].issue) {
			return ordered[i].issue.Before(ordered[j].issue)
		}
		return ordered[i].valid.Before(ordered[j].valid)
	})

	out := make([]model.OutputRow, 0, len(ordered))
	for _, g := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obs, ok := byEnd[g.valid.Unix()]
		if !ok {
			return nil, fmt.Errorf("%w: no reference observation ending %s",
				ErrMissingCapacity, g.valid.UTC().Format(time.RFC3339))
		}

		p10, ok10 := g.values[model.P10]
		exp, okExp := g.values[model.Expected]
		p90, ok90 := g.values[model.P90]
		if !ok10 || !okExp || !ok90 {
			return nil, fmt.Errorf("incomplete quantile set for issue=%s valid=%s (have %d of 3)",
				g.issue.UTC().Format(time.RFC3339), g.valid.UTC().Format(time.RFC3339), len(g.values))
		}

		out = append(out, model.OutputRow{
			CreationTime: g.issue.UTC(),
			StartTime:    g.valid.UTC().Add(-r.interval),
			EndTime:      g.valid.UTC(),
			CapacityMW:   obs.CapacityMW,
			GenerationMW: r.toMW(exp, obs),
			P10:          r.toMW(p10, obs),
			P90:          r.toMW(p90, obs),
		})
	}

	return out, nil
}

// toMW converts a forecast value to megawatts. Normalized values at or below
// the night threshold are zeroed before rescaling; absolute values pass
// through untouched.
func (r *Rescaler) toMW(v float64, obs model.ReferenceRow) float64 {
	if !r.normalized {
		return v
	}
	if v <= r.nightThreshold {
		return 0
	}
	return v * obs.InstalledCapacity
}

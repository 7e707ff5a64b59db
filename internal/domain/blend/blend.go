// Package blend merges intraday and day-ahead forecast tables into a single
// trajectory per issue time.
//
// The two inputs are outer-joined on (issue time, valid time, quantile).
// Where both sides carry a value the output is the horizon-weighted average
// w*intraday + (1-w)*day-ahead; where only one side does, the configured
// single-source policy decides whether the value passes through or is
// dropped.
package blend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/dedupe"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/weighting"
)

// Policy names the handling of rows present on only one side of the join.
type Policy string

// Single-source policies.
const (
	// Passthrough copies the single-sided value unchanged.
	Passthrough Policy = "passthrough"
	// Drop discards single-sided rows.
	Drop Policy = "drop"
)

// ParsePolicy validates a single-source policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case Passthrough:
		return Passthrough, nil
	case Drop:
		return Drop, nil
	default:
		return "", fmt.Errorf("%w: unknown single-source policy %q", ErrInvalidPolicy, s)
	}
}

// Stats summarizes one blend run.
type Stats struct {
	Blended      int // keys present on both sides
	IntradayOnly int // keys carried from the intraday table alone
	DayAheadOnly int // keys carried from the day-ahead table alone
	Dropped      int // single-sided keys removed by the drop policy
	Backfilled   int // zero-horizon rows synthesized from the previous issue
	Windowed     int // keys excluded by the issue-time window
}

// Option applies a configuration option to the Blender.
type Option func(*Blender)

// WithPolicy sets the single-source policy.
func WithPolicy(p Policy) Option {
	return func(b *Blender) {
		b.policy = p
	}
}

// WithIssueWindow restricts output to issue times in the half-open interval
// [from, until). A zero time leaves that side of the window open.
func WithIssueWindow(from, until time.Time) Option {
	return func(b *Blender) {
		b.from = from
		b.until = until
	}
}

// WithZeroHorizonBackfill fills the value at horizon zero from the previous
// issue's forecast for the same valid time.
func WithZeroHorizonBackfill(enabled bool) Option {
	return func(b *Blender) {
		b.backfill = enabled
	}
}

// Blender joins two flat tables under a weighting ramp.
type Blender struct {
	ramp     *weighting.Ramp
	policy   Policy
	from     time.Time
	until    time.Time
	backfill bool
}

// New builds a Blender. The ramp is required; the window, when both bounds
// are set, must be non-empty.
func New(ramp *weighting.Ramp, opts ...Option) (*Blender, error) {
	if ramp == nil {
		return nil, fmt.Errorf("%w: ramp is required", weighting.ErrInvalidRamp)
	}

	b := &Blender{
		ramp:   ramp,
		policy: Passthrough,
	}

	for _, opt := range opts {
		opt(b)
	}

	if _, err := ParsePolicy(string(b.policy)); err != nil {
		return nil, err
	}
	if !b.from.IsZero() && !b.until.IsZero() && !b.from.Before(b.until) {
		return nil, fmt.Errorf("%w: issue window [%s, %s) is empty",
			ErrInvalidWindow, b.from.Format(time.RFC3339), b.until.Format(time.RFC3339))
	}

	return b, nil
}

// Blend outer-joins the intraday and day-ahead tables and returns the merged
// table sorted by issue time, valid time and quantile, with exactly one row
// per key. Either input may be empty, in which case the other passes through
// under the passthrough policy.
func (b *Blender) Blend(ctx context.Context, intraday, dayAhead []model.ForecastRow) ([]model.ForecastRow, Stats, error) {
	var stats Stats

	id, err := index(ctx, intraday, "intraday")
	if err != nil {
		return nil, stats, err
	}
	da, err := index(ctx, dayAhead, "day-ahead")
	if err != nil {
		return nil, stats, err
	}

	out := make(map[model.RowKey]float64, len(id)+len(da))

	for key, v := range id {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if !b.inWindow(key) {
			stats.Windowed++
			continue
		}
		dv, both := da[key]
		if !both {
			if b.policy == Drop {
				stats.Dropped++
				continue
			}
			stats.IntradayOnly++
			out[key] = v
			continue
		}
		w := b.ramp.Weight(key.ValidTime().Sub(key.IssueTime()))
		out[key] = w*v + (1-w)*dv
		stats.Blended++
	}

	for key, v := range da {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if _, done := id[key]; done {
			continue // already joined above
		}
		if !b.inWindow(key) {
			stats.Windowed++
			continue
		}
		if b.policy == Drop {
			stats.Dropped++
			continue
		}
		stats.DayAheadOnly++
		out[key] = v
	}

	if b.backfill {
		stats.Backfilled = backfillZeroHorizon(out)
	}

	rows := make([]model.ForecastRow, 0, len(out))
	for key, v := range out {
		rows = append(rows, model.ForecastRow{
			IssueTime: key.IssueTime(),
			ValidTime: key.ValidTime(),
			Quantile:  key.Quantile,
			Value:     v,
		})
	}
	model.SortRows(rows)

	return rows, stats, nil
}

// inWindow reports whether the key's issue time falls inside the configured
// half-open window.
func (b *Blender) inWindow(key model.RowKey) bool {
	issue := key.IssueTime()
	if !b.from.IsZero() && issue.Before(b.from) {
		return false
	}
	if !b.until.IsZero() && !issue.Before(b.until) {
		return false
	}
	return true
}

// index builds a key-to-value map from a flat table and rejects duplicate
// keys within the table.
func index(ctx context.Context, rows []model.ForecastRow, side string) (map[model.RowKey]float64, error) {
	tracker := dedupe.NewInMemoryTracker()
	m := make(map[model.RowKey]float64, len(rows))
	for _, r := range rows {
		key := r.Key()
		if tracker.SeenAndRecord(ctx, key) {
			return nil, fmt.Errorf("%w: %s table has two rows for %s", dedupe.ErrDuplicateRow, side, key)
		}
		m[key] = r.Value
	}
	return m, nil
}

// backfillZeroHorizon adds a row at horizon zero for each issue time, taking
// the value from the previous issue's forecast for that same instant. Keys
// that already carry a horizon-zero value are left alone. Returns the number
// of rows added.
func backfillZeroHorizon(out map[model.RowKey]float64) int {
	issueSet := make(map[int64]struct{})
	for key := range out {
		issueSet[key.Issue] = struct{}{}
	}
	issues := make([]int64, 0, len(issueSet))
	for issue := range issueSet {
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i] < issues[j] })

	quantiles := make(map[model.Quantile]struct{})
	for key := range out {
		quantiles[key.Quantile] = struct{}{}
	}

	added := 0
	for i := 1; i < len(issues); i++ {
		issue, prev := issues[i], issues[i-1]
		for q := range quantiles {
			target := model.RowKey{Issue: issue, Valid: issue, Quantile: q}
			if _, exists := out[target]; exists {
				continue
			}
			source := model.RowKey{Issue: prev, Valid: issue, Quantile: q}
			if v, ok := out[source]; ok {
				out[target] = v
				added++
			}
		}
	}
	return added
}

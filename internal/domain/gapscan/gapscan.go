// Package gapscan finds holes in the regular coverage of forecast tables.
package gapscan

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// DefaultInterval is the expected spacing between consecutive timestamps.
const DefaultInterval = 30 * time.Minute

// Option applies a configuration option to the Scanner.
type Option func(*Scanner)

// WithInterval sets the expected spacing between consecutive timestamps.
func WithInterval(interval time.Duration) Option {
	return func(s *Scanner) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithIssueCadence switches the scan from per-issue valid times to the
// cadence of the issue times themselves.
func WithIssueCadence(enabled bool) Option {
	return func(s *Scanner) {
		s.issueCadence = enabled
	}
}

// Summary aggregates one scan.
type Summary struct {
	Series       int                   // series examined
	Samples      int                   // timestamps examined
	Gaps         int                   // gaps found
	MissingSteps int                   // total missing timestamps
	MeanLength   time.Duration         // mean gap length, zero when gap free
	MaxLength    time.Duration         // longest gap, zero when gap free
	ByLength     map[time.Duration]int // gap count per length
}

// Scanner detects runs of missing timestamps.
type Scanner struct {
	interval     time.Duration
	issueCadence bool
}

// New creates a Scanner with configuration options.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		interval: DefaultInterval,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scan walks the table and reports every hole larger than the expected
// interval. In the default mode each issue time's valid times form one
// series; in issue-cadence mode the distinct issue times form a single
// series. A gap-free table yields an empty slice.
func (s *Scanner) Scan(ctx context.Context, rows []model.ForecastRow) ([]model.Gap, Summary, error) {
	summary := Summary{ByLength: make(map[time.Duration]int)}

	series := s.collect(rows)
	summary.Series = len(series)

	var gaps []model.Gap
	for _, sr := range series {
		if err := ctx.Err(); err != nil {
			return nil, summary, err
		}
		summary.Samples += len(sr.at)
		for i := 1; i < len(sr.at); i++ {
			delta := sr.at[i].Sub(sr.at[i-1])
			if delta <= s.interval {
				continue
			}
			missing := int(delta/s.interval) - 1
			if missing < 1 {
				missing = 1 // irregular spacing narrower than one full step
			}
			gaps = append(gaps, model.Gap{
				IssueTime: sr.issue,
				Start:     sr.at[i-1].Add(s.interval),
				Length:    delta - s.interval,
				Missing:   missing,
			})
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		if !gaps[i].IssueTime.Equal(gaps[j].IssueTime) {
			return gaps[i].IssueTime.Before(gaps[j].IssueTime)
		}
		return gaps[i].Start.Before(gaps[j].Start)
	})

	summary.Gaps = len(gaps)
	if len(gaps) > 0 {
		lengths := make([]float64, len(gaps))
		for i, g := range gaps {
			lengths[i] = g.Length.Minutes()
			summary.MissingSteps += g.Missing
			summary.ByLength[g.Length]++
		}
		summary.MeanLength = time.Duration(stat.Mean(lengths, nil) * float64(time.Minute))
		summary.MaxLength = time.Duration(floats.Max(lengths) * float64(time.Minute))
	}

	return gaps, summary, nil
}

// serie is one ordered run of timestamps to check.
type serie struct {
	issue time.Time
	at    []time.Time
}

// collect groups the table into the series the configured mode scans.
func (s *Scanner) collect(rows []model.ForecastRow) []serie {
	if s.issueCadence {
		set := make(map[int64]time.Time)
		for _, r := range rows {
			set[r.IssueTime.Unix()] = r.IssueTime.UTC()
		}
		return []serie{{at: sortedTimes(set)}}
	}

	perIssue := make(map[int64]map[int64]time.Time)
	issueAt := make(map[int64]time.Time)
	for _, r := range rows {
		ik := r.IssueTime.Unix()
		if _, ok := perIssue[ik]; !ok {
			perIssue[ik] = make(map[int64]time.Time)
			issueAt[ik] = r.IssueTime.UTC()
		}
		perIssue[ik][r.ValidTime.Unix()] = r.ValidTime.UTC()
	}

	out := make([]serie, 0, len(perIssue))
	for ik, valids := range perIssue {
		out = append(out, serie{issue: issueAt[ik], at: sortedTimes(valids)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].issue.Before(out[j].issue) })
	return out
}

func sortedTimes(set map[int64]time.Time) []time.Time {
	ts := make([]time.Time, 0, len(set))
	for _, t := range set {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts
}

// Package model contains domain models passed between pipeline stages.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Quantile labels the slice of the forecast distribution a value belongs to.
type Quantile string

// Known quantile labels. Expected is the point estimate.
const (
	P10      Quantile = "p10"
	Expected Quantile = "expected"
	P90      Quantile = "p90"
)

// quantileOrder fixes the column order of the canonical output and the sort
// order of flat tables.
var quantileOrder = map[Quantile]int{
	P10:      0,
	Expected: 1,
	P90:      2,
}

// ParseQuantile normalizes and validates a quantile label.
func ParseQuantile(s string) (Quantile, error) {
	q := Quantile(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := quantileOrder[q]; !ok {
		return "", fmt.Errorf("unknown quantile label: %q", s)
	}
	return q, nil
}

// ParseQuantiles parses a list of labels, preserving order and rejecting
// duplicates.
func ParseQuantiles(labels []string) ([]Quantile, error) {
	out := make([]Quantile, 0, len(labels))
	seen := make(map[Quantile]bool, len(labels))
	for _, l := range labels {
		q, err := ParseQuantile(l)
		if err != nil {
			return nil, err
		}
		if seen[q] {
			return nil, fmt.Errorf("quantile listed twice: %q", q)
		}
		seen[q] = true
		out = append(out, q)
	}
	return out, nil
}

// ForecastRow is one record of a flat forecast table.
type ForecastRow struct {
	IssueTime time.Time // model run time, UTC
	ValidTime time.Time // settlement period end the value predicts, UTC
	Quantile  Quantile  // distribution slice label
	Value     float64   // predicted generation, MW or capacity fraction
}

// Horizon returns the lead time of the row.
func (r ForecastRow) Horizon() time.Duration {
	return r.ValidTime.Sub(r.IssueTime)
}

// Key returns the identifying triple used for joins and uniqueness checks.
func (r ForecastRow) Key() RowKey {
	return RowKey{
		Issue:    r.IssueTime.Unix(),
		Valid:    r.ValidTime.Unix(),
		Quantile: r.Quantile,
	}
}

// RowKey identifies a forecast row by issue time, valid time and quantile.
// Times are held as Unix seconds so keys compare by instant regardless of
// the time.Time location they were parsed with.
type RowKey struct {
	Issue    int64
	Valid    int64
	Quantile Quantile
}

// IssueTime returns the issue instant of the key in UTC.
func (k RowKey) IssueTime() time.Time { return time.Unix(k.Issue, 0).UTC() }

// ValidTime returns the valid instant of the key in UTC.
func (k RowKey) ValidTime() time.Time { return time.Unix(k.Valid, 0).UTC() }

func (k RowKey) String() string {
	return fmt.Sprintf("issue=%s valid=%s quantile=%s",
		k.IssueTime().Format(time.RFC3339), k.ValidTime().Format(time.RFC3339), k.Quantile)
}

// LocatedRow is a forecast row tagged with the grid supply point it covers.
type LocatedRow struct {
	ForecastRow
	GSP int // grid supply point id; 0 is the national aggregate
}

// ReferenceRow is one half-hourly observation of the live generation series.
type ReferenceRow struct {
	StartTime         time.Time // settlement period start, UTC
	EndTime           time.Time // settlement period end, UTC
	GenerationMW      float64   // measured generation
	CapacityMW        float64   // effective capacity, written to the output
	InstalledCapacity float64   // installed capacity, used to rescale normalized values
}

// OutputRow is one row of the canonical formatted output.
type OutputRow struct {
	CreationTime time.Time // issue time of the forecast
	StartTime    time.Time // settlement period start, UTC
	EndTime      time.Time // settlement period end, UTC
	CapacityMW   float64
	GenerationMW float64 // point estimate
	P10          float64
	P90          float64
}

// Gap records a run of missing timestamps in an otherwise regular series.
type Gap struct {
	IssueTime time.Time     // series the gap belongs to; zero for issue-cadence scans
	Start     time.Time     // first missing expected timestamp
	Length    time.Duration // span of missing coverage
	Missing   int           // number of missing steps
}

// SortRows orders a flat table by issue time, valid time and quantile.
func SortRows(rows []ForecastRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].IssueTime.Equal(rows[j].IssueTime) {
			return rows[i].IssueTime.Before(rows[j].IssueTime)
		}
		if !rows[i].ValidTime.Equal(rows[j].ValidTime) {
			return rows[i].ValidTime.Before(rows[j].ValidTime)
		}
		return quantileOrder[rows[i].Quantile] < quantileOrder[rows[j].Quantile]
	})
}

// SortLocatedRows orders a consolidated table by issue time first, then
// location, valid time and quantile.
func SortLocatedRows(rows []LocatedRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].IssueTime.Equal(rows[j].IssueTime) {
			return rows[i].IssueTime.Before(rows[j].IssueTime)
		}
		if rows[i].GSP != rows[j].GSP {
			return rows[i].GSP < rows[j].GSP
		}
		if !rows[i].ValidTime.Equal(rows[j].ValidTime) {
			return rows[i].ValidTime.Before(rows[j].ValidTime)
		}
		return quantileOrder[rows[i].Quantile] < quantileOrder[rows[j].Quantile]
	})
}

// SortOutputRows orders canonical output rows by creation time, then period
// start.
func SortOutputRows(rows []OutputRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreationTime.Equal(rows[j].CreationTime) {
			return rows[i].CreationTime.Before(rows[j].CreationTime)
		}
		return rows[i].StartTime.Before(rows[j].StartTime)
	})
}

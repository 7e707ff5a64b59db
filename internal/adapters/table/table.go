// Package table reads and writes the CSV shapes the pipeline exchanges:
// flat forecast tables, consolidated archives, canonical outputs and gap
// reports. Files ending in .gz are compressed and decompressed
// transparently.
//
// All timestamps are RFC 3339 in UTC. Values are written with the shortest
// decimal form that round-trips.
package table

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// Column headers of the flat forecast table.
var flatHeader = []string{"issue_time", "valid_time", "quantile", "value"}

// Column headers of the canonical formatted output.
var canonicalHeader = []string{
	"forecasting_creation_datetime_utc",
	"start_datetime_utc",
	"end_datetime_utc",
	"capacity_mwp",
	"generation_mw",
	"generation_mw_p10",
	"generation_mw_p90",
}

// Column headers of the gap report.
var gapHeader = []string{"issue_time", "gap_start", "gap_length_minutes", "missing_steps"}

// OpenReader opens path for reading, decompressing when the name ends in
// .gz.
func OpenReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
}

// OpenWriter creates path for writing, compressing when the name ends in
// .gz.
func OpenWriter(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zw := gzip.NewWriter(f)
	return &stackedWriteCloser{Writer: zw, closers: []io.Closer{zw, f}}, nil
}

// stackedCloser closes a chain of readers in order.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// stackedWriteCloser closes a chain of writers in order, flushing the
// compressor before the file.
type stackedWriteCloser struct {
	io.Writer
	closers []io.Closer
}

func (s *stackedWriteCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadFlat reads a flat forecast table.
func ReadFlat(path string) ([]model.ForecastRow, error) {
	rc, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := matchHeader(header, flatHeader); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var rows []model.ForecastRow
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row, err := parseFlatRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteFlat writes a flat forecast table.
func WriteFlat(path string, rows []model.ForecastRow) error {
	wc, err := OpenWriter(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(wc)
	if err := w.Write(flatHeader); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, row := range rows {
		record := []string{
			formatTime(row.IssueTime),
			formatTime(row.ValidTime),
			string(row.Quantile),
			formatValue(row.Value),
		}
		if err := w.Write(record); err != nil {
			wc.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return wc.Close()
}

// ReadCanonical reads a canonical formatted output file.
func ReadCanonical(path string) ([]model.OutputRow, error) {
	rc, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := matchHeader(header, canonicalHeader); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var rows []model.OutputRow
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row, err := parseCanonicalRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCanonical writes a canonical formatted output file.
func WriteCanonical(path string, rows []model.OutputRow) error {
	wc, err := OpenWriter(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(wc)
	if err := w.Write(canonicalHeader); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, row := range rows {
		record := []string{
			formatTime(row.CreationTime),
			formatTime(row.StartTime),
			formatTime(row.EndTime),
			formatValue(row.CapacityMW),
			formatValue(row.GenerationMW),
			formatValue(row.P10),
			formatValue(row.P90),
		}
		if err := w.Write(record); err != nil {
			wc.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return wc.Close()
}

// WriteGaps writes a gap report. The issue_time column is empty for gaps
// found in issue-cadence scans.
func WriteGaps(path string, gaps []model.Gap) error {
	wc, err := OpenWriter(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(wc)
	if err := w.Write(gapHeader); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, g := range gaps {
		issue := ""
		if !g.IssueTime.IsZero() {
			issue = formatTime(g.IssueTime)
		}
		record := []string{
			issue,
			formatTime(g.Start),
			strconv.FormatFloat(g.Length.Minutes(), 'f', -1, 64),
			strconv.Itoa(g.Missing),
		}
		if err := w.Write(record); err != nil {
			wc.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return wc.Close()
}

func parseFlatRecord(record []string) (model.ForecastRow, error) {
	if len(record) != len(flatHeader) {
		return model.ForecastRow{}, fmt.Errorf("%w: got %d columns, want %d", ErrBadHeader, len(record), len(flatHeader))
	}
	issue, err := parseTime(record[0])
	if err != nil {
		return model.ForecastRow{}, fmt.Errorf("issue_time: %w", err)
	}
	valid, err := parseTime(record[1])
	if err != nil {
		return model.ForecastRow{}, fmt.Errorf("valid_time: %w", err)
	}
	quantile, err := model.ParseQuantile(record[2])
	if err != nil {
		return model.ForecastRow{}, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return model.ForecastRow{}, fmt.Errorf("value: %w", err)
	}
	return model.ForecastRow{IssueTime: issue, ValidTime: valid, Quantile: quantile, Value: value}, nil
}

func parseCanonicalRecord(record []string) (model.OutputRow, error) {
	if len(record) != len(canonicalHeader) {
		return model.OutputRow{}, fmt.Errorf("%w: got %d columns, want %d", ErrBadHeader, len(record), len(canonicalHeader))
	}
	creation, err := parseTime(record[0])
	if err != nil {
		return model.OutputRow{}, fmt.Errorf("forecasting_creation_datetime_utc: %w", err)
	}
	start, err := parseTime(record[1])
	if err != nil {
		return model.OutputRow{}, fmt.Errorf("start_datetime_utc: %w", err)
	}
	end, err := parseTime(record[2])
	if err != nil {
		return model.OutputRow{}, fmt.Errorf("end_datetime_utc: %w", err)
	}
	values := make([]float64, 4)
	for i, name := range canonicalHeader[3:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[3+i]), 64)
		if err != nil {
			return model.OutputRow{}, fmt.Errorf("%s: %w", name, err)
		}
		values[i] = v
	}
	return model.OutputRow{
		CreationTime: creation,
		StartTime:    start,
		EndTime:      end,
		CapacityMW:   values[0],
		GenerationMW: values[1],
		P10:          values[2],
		P90:          values[3],
	}, nil
}

// matchHeader compares a read header against the expected one.
func matchHeader(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: got %v, want %v", ErrBadHeader, got, want)
	}
	for i := range want {
		if strings.TrimSpace(got[i]) != want[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, got[i], want[i])
		}
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

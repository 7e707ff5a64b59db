// Package archive handles the raw forecast files a backtest produces and
// the consolidated archive they are compiled into.
//
// A raw file holds one model run: every row carries the same issue time.
// The consolidated archive is the concatenation of all runs, sorted by
// issue time, with one row per (issue time, location, valid time, quantile).
package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/table"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// Column headers shared by raw files and the consolidated archive.
var archiveHeader = []string{"issue_time", "valid_time", "gsp_id", "quantile", "value"}

// ReadRunFile reads one raw per-run file and checks that it carries exactly
// one issue time.
func ReadRunFile(path string) ([]model.LocatedRow, error) {
	rows, err := readArchive(path)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if !row.IssueTime.Equal(rows[0].IssueTime) {
			return nil, fmt.Errorf("%w: %s mixes issue times %s and %s", ErrSchemaMismatch, path,
				rows[0].IssueTime.Format(timeLayout), row.IssueTime.Format(timeLayout))
		}
	}
	return rows, nil
}

// ReadConsolidated reads a consolidated archive.
func ReadConsolidated(path string) ([]model.LocatedRow, error) {
	return readArchive(path)
}

// WriteConsolidated writes a consolidated archive sorted by issue time.
func WriteConsolidated(path string, rows []model.LocatedRow) error {
	model.SortLocatedRows(rows)

	wc, err := table.OpenWriter(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(wc)
	if err := w.Write(archiveHeader); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, row := range rows {
		record := []string{
			row.IssueTime.UTC().Format(timeLayout),
			row.ValidTime.UTC().Format(timeLayout),
			strconv.Itoa(row.GSP),
			string(row.Quantile),
			strconv.FormatFloat(row.Value, 'g', -1, 64),
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

const timeLayout = "2006-01-02T15:04:05Z07:00"

func readArchive(path string) ([]model.LocatedRow, error) {
	rc, err := table.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := matchArchiveHeader(header); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var rows []model.LocatedRow
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrSchemaMismatch, path, line, err)
		}
		row, err := parseArchiveRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrSchemaMismatch, path, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseArchiveRecord(record []string) (model.LocatedRow, error) {
	if len(record) != len(archiveHeader) {
		return model.LocatedRow{}, fmt.Errorf("got %d columns, want %d", len(record), len(archiveHeader))
	}
	issue, err := parseTime(record[0])
	if err != nil {
		return model.LocatedRow{}, fmt.Errorf("issue_time: %v", err)
	}
	valid, err := parseTime(record[1])
	if err != nil {
		return model.LocatedRow{}, fmt.Errorf("valid_time: %v", err)
	}
	gsp, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return model.LocatedRow{}, fmt.Errorf("gsp_id: %v", err)
	}
	if gsp < 0 {
		return model.LocatedRow{}, fmt.Errorf("gsp_id: %d is negative", gsp)
	}
	quantile, err := model.ParseQuantile(record[3])
	if err != nil {
		return model.LocatedRow{}, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	if err != nil {
		return model.LocatedRow{}, fmt.Errorf("value: %v", err)
	}
	return model.LocatedRow{
		ForecastRow: model.ForecastRow{IssueTime: issue, ValidTime: valid, Quantile: quantile, Value: value},
		GSP:         gsp,
	}, nil
}

func matchArchiveHeader(got []string) error {
	if len(got) != len(archiveHeader) {
		return fmt.Errorf("%w: got %v, want %v", ErrSchemaMismatch, got, archiveHeader)
	}
	for i := range archiveHeader {
		if strings.TrimSpace(got[i]) != archiveHeader[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i+1, got[i], archiveHeader[i])
		}
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

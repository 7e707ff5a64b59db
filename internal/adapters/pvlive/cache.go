package pvlive

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/table"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// cacheHeader is the column set of the local reference CSV.
var cacheHeader = []string{
	"start_datetime_utc",
	"end_datetime_utc",
	"generation_mw",
	"capacity_mwp",
	"installedcapacity_mwp",
}

// ReadCache reads a local reference CSV.
func ReadCache(path string) ([]model.ReferenceRow, error) {
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
	if len(header) != len(cacheHeader) {
		return nil, fmt.Errorf("%s: %w: got %v, want %v", path, table.ErrBadHeader, header, cacheHeader)
	}
	for i := range cacheHeader {
		if strings.TrimSpace(header[i]) != cacheHeader[i] {
			return nil, fmt.Errorf("%s: %w: column %d is %q, want %q",
				path, table.ErrBadHeader, i+1, header[i], cacheHeader[i])
		}
	}

	var rows []model.ReferenceRow
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row, err := parseCacheRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCache writes a local reference CSV sorted by period end.
func WriteCache(path string, rows []model.ReferenceRow) error {
	sorted := make([]model.ReferenceRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EndTime.Before(sorted[j].EndTime)
	})

	wc, err := table.OpenWriter(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(wc)
	if err := w.Write(cacheHeader); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, row := range sorted {
		record := []string{
			row.StartTime.UTC().Format(time.RFC3339),
			row.EndTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(row.GenerationMW, 'g', -1, 64),
			strconv.FormatFloat(row.CapacityMW, 'g', -1, 64),
			strconv.FormatFloat(row.InstalledCapacity, 'g', -1, 64),
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

// Merge folds freshly fetched rows into an existing cache, newest fetch
// winning on a shared period end. Result is sorted by period end.
func Merge(existing, fresh []model.ReferenceRow) []model.ReferenceRow {
	byEnd := make(map[int64]model.ReferenceRow, len(existing)+len(fresh))
	for _, row := range existing {
		byEnd[row.EndTime.Unix()] = row
	}
	for _, row := range fresh {
		byEnd[row.EndTime.Unix()] = row
	}

	out := make([]model.ReferenceRow, 0, len(byEnd))
	for _, row := range byEnd {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndTime.Before(out[j].EndTime)
	})
	return out
}

func parseCacheRecord(record []string) (model.ReferenceRow, error) {
	if len(record) != len(cacheHeader) {
		return model.ReferenceRow{}, fmt.Errorf("got %d columns, want %d", len(record), len(cacheHeader))
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(record[0]))
	if err != nil {
		return model.ReferenceRow{}, fmt.Errorf("start_datetime_utc: %v", err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(record[1]))
	if err != nil {
		return model.ReferenceRow{}, fmt.Errorf("end_datetime_utc: %v", err)
	}
	generation, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return model.ReferenceRow{}, fmt.Errorf("generation_mw: %v", err)
	}
	capacity, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return model.ReferenceRow{}, fmt.Errorf("capacity_mwp: %v", err)
	}
	installed, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	if err != nil {
		return model.ReferenceRow{}, fmt.Errorf("installedcapacity_mwp: %v", err)
	}
	return model.ReferenceRow{
		StartTime:         start.UTC(),
		EndTime:           end.UTC(),
		GenerationMW:      generation,
		CapacityMW:        capacity,
		InstalledCapacity: installed,
	}, nil
}

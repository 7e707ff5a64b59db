package archive

import (
	"context"
	"fmt"
	"sort"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// Extract projects the consolidated archive down to one location and a
// quantile set, yielding a flat table. Running it twice over the same rows
// and selectors yields identical output.
func Extract(_ context.Context, rows []model.LocatedRow, gsp int, quantiles []model.Quantile) ([]model.ForecastRow, error) {
	if len(quantiles) == 0 {
		return nil, fmt.Errorf("no quantiles requested")
	}

	want := make(map[model.Quantile]struct{}, len(quantiles))
	for _, q := range quantiles {
		want[q] = struct{}{}
	}

	var (
		out     []model.ForecastRow
		located bool
		have    = make(map[model.Quantile]struct{})
		gspSet  = make(map[int]struct{})
	)
	for _, row := range rows {
		gspSet[row.GSP] = struct{}{}
		if row.GSP != gsp {
			continue
		}
		located = true
		have[row.Quantile] = struct{}{}
		if _, ok := want[row.Quantile]; ok {
			out = append(out, row.ForecastRow)
		}
	}

	if !located {
		return nil, fmt.Errorf("%w: gsp %d has no rows, archive holds %v", ErrLocationNotFound, gsp, sortedKeys(gspSet))
	}
	for _, q := range quantiles {
		if _, ok := have[q]; !ok {
			return nil, fmt.Errorf("%w: %s missing at gsp %d, location holds %v",
				ErrQuantileNotFound, q, gsp, quantileLabels(have))
		}
	}

	model.SortRows(out)
	return out, nil
}

func sortedKeys(set map[int]struct{}) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func quantileLabels(set map[model.Quantile]struct{}) []string {
	labels := make([]string, 0, len(set))
	for q := range set {
		labels = append(labels, string(q))
	}
	sort.Strings(labels)
	return labels
}

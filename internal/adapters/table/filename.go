package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// nameDateLayout is the date form used inside canonical filenames.
const nameDateLayout = "2006-01-02"

// ModelRef identifies a contributing model and its version.
type ModelRef struct {
	Name    string
	Version string
}

// BuildName assembles the canonical output filename:
//
//	forecast_v=<v>__model_name_1=<n>__model_version_1=<v>__start_date=<d>__end_date=<d>.csv.gz
//
// Further models are numbered from 2 in the order given.
func BuildName(version string, models []ModelRef, start, end time.Time) string {
	parts := []string{"forecast_v=" + version}
	for i, m := range models {
		n := strconv.Itoa(i + 1)
		parts = append(parts,
			"model_name_"+n+"="+m.Name,
			"model_version_"+n+"="+m.Version,
		)
	}
	parts = append(parts,
		"start_date="+start.UTC().Format(nameDateLayout),
		"end_date="+end.UTC().Format(nameDateLayout),
	)
	return strings.Join(parts, "__") + ".csv.gz"
}

// ParseName splits a canonical output filename back into its fields.
func ParseName(name string) (version string, models []ModelRef, start, end time.Time, err error) {
	base := name
	switch {
	case strings.HasSuffix(base, ".csv.gz"):
		base = strings.TrimSuffix(base, ".csv.gz")
	case strings.HasSuffix(base, ".csv"):
		base = strings.TrimSuffix(base, ".csv")
	default:
		return "", nil, time.Time{}, time.Time{}, fmt.Errorf("%w: %q has no csv suffix", ErrBadName, name)
	}

	fields := make(map[string]string)
	var modelCount int
	for _, part := range strings.Split(base, "__") {
		k, v, found := strings.Cut(part, "=")
		if !found || k == "" {
			return "", nil, time.Time{}, time.Time{}, fmt.Errorf("%w: segment %q in %q", ErrBadName, part, name)
		}
		fields[k] = v
		if strings.HasPrefix(k, "model_name_") {
			modelCount++
		}
	}

	version, ok := fields["forecast_v"]
	if !ok {
		return "", nil, time.Time{}, time.Time{}, fmt.Errorf("%w: %q lacks forecast_v", ErrBadName, name)
	}

	for i := 1; i <= modelCount; i++ {
		n := strconv.Itoa(i)
		mn, okName := fields["model_name_"+n]
		mv, okVer := fields["model_version_"+n]
		if !okName || !okVer {
			return "", nil, time.Time{}, time.Time{}, fmt.Errorf("%w: %q model %d incomplete", ErrBadName, name, i)
		}
		models = append(models, ModelRef{Name: mn, Version: mv})
	}

	start, err = parseNameDate(fields, "start_date", name)
	if err != nil {
		return "", nil, time.Time{}, time.Time{}, err
	}
	end, err = parseNameDate(fields, "end_date", name)
	if err != nil {
		return "", nil, time.Time{}, time.Time{}, err
	}

	return version, models, start, end, nil
}

func parseNameDate(fields map[string]string, key, name string) (time.Time, error) {
	v, ok := fields[key]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q lacks %s", ErrBadName, name, key)
	}
	t, err := time.ParseInLocation(nameDateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q in %q", ErrBadName, key, v, name)
	}
	return t, nil
}

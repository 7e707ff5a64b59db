package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/dedupe"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
)

// DefaultGlob matches the per-run files a backtest writes into its output
// directory.
const DefaultGlob = "*.csv"

// Compiler concatenates a directory of per-run files into the consolidated
// archive. Archival is best effort: files that cannot be opened are skipped
// with a warning, while files that open but disagree with the rest of the
// directory on schema abort the run.
type Compiler struct {
	glob   string
	logger logger.Logger
}

// Stats reports what a compile pass saw.
type Stats struct {
	FilesRead    int
	FilesSkipped int
	Rows         int
	IssueTimes   int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithGlob sets the filename pattern matched inside the input directory.
// Empty patterns are ignored.
func WithGlob(glob string) Option {
	return func(c *Compiler) {
		if glob != "" {
			c.glob = glob
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Compiler) {
		if log != nil {
			c.logger = log
		}
	}
}

// NewCompiler creates a compiler with configuration options.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		glob:   DefaultGlob,
		logger: logger.Get().Named("compiler"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Compile reads every file matching the glob under dir and returns the
// consolidated rows sorted by issue time. All files must carry the same
// location and quantile universe, and no two files may repeat a
// (issue time, valid time, location, quantile) key.
func (c *Compiler) Compile(ctx context.Context, dir string) ([]model.LocatedRow, Stats, error) {
	pattern := filepath.Join(dir, c.glob)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	var (
		out      []model.LocatedRow
		stats    Stats
		refPath  string
		refGSPs  []int
		refQs    []string
		trackers = make(map[int]dedupe.Tracker)
		issues   = make(map[int64]struct{})
	)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		rows, err := ReadRunFile(path)
		if err != nil {
			if errors.Is(err, ErrSchemaMismatch) {
				return nil, stats, err
			}
			c.logger.Warn(ctx, "skipping unreadable run file",
				logger.String("path", path),
				logger.Error(err))
			stats.FilesSkipped++
			continue
		}
		if len(rows) == 0 {
			c.logger.Warn(ctx, "run file has no rows", logger.String("path", path))
			stats.FilesRead++
			continue
		}

		gsps, quantiles := universeOf(rows)
		if refPath == "" {
			refPath, refGSPs, refQs = path, gsps, quantiles
		} else if !equalInts(gsps, refGSPs) || !equalStrings(quantiles, refQs) {
			return nil, stats, fmt.Errorf("%w: %s carries locations %v quantiles %v, but %s set locations %v quantiles %v",
				ErrSchemaMismatch, path, gsps, quantiles, refPath, refGSPs, refQs)
		}

		for _, row := range rows {
			tracker, ok := trackers[row.GSP]
			if !ok {
				tracker = dedupe.NewInMemoryTracker()
				trackers[row.GSP] = tracker
			}
			if tracker.SeenAndRecord(ctx, row.Key()) {
				return nil, stats, fmt.Errorf("%w: %s repeats %s at gsp %d",
					dedupe.ErrDuplicateRow, path, row.Key(), row.GSP)
			}
		}

		issues[rows[0].IssueTime.Unix()] = struct{}{}
		out = append(out, rows...)
		stats.FilesRead++
		stats.Rows += len(rows)
	}

	model.SortLocatedRows(out)
	stats.IssueTimes = len(issues)
	return out, stats, nil
}

// universeOf returns the sorted location and quantile sets present in rows.
func universeOf(rows []model.LocatedRow) ([]int, []string) {
	gspSet := make(map[int]struct{})
	qSet := make(map[string]struct{})
	for _, row := range rows {
		gspSet[row.GSP] = struct{}{}
		qSet[string(row.Quantile)] = struct{}{}
	}

	gsps := make([]int, 0, len(gspSet))
	for gsp := range gspSet {
		gsps = append(gsps, gsp)
	}
	sort.Ints(gsps)

	quantiles := make([]string, 0, len(qSet))
	for q := range qSet {
		quantiles = append(quantiles, q)
	}
	sort.Strings(quantiles)

	return gsps, quantiles
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

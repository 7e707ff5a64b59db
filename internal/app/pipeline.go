// Package pipeline wires configuration, logging and metrics around the
// backtest stages. One method per stage; each runs to completion before the
// next starts and writes its output file wholesale, so a rerun overwrites
// rather than merges.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/archive"
	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/pvlive"
	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/table"
	"github.com/openclimatefix/uk-pv-backtest/internal/config"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/blend"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/gapscan"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/norm"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/resample"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/weighting"
	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
	"github.com/openclimatefix/uk-pv-backtest/pkg/metrics"
)

// Pipeline runs the backtest stages against local files.
type Pipeline struct {
	cfg    *config.Config
	runID  string
	logger logger.Logger
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.logger = log
		}
	}
}

// WithRunID overrides the generated run id stamped into stage logs.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// New constructs a Pipeline around cfg. A nil cfg falls back to defaults.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.New(context.Background())
	}

	p := &Pipeline{
		cfg:   cfg,
		runID: uuid.NewString(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logger.Get().Named("pipeline")
	}

	return p
}

// RunID returns the id stamped into this pipeline's stage logs.
func (p *Pipeline) RunID() string {
	return p.runID
}

// stage runs one pipeline stage with timing, logging and metrics.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	log := p.logger.Named(name)
	log.Info(ctx, "stage starting", logger.String("run_id", p.runID))

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	metrics.RecordStageDuration(name, elapsed.Seconds())
	if err != nil {
		metrics.RecordStageError(name)
		log.Error(ctx, "stage failed",
			logger.String("run_id", p.runID),
			logger.Duration("elapsed", elapsed),
			logger.Error(err),
		)
		return err
	}

	log.Info(ctx, "stage finished",
		logger.String("run_id", p.runID),
		logger.Duration("elapsed", elapsed),
	)
	return nil
}

// interval returns the configured settlement period length.
func (p *Pipeline) interval() time.Duration {
	return time.Duration(p.cfg.IntervalMinutes) * time.Minute
}

// ramp builds the blend weighting ramp from the configured breakpoints.
func (p *Pipeline) ramp() (*weighting.Ramp, error) {
	return weighting.New(weighting.WithBreakpoints(
		time.Duration(p.cfg.FullIntradayUntilMinutes)*time.Minute,
		time.Duration(p.cfg.FullDayAheadFromMinutes)*time.Minute,
	))
}

// Compile folds a directory of per-run forecast files into the consolidated
// archive at out.
func (p *Pipeline) Compile(ctx context.Context, dir, out string) (archive.Stats, error) {
	var stats archive.Stats
	err := p.stage(ctx, "compile", func(ctx context.Context) error {
		compiler := archive.NewCompiler(
			archive.WithGlob(p.cfg.Glob),
			archive.WithLogger(p.logger.Named("compiler")),
		)
		rows, st, err := compiler.Compile(ctx, dir)
		if err != nil {
			return err
		}
		stats = st

		if err := archive.WriteConsolidated(out, rows); err != nil {
			return err
		}
		metrics.RecordFilesCompiled(st.FilesRead)
		metrics.RecordFilesSkipped(st.FilesSkipped)
		metrics.RecordRowsWritten("archive", len(rows))

		p.logger.Info(ctx, "archive consolidated",
			logger.Int("files", st.FilesRead),
			logger.Int("skipped", st.FilesSkipped),
			logger.Int("rows", len(rows)),
			logger.Int("issue_times", st.IssueTimes),
			logger.String("out", out),
		)
		return nil
	})
	return stats, err
}

// Extract projects the consolidated archive at in to the configured location
// and quantile set, writing a flat table to out. Returns rows written.
func (p *Pipeline) Extract(ctx context.Context, in, out string) (int, error) {
	var written int
	err := p.stage(ctx, "extract", func(ctx context.Context) error {
		quantiles, err := model.ParseQuantiles(p.cfg.Quantiles)
		if err != nil {
			return err
		}

		located, err := archive.ReadConsolidated(in)
		if err != nil {
			return err
		}
		metrics.RecordRowsRead("archive", len(located))

		rows, err := archive.Extract(ctx, located, p.cfg.GSP, quantiles)
		if err != nil {
			return err
		}
		if err := table.WriteFlat(out, rows); err != nil {
			return err
		}
		written = len(rows)
		metrics.RecordRowsWritten("flat", written)

		p.logger.Info(ctx, "location extracted",
			logger.Int("gsp", p.cfg.GSP),
			logger.Int("rows", written),
			logger.String("out", out),
		)
		return nil
	})
	return written, err
}

// BlendRequest names the inputs and output of one blend run.
type BlendRequest struct {
	IntradayPath string
	DayAheadPath string
	Output       string
	From         time.Time // optional issue-time window start, inclusive
	Until        time.Time // optional issue-time window end, exclusive
}

// Blend outer-joins the intraday and day-ahead flat tables under the
// configured weighting ramp and writes the merged table.
func (p *Pipeline) Blend(ctx context.Context, req BlendRequest) (blend.Stats, error) {
	var stats blend.Stats
	err := p.stage(ctx, "blend", func(ctx context.Context) error {
		ramp, err := p.ramp()
		if err != nil {
			return err
		}
		policy, err := blend.ParsePolicy(p.cfg.SingleSource)
		if err != nil {
			return err
		}
		blender, err := blend.New(ramp,
			blend.WithPolicy(policy),
			blend.WithIssueWindow(req.From, req.Until),
			blend.WithZeroHorizonBackfill(p.cfg.BackfillZeroHorizon),
		)
		if err != nil {
			return err
		}

		intraday, err := table.ReadFlat(req.IntradayPath)
		if err != nil {
			return err
		}
		dayAhead, err := table.ReadFlat(req.DayAheadPath)
		if err != nil {
			return err
		}
		metrics.RecordRowsRead("flat", len(intraday)+len(dayAhead))

		rows, st, err := blender.Blend(ctx, intraday, dayAhead)
		if err != nil {
			return err
		}
		stats = st

		if err := table.WriteFlat(req.Output, rows); err != nil {
			return err
		}
		metrics.RecordRowsWritten("flat", len(rows))
		metrics.RecordBlendedRows(st.Blended)
		metrics.RecordPassthroughRows(st.IntradayOnly + st.DayAheadOnly)
		metrics.RecordDroppedRows(st.Dropped)
		metrics.RecordBackfilledRows(st.Backfilled)

		p.logger.Info(ctx, "tables blended",
			logger.Int("rows", len(rows)),
			logger.Int("blended", st.Blended),
			logger.Int("intraday_only", st.IntradayOnly),
			logger.Int("day_ahead_only", st.DayAheadOnly),
			logger.Int("dropped", st.Dropped),
			logger.Int("backfilled", st.Backfilled),
			logger.String("out", req.Output),
		)
		return nil
	})
	return stats, err
}

// FormatRequest names the inputs and output of one format run.
type FormatRequest struct {
	InputPath     string
	ReferencePath string
	Output        string
}

// Format joins a blended flat table against the live reference series and
// writes the canonical output. Returns rows written.
func (p *Pipeline) Format(ctx context.Context, req FormatRequest) (int, error) {
	var written int
	err := p.stage(ctx, "format", func(ctx context.Context) error {
		rows, err := table.ReadFlat(req.InputPath)
		if err != nil {
			return err
		}
		ref, err := pvlive.ReadCache(req.ReferencePath)
		if err != nil {
			return err
		}
		metrics.RecordRowsRead("flat", len(rows))
		metrics.RecordRowsRead("reference", len(ref))

		rescaler := norm.New(
			norm.WithNormalizedInput(p.cfg.Normalized),
			norm.WithNightThreshold(p.cfg.NightThreshold),
			norm.WithInterval(p.interval()),
		)
		out, err := rescaler.Rescale(ctx, rows, ref)
		if err != nil {
			return err
		}

		if err := table.WriteCanonical(req.Output, out); err != nil {
			return err
		}
		written = len(out)
		metrics.RecordRowsWritten("canonical", written)

		p.logger.Info(ctx, "output formatted",
			logger.Int("rows", written),
			logger.String("out", req.Output),
		)
		return nil
	})
	return written, err
}

// GapsRequest names the input and optional report of one coverage scan.
type GapsRequest struct {
	InputPath    string
	Output       string // optional report CSV; empty skips the write
	IssueCadence bool   // scan the issue-time cadence instead of per-issue valid times
}

// Gaps scans a canonical output file for holes in its timestamp coverage.
// The input is never modified.
func (p *Pipeline) Gaps(ctx context.Context, req GapsRequest) ([]model.Gap, gapscan.Summary, error) {
	var (
		gaps    []model.Gap
		summary gapscan.Summary
	)
	err := p.stage(ctx, "gaps", func(ctx context.Context) error {
		out, err := table.ReadCanonical(req.InputPath)
		if err != nil {
			return err
		}
		metrics.RecordRowsRead("canonical", len(out))

		scanner := gapscan.New(
			gapscan.WithInterval(p.interval()),
			gapscan.WithIssueCadence(req.IssueCadence),
		)
		gaps, summary, err = scanner.Scan(ctx, scanRows(out))
		if err != nil {
			return err
		}
		metrics.RecordGaps(summary.Gaps, summary.MissingSteps)

		if req.Output != "" {
			if err := table.WriteGaps(req.Output, gaps); err != nil {
				return err
			}
			metrics.RecordRowsWritten("gaps", len(gaps))
		}

		p.logger.Info(ctx, "coverage scanned",
			logger.Int("series", summary.Series),
			logger.Int("gaps", summary.Gaps),
			logger.Int("missing_steps", summary.MissingSteps),
			logger.Duration("max_gap", summary.MaxLength),
		)
		return nil
	})
	return gaps, summary, err
}

// scanRows reduces canonical rows to the timestamps the gap scanner walks.
func scanRows(out []model.OutputRow) []model.ForecastRow {
	rows := make([]model.ForecastRow, len(out))
	for i, r := range out {
		rows[i] = model.ForecastRow{
			IssueTime: r.CreationTime,
			ValidTime: r.EndTime,
			Quantile:  model.Expected,
			Value:     r.GenerationMW,
		}
	}
	return rows
}

// Join concatenates two canonical outputs covering disjoint issue-time
// ranges and writes the result sorted. Overlapping ranges abort; nothing is
// deduplicated silently. Returns rows written.
func (p *Pipeline) Join(ctx context.Context, first, second, out string) (int, error) {
	var written int
	err := p.stage(ctx, "join", func(ctx context.Context) error {
		a, err := table.ReadCanonical(first)
		if err != nil {
			return err
		}
		b, err := table.ReadCanonical(second)
		if err != nil {
			return err
		}
		metrics.RecordRowsRead("canonical", len(a)+len(b))

		if err := disjointRanges(a, b, first, second); err != nil {
			return err
		}

		joined := make([]model.OutputRow, 0, len(a)+len(b))
		joined = append(joined, a...)
		joined = append(joined, b...)
		model.SortOutputRows(joined)

		if err := table.WriteCanonical(out, joined); err != nil {
			return err
		}
		written = len(joined)
		metrics.RecordRowsWritten("canonical", written)

		p.logger.Info(ctx, "outputs joined",
			logger.Int("rows", written),
			logger.String("out", out),
		)
		return nil
	})
	return written, err
}

// disjointRanges checks that the creation-time spans of two outputs do not
// intersect. Sharing a single issue time already counts as overlap.
func disjointRanges(a, b []model.OutputRow, aPath, bPath string) error {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	aMin, aMax := creationSpan(a)
	bMin, bMax := creationSpan(b)
	if !aMax.Before(bMin) && !bMax.Before(aMin) {
		return fmt.Errorf("%w: %s spans [%s, %s], %s spans [%s, %s]",
			ErrOverlappingRanges,
			aPath, aMin.Format(time.RFC3339), aMax.Format(time.RFC3339),
			bPath, bMin.Format(time.RFC3339), bMax.Format(time.RFC3339))
	}
	return nil
}

// creationSpan returns the earliest and latest creation times of rows.
func creationSpan(rows []model.OutputRow) (min, max time.Time) {
	min, max = rows[0].CreationTime, rows[0].CreationTime
	for _, r := range rows[1:] {
		if r.CreationTime.Before(min) {
			min = r.CreationTime
		}
		if r.CreationTime.After(max) {
			max = r.CreationTime
		}
	}
	return min, max
}

// Resample interpolates the flat table at in onto the configured grid and
// writes the densified table to out. Returns rows written.
func (p *Pipeline) Resample(ctx context.Context, in, out string) (int, error) {
	var written int
	err := p.stage(ctx, "resample", func(ctx context.Context) error {
		rows, err := table.ReadFlat(in)
		if err != nil {
			return err
		}
		metrics.RecordRowsRead("flat", len(rows))

		resampler := resample.New(resample.WithTarget(p.interval()))
		dense, err := resampler.Resample(ctx, rows)
		if err != nil {
			return err
		}

		if err := table.WriteFlat(out, dense); err != nil {
			return err
		}
		written = len(dense)
		metrics.RecordRowsWritten("flat", written)

		p.logger.Info(ctx, "table resampled",
			logger.Int("rows_in", len(rows)),
			logger.Int("rows_out", written),
			logger.Duration("target", p.interval()),
		)
		return nil
	})
	return written, err
}

// FetchRequest names the range and output of one reference fetch.
type FetchRequest struct {
	Start  time.Time
	End    time.Time
	Output string // reference CSV; merged keep-last when the file already exists
}

// FetchReference pulls the live generation series for the requested range
// and folds it into the local reference CSV. Returns rows written.
func (p *Pipeline) FetchReference(ctx context.Context, req FetchRequest) (int, error) {
	var written int
	err := p.stage(ctx, "pvlive", func(ctx context.Context) error {
		client := pvlive.NewClient(
			pvlive.WithBaseURL(p.cfg.PVLiveURL),
			pvlive.WithEntity(p.cfg.PVLiveEntity, p.cfg.PVLiveEntityID),
			pvlive.WithStartPadding(),
			pvlive.WithLogger(p.logger.Named("pvlive")),
		)
		fresh, err := client.Between(ctx, req.Start, req.End)
		if err != nil {
			return err
		}

		merged := fresh
		existing, err := pvlive.ReadCache(req.Output)
		switch {
		case err == nil:
			metrics.RecordRowsRead("reference", len(existing))
			merged = pvlive.Merge(existing, fresh)
		case errors.Is(err, os.ErrNotExist):
			// first fetch, nothing to merge
		default:
			return err
		}

		if err := pvlive.WriteCache(req.Output, merged); err != nil {
			return err
		}
		written = len(merged)
		metrics.RecordRowsWritten("reference", written)

		p.logger.Info(ctx, "reference series updated",
			logger.Int("fetched", len(fresh)),
			logger.Int("rows", written),
			logger.Time("start", req.Start),
			logger.Time("end", req.End),
			logger.String("out", req.Output),
		)
		return nil
	})
	return written, err
}

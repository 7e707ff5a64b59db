package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/archive"
	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/pvlive"
	"github.com/openclimatefix/uk-pv-backtest/internal/adapters/table"
	pipeline "github.com/openclimatefix/uk-pv-backtest/internal/app"
	"github.com/openclimatefix/uk-pv-backtest/internal/config"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/norm"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/weighting"
	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newConfig() *config.Config {
	return config.New(context.Background())
}

// runRows builds one run file's rows: every quantile at every valid time for
// gsp 0, with value = horizon minutes + a per-quantile offset.
func runRows(issue time.Time, valids ...time.Time) []model.LocatedRow {
	offsets := map[model.Quantile]float64{model.P10: -10, model.Expected: 0, model.P90: 10}
	rows := make([]model.LocatedRow, 0, len(valids)*3)
	for _, valid := range valids {
		for _, q := range []model.Quantile{model.P10, model.Expected, model.P90} {
			rows = append(rows, model.LocatedRow{
				ForecastRow: model.ForecastRow{
					IssueTime: issue,
					ValidTime: valid,
					Quantile:  q,
					Value:     valid.Sub(issue).Minutes() + offsets[q],
				},
			})
		}
	}
	return rows
}

func flatRow(issue, valid time.Time, q model.Quantile, v float64) model.ForecastRow {
	return model.ForecastRow{IssueTime: issue, ValidTime: valid, Quantile: q, Value: v}
}

func TestPipelineCompileExtract(t *testing.T) {
	Convey("Given a directory of per-run files", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		work := t.TempDir()
		issueA := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
		issueB := issueA.Add(6 * time.Hour)

		So(archive.WriteConsolidated(filepath.Join(dir, "run-00.csv"),
			runRows(issueA, issueA.Add(30*time.Minute), issueA.Add(time.Hour))), ShouldBeNil)
		So(archive.WriteConsolidated(filepath.Join(dir, "run-06.csv"),
			runRows(issueB, issueB.Add(30*time.Minute), issueB.Add(time.Hour))), ShouldBeNil)

		p := pipeline.New(newConfig())

		Convey("When compiling and extracting", func() {
			archivePath := filepath.Join(work, "archive.csv.gz")
			stats, err := p.Compile(ctx, dir, archivePath)
			So(err, ShouldBeNil)

			flatPath := filepath.Join(work, "flat.csv")
			written, err := p.Extract(ctx, archivePath, flatPath)

			Convey("Then the archive holds both runs", func() {
				So(stats.FilesRead, ShouldEqual, 2)
				So(stats.FilesSkipped, ShouldEqual, 0)
				So(stats.IssueTimes, ShouldEqual, 2)
				So(stats.Rows, ShouldEqual, 12)
			})

			Convey("And the flat table carries every extracted row", func() {
				So(err, ShouldBeNil)
				So(written, ShouldEqual, 12)

				rows, err := table.ReadFlat(flatPath)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 12)
				So(rows[0].IssueTime.Equal(issueA), ShouldBeTrue)
				So(rows[0].Quantile, ShouldEqual, model.P10)
			})
		})

		Convey("When extracting an unknown location", func() {
			archivePath := filepath.Join(work, "archive.csv.gz")
			_, err := p.Compile(ctx, dir, archivePath)
			So(err, ShouldBeNil)

			cfg := newConfig()
			cfg.GSP = 42
			missing := pipeline.New(cfg)
			_, err = missing.Extract(ctx, archivePath, filepath.Join(work, "gsp42.csv"))

			Convey("Then the location sentinel surfaces", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, archive.ErrLocationNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestPipelineBlend(t *testing.T) {
	Convey("Given intraday and day-ahead flat tables", t, func() {
		ctx := context.Background()
		work := t.TempDir()
		issue := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
		// shared sits inside the ramp at w=0.75; the other two fall outside it.
		shared := issue.Add(7 * time.Hour)
		intraOnly := issue.Add(time.Hour)
		dayOnly := issue.Add(10 * time.Hour)

		intradayPath := filepath.Join(work, "intraday.csv")
		dayAheadPath := filepath.Join(work, "dayahead.csv")
		So(table.WriteFlat(intradayPath, []model.ForecastRow{
			flatRow(issue, shared, model.Expected, 100),
			flatRow(issue, intraOnly, model.Expected, 40),
		}), ShouldBeNil)
		So(table.WriteFlat(dayAheadPath, []model.ForecastRow{
			flatRow(issue, shared, model.Expected, 200),
			flatRow(issue, dayOnly, model.Expected, 80),
		}), ShouldBeNil)

		Convey("When blending with the default passthrough policy", func() {
			p := pipeline.New(newConfig())
			out := filepath.Join(work, "blended.csv")
			stats, err := p.Blend(ctx, pipeline.BlendRequest{
				IntradayPath: intradayPath,
				DayAheadPath: dayAheadPath,
				Output:       out,
			})

			Convey("Then both-sided keys are weighted and single-sided pass through", func() {
				So(err, ShouldBeNil)
				So(stats.Blended, ShouldEqual, 1)
				So(stats.IntradayOnly, ShouldEqual, 1)
				So(stats.DayAheadOnly, ShouldEqual, 1)

				rows, err := table.ReadFlat(out)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[1].Value, ShouldEqual, 125) // 0.75*100 + 0.25*200
				So(rows[0].Value, ShouldEqual, 40)
				So(rows[2].Value, ShouldEqual, 80)
			})
		})

		Convey("When blending under the drop policy", func() {
			cfg := newConfig()
			cfg.SingleSource = "drop"
			p := pipeline.New(cfg)
			out := filepath.Join(work, "dropped.csv")
			stats, err := p.Blend(ctx, pipeline.BlendRequest{
				IntradayPath: intradayPath,
				DayAheadPath: dayAheadPath,
				Output:       out,
			})

			Convey("Then single-sided keys are removed", func() {
				So(err, ShouldBeNil)
				So(stats.Dropped, ShouldEqual, 2)

				rows, err := table.ReadFlat(out)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
			})
		})

		Convey("When the ramp breakpoints are inverted", func() {
			cfg := newConfig()
			cfg.FullIntradayUntilMinutes = 510
			cfg.FullDayAheadFromMinutes = 390
			p := pipeline.New(cfg)
			_, err := p.Blend(ctx, pipeline.BlendRequest{
				IntradayPath: filepath.Join(work, "never-read.csv"),
				DayAheadPath: filepath.Join(work, "never-read-either.csv"),
				Output:       filepath.Join(work, "never-written.csv"),
			})

			Convey("Then the ramp is rejected before any input is opened", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, weighting.ErrInvalidRamp), ShouldBeTrue)
			})
		})

		Convey("When an issue window excludes the run", func() {
			p := pipeline.New(newConfig())
			out := filepath.Join(work, "windowed.csv")
			stats, err := p.Blend(ctx, pipeline.BlendRequest{
				IntradayPath: intradayPath,
				DayAheadPath: dayAheadPath,
				Output:       out,
				From:         issue.Add(24 * time.Hour),
				Until:        issue.Add(48 * time.Hour),
			})

			Convey("Then every key is windowed out", func() {
				So(err, ShouldBeNil)
				So(stats.Windowed, ShouldEqual, 3)

				rows, err := table.ReadFlat(out)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 0)
			})
		})
	})
}

func TestPipelineFormat(t *testing.T) {
	Convey("Given a blended table and a reference series", t, func() {
		ctx := context.Background()
		work := t.TempDir()
		issue := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
		night := issue.Add(30 * time.Minute)
		day := issue.Add(time.Hour)

		blendedPath := filepath.Join(work, "blended.csv")
		So(table.WriteFlat(blendedPath, []model.ForecastRow{
			flatRow(issue, night, model.P10, 0.0001),
			flatRow(issue, night, model.Expected, 0.0002),
			flatRow(issue, night, model.P90, 0.5),
			flatRow(issue, day, model.P10, 0.25),
			flatRow(issue, day, model.Expected, 0.5),
			flatRow(issue, day, model.P90, 0.75),
		}), ShouldBeNil)

		refPath := filepath.Join(work, "pvlive.csv")
		So(pvlive.WriteCache(refPath, []model.ReferenceRow{
			{StartTime: issue, EndTime: night, GenerationMW: 0, CapacityMW: 13400, InstalledCapacity: 13500},
			{StartTime: night, EndTime: day, GenerationMW: 4000, CapacityMW: 13400, InstalledCapacity: 13500},
		}), ShouldBeNil)

		Convey("When formatting normalized values", func() {
			cfg := newConfig()
			cfg.Normalized = true
			p := pipeline.New(cfg)
			out := filepath.Join(work, "final.csv.gz")
			written, err := p.Format(ctx, pipeline.FormatRequest{
				InputPath:     blendedPath,
				ReferencePath: refPath,
				Output:        out,
			})

			Convey("Then night values clamp to zero and the rest rescale", func() {
				So(err, ShouldBeNil)
				So(written, ShouldEqual, 2)

				rows, err := table.ReadCanonical(out)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].P10, ShouldEqual, 0)
				So(rows[0].GenerationMW, ShouldEqual, 0)
				So(rows[0].P90, ShouldEqual, 6750) // 0.5 * 13500
				So(rows[0].CapacityMW, ShouldEqual, 13400)
				So(rows[1].GenerationMW, ShouldEqual, 6750)
				So(rows[1].StartTime.Equal(night), ShouldBeTrue)
				So(rows[1].EndTime.Equal(day), ShouldBeTrue)
			})
		})

		Convey("When a valid time has no reference observation", func() {
			So(pvlive.WriteCache(refPath, []model.ReferenceRow{
				{StartTime: issue, EndTime: night, GenerationMW: 0, CapacityMW: 13400, InstalledCapacity: 13500},
			}), ShouldBeNil)

			cfg := newConfig()
			cfg.Normalized = true
			p := pipeline.New(cfg)
			_, err := p.Format(ctx, pipeline.FormatRequest{
				InputPath:     blendedPath,
				ReferencePath: refPath,
				Output:        filepath.Join(work, "partial.csv"),
			})

			Convey("Then the capacity sentinel surfaces", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, norm.ErrMissingCapacity), ShouldBeTrue)
			})

			Convey("And no output file is written", func() {
				_, statErr := os.Stat(filepath.Join(work, "partial.csv"))
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})
	})
}

func TestPipelineGaps(t *testing.T) {
	Convey("Given a canonical output with a hole", t, func() {
		ctx := context.Background()
		work := t.TempDir()
		issue := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

		canonical := func(valid time.Time) model.OutputRow {
			return model.OutputRow{
				CreationTime: issue,
				StartTime:    valid.Add(-30 * time.Minute),
				EndTime:      valid,
				CapacityMW:   13400,
				GenerationMW: 1000,
				P10:          900,
				P90:          1100,
			}
		}

		inPath := filepath.Join(work, "final.csv")
		So(table.WriteCanonical(inPath, []model.OutputRow{
			canonical(issue.Add(30 * time.Minute)),
			canonical(issue.Add(time.Hour)),
			// 01:30, 02:00 and 02:30 missing
			canonical(issue.Add(3 * time.Hour)),
		}), ShouldBeNil)

		p := pipeline.New(newConfig())

		Convey("When scanning per-issue valid times", func() {
			reportPath := filepath.Join(work, "gaps.csv")
			gaps, summary, err := p.Gaps(ctx, pipeline.GapsRequest{
				InputPath: inPath,
				Output:    reportPath,
			})

			Convey("Then the 90-minute hole is reported once", func() {
				So(err, ShouldBeNil)
				So(gaps, ShouldHaveLength, 1)
				So(gaps[0].Start.Equal(issue.Add(90*time.Minute)), ShouldBeTrue)
				So(gaps[0].Length, ShouldEqual, 90*time.Minute)
				So(gaps[0].Missing, ShouldEqual, 3)
				So(summary.Gaps, ShouldEqual, 1)
				So(summary.MissingSteps, ShouldEqual, 3)
			})
		})

		Convey("When scanning the issue cadence of a joined output", func() {
			joined := filepath.Join(work, "joined.csv")
			So(table.WriteCanonical(joined, []model.OutputRow{
				canonical(issue.Add(30 * time.Minute)),
				{
					CreationTime: issue.Add(90 * time.Minute), // 00:30 and 01:00 runs missing
					StartTime:    issue.Add(90 * time.Minute),
					EndTime:      issue.Add(2 * time.Hour),
					CapacityMW:   13400,
					GenerationMW: 1000,
					P10:          900,
					P90:          1100,
				},
			}), ShouldBeNil)

			gaps, summary, err := p.Gaps(ctx, pipeline.GapsRequest{
				InputPath:    joined,
				IssueCadence: true,
			})

			Convey("Then the missing runs are reported as one gap", func() {
				So(err, ShouldBeNil)
				So(gaps, ShouldHaveLength, 1)
				So(gaps[0].IssueTime.IsZero(), ShouldBeTrue)
				So(gaps[0].Start.Equal(issue.Add(30*time.Minute)), ShouldBeTrue)
				So(gaps[0].Missing, ShouldEqual, 2)
				So(summary.Series, ShouldEqual, 1)
			})
		})
	})
}

func TestPipelineJoin(t *testing.T) {
	Convey("Given two canonical outputs", t, func() {
		ctx := context.Background()
		work := t.TempDir()
		mayRun := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
		juneRun := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

		row := func(creation time.Time) model.OutputRow {
			return model.OutputRow{
				CreationTime: creation,
				StartTime:    creation,
				EndTime:      creation.Add(30 * time.Minute),
				CapacityMW:   13400,
				GenerationMW: 1000,
				P10:          900,
				P90:          1100,
			}
		}

		firstPath := filepath.Join(work, "may.csv")
		secondPath := filepath.Join(work, "june.csv")
		So(table.WriteCanonical(firstPath, []model.OutputRow{
			row(mayRun), row(mayRun.Add(30 * time.Minute)),
		}), ShouldBeNil)
		So(table.WriteCanonical(secondPath, []model.OutputRow{
			row(juneRun), row(juneRun.Add(30 * time.Minute)),
		}), ShouldBeNil)

		p := pipeline.New(newConfig())

		Convey("When the ranges are disjoint", func() {
			out := filepath.Join(work, "joined.csv")
			written, err := p.Join(ctx, secondPath, firstPath, out)

			Convey("Then the rows concatenate sorted ascending", func() {
				So(err, ShouldBeNil)
				So(written, ShouldEqual, 4)

				rows, err := table.ReadCanonical(out)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 4)
				So(rows[0].CreationTime.Equal(mayRun), ShouldBeTrue)
				So(rows[3].CreationTime.Equal(juneRun.Add(30*time.Minute)), ShouldBeTrue)
			})
		})

		Convey("When the ranges overlap", func() {
			overlapPath := filepath.Join(work, "overlap.csv")
			So(table.WriteCanonical(overlapPath, []model.OutputRow{
				row(mayRun.Add(30 * time.Minute)), row(juneRun),
			}), ShouldBeNil)

			_, err := p.Join(ctx, firstPath, overlapPath, filepath.Join(work, "never.csv"))

			Convey("Then the overlap sentinel surfaces", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, pipeline.ErrOverlappingRanges), ShouldBeTrue)
			})
		})
	})
}

func TestPipelineResample(t *testing.T) {
	Convey("Given an hourly flat table", t, func() {
		ctx := context.Background()
		work := t.TempDir()
		issue := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

		inPath := filepath.Join(work, "hourly.csv")
		So(table.WriteFlat(inPath, []model.ForecastRow{
			flatRow(issue, issue.Add(time.Hour), model.Expected, 100),
			flatRow(issue, issue.Add(2*time.Hour), model.Expected, 200),
		}), ShouldBeNil)

		p := pipeline.New(newConfig())

		Convey("When resampling to the half-hourly grid", func() {
			out := filepath.Join(work, "halfhourly.csv")
			written, err := p.Resample(ctx, inPath, out)

			Convey("Then midpoints interpolate linearly", func() {
				So(err, ShouldBeNil)
				So(written, ShouldEqual, 3)

				rows, err := table.ReadFlat(out)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[0].Value, ShouldEqual, 100)
				So(rows[1].Value, ShouldEqual, 150)
				So(rows[1].ValidTime.Equal(issue.Add(90*time.Minute)), ShouldBeTrue)
				So(rows[2].Value, ShouldEqual, 200)
			})
		})
	})
}

func TestPipelineFetchReference(t *testing.T) {
	Convey("Given a PVLive endpoint", t, func() {
		ctx := context.Background()
		work := t.TempDir()

		payload := `{
			"data": [
				["2021-06-01T01:00:00Z", 220.5, 13500, 13400],
				["2021-06-01T00:30:00Z", 210.25, 13500, 13400]
			],
			"meta": ["datetime_gmt", "generation_mw", "installedcapacity_mwp", "capacity_mwp"]
		}`
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload))
		}))
		defer srv.Close()

		cfg := newConfig()
		cfg.PVLiveURL = srv.URL
		p := pipeline.New(cfg)

		start := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
		end := start.Add(time.Hour)
		cachePath := filepath.Join(work, "pvlive.csv")

		Convey("When fetching into an empty cache", func() {
			written, err := p.FetchReference(ctx, pipeline.FetchRequest{
				Start:  start,
				End:    end,
				Output: cachePath,
			})

			Convey("Then the padded series lands sorted in the cache", func() {
				So(err, ShouldBeNil)
				So(written, ShouldEqual, 3)

				rows, err := pvlive.ReadCache(cachePath)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[0].EndTime.Equal(start), ShouldBeTrue)
				So(rows[0].GenerationMW, ShouldEqual, 210.25)
				So(rows[2].GenerationMW, ShouldEqual, 220.5)
			})
		})

		Convey("When refetching over the same range", func() {
			_, err := p.FetchReference(ctx, pipeline.FetchRequest{Start: start, End: end, Output: cachePath})
			So(err, ShouldBeNil)
			written, err := p.FetchReference(ctx, pipeline.FetchRequest{Start: start, End: end, Output: cachePath})

			Convey("Then the merge keeps one row per period", func() {
				So(err, ShouldBeNil)
				So(written, ShouldEqual, 3)
			})
		})

		Convey("When the range is inverted", func() {
			_, err := p.FetchReference(ctx, pipeline.FetchRequest{
				Start:  end,
				End:    start,
				Output: cachePath,
			})

			Convey("Then the range sentinel surfaces", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, pvlive.ErrBadRange), ShouldBeTrue)
			})
		})
	})
}

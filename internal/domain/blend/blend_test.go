package blend_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/blend"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/dedupe"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/weighting"
	. "github.com/smartystreets/goconvey/convey"
)

var issue = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

func row(issueTime time.Time, horizon time.Duration, q model.Quantile, v float64) model.ForecastRow {
	return model.ForecastRow{
		IssueTime: issueTime,
		ValidTime: issueTime.Add(horizon),
		Quantile:  q,
		Value:     v,
	}
}

func mustRamp(t *testing.T) *weighting.Ramp {
	t.Helper()
	ramp, err := weighting.New()
	if err != nil {
		t.Fatalf("ramp: %v", err)
	}
	return ramp
}

func TestBlendJoin(t *testing.T) {
	Convey("Given a blender with the default ramp and policy", t, func() {
		blender, err := blend.New(mustRamp(t))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When both sides carry a value for a key", func() {
			intraday := []model.ForecastRow{row(issue, 7*time.Hour+30*time.Minute, model.Expected, 10)}
			dayAhead := []model.ForecastRow{row(issue, 7*time.Hour+30*time.Minute, model.Expected, 20)}

			out, stats, err := blender.Blend(ctx, intraday, dayAhead)

			Convey("Then the value is the horizon-weighted average", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 1)
				So(out[0].Value, ShouldAlmostEqual, 15, 1e-9) // w = 0.5 at 7h30m
				So(stats.Blended, ShouldEqual, 1)
			})
		})

		Convey("When the horizon is inside the full-intraday region", func() {
			intraday := []model.ForecastRow{row(issue, 2*time.Hour, model.Expected, 10)}
			dayAhead := []model.ForecastRow{row(issue, 2*time.Hour, model.Expected, 20)}

			out, _, err := blender.Blend(ctx, intraday, dayAhead)

			Convey("Then the intraday value passes through exactly", func() {
				So(err, ShouldBeNil)
				So(out[0].Value, ShouldEqual, 10.0)
			})
		})

		Convey("When the horizon is beyond the full-day-ahead bound", func() {
			intraday := []model.ForecastRow{row(issue, 20*time.Hour, model.Expected, 10)}
			dayAhead := []model.ForecastRow{row(issue, 20*time.Hour, model.Expected, 20)}

			out, _, err := blender.Blend(ctx, intraday, dayAhead)

			Convey("Then the day-ahead value passes through exactly", func() {
				So(err, ShouldBeNil)
				So(out[0].Value, ShouldEqual, 20.0)
			})
		})

		Convey("When keys exist on only one side", func() {
			intraday := []model.ForecastRow{
				row(issue, time.Hour, model.Expected, 1),
				row(issue, 7*time.Hour, model.Expected, 2),
			}
			dayAhead := []model.ForecastRow{
				row(issue, 7*time.Hour, model.Expected, 4),
				row(issue, 24*time.Hour, model.Expected, 8),
			}

			out, stats, err := blender.Blend(ctx, intraday, dayAhead)

			Convey("Then the output covers the union of input keys", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 3)
				So(stats.Blended, ShouldEqual, 1)
				So(stats.IntradayOnly, ShouldEqual, 1)
				So(stats.DayAheadOnly, ShouldEqual, 1)
			})

			Convey("And single-sided values pass through unchanged", func() {
				So(err, ShouldBeNil)
				So(out[0].Value, ShouldEqual, 1.0)
				So(out[2].Value, ShouldEqual, 8.0)
			})

			Convey("And the output is sorted with one row per key", func() {
				So(err, ShouldBeNil)
				seen := make(map[model.RowKey]bool)
				for i, r := range out {
					So(seen[r.Key()], ShouldBeFalse)
					seen[r.Key()] = true
					if i > 0 {
						So(out[i-1].ValidTime.After(r.ValidTime), ShouldBeFalse)
					}
				}
			})
		})

		Convey("When one input is entirely empty", func() {
			dayAhead := []model.ForecastRow{
				row(issue, 24*time.Hour, model.Expected, 8),
				row(issue, 24*time.Hour+30*time.Minute, model.Expected, 9),
			}

			out, stats, err := blender.Blend(ctx, nil, dayAhead)

			Convey("Then blending degrades to pass-through of the other", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(stats.DayAheadOnly, ShouldEqual, 2)
				So(out[0].Value, ShouldEqual, 8.0)
			})
		})

		Convey("When both inputs are empty", func() {
			out, stats, err := blender.Blend(ctx, nil, nil)

			Convey("Then the output is empty and valid", func() {
				So(err, ShouldBeNil)
				So(out, ShouldBeEmpty)
				So(stats.Blended, ShouldEqual, 0)
			})
		})

		Convey("When an input table repeats a key", func() {
			intraday := []model.ForecastRow{
				row(issue, time.Hour, model.Expected, 1),
				row(issue, time.Hour, model.Expected, 2),
			}

			_, _, err := blender.Blend(ctx, intraday, nil)

			Convey("Then the blend fails with the duplicate sentinel", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, dedupe.ErrDuplicateRow), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "intraday")
			})
		})
	})
}

func TestBlendPolicies(t *testing.T) {
	Convey("Given a blender with the drop policy", t, func() {
		blender, err := blend.New(mustRamp(t), blend.WithPolicy(blend.Drop))
		So(err, ShouldBeNil)

		Convey("When blending tables with single-sided keys", func() {
			intraday := []model.ForecastRow{
				row(issue, time.Hour, model.Expected, 1),
				row(issue, 7*time.Hour, model.Expected, 2),
			}
			dayAhead := []model.ForecastRow{row(issue, 7*time.Hour, model.Expected, 4)}

			out, stats, err := blender.Blend(context.Background(), intraday, dayAhead)

			Convey("Then single-sided keys are dropped", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 1)
				So(stats.Dropped, ShouldEqual, 1)
				So(stats.Blended, ShouldEqual, 1)
			})
		})
	})

	Convey("Given an unknown policy name", t, func() {
		_, err := blend.ParsePolicy("keep")

		Convey("Then parsing fails with the policy sentinel", func() {
			So(errors.Is(err, blend.ErrInvalidPolicy), ShouldBeTrue)
		})
	})
}

func TestBlendWindow(t *testing.T) {
	Convey("Given a blender with an issue-time window", t, func() {
		from := issue
		until := issue.Add(time.Hour)
		blender, err := blend.New(mustRamp(t), blend.WithIssueWindow(from, until))
		So(err, ShouldBeNil)

		Convey("When blending issues around the window", func() {
			intraday := []model.ForecastRow{
				row(issue.Add(-30*time.Minute), time.Hour, model.Expected, 1),
				row(issue, time.Hour, model.Expected, 2),
				row(issue.Add(30*time.Minute), time.Hour, model.Expected, 3),
				row(issue.Add(time.Hour), time.Hour, model.Expected, 4),
			}

			out, stats, err := blender.Blend(context.Background(), intraday, nil)

			Convey("Then only issues inside [from, until) remain", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(out[0].IssueTime.Equal(from), ShouldBeTrue)
				So(stats.Windowed, ShouldEqual, 2)
			})
		})
	})

	Convey("Given an empty window", t, func() {
		_, err := blend.New(mustRamp(t), blend.WithIssueWindow(issue, issue))

		Convey("Then construction fails with the window sentinel", func() {
			So(errors.Is(err, blend.ErrInvalidWindow), ShouldBeTrue)
		})
	})
}

func TestBlendZeroHorizonBackfill(t *testing.T) {
	Convey("Given a blender with zero-horizon backfill enabled", t, func() {
		blender, err := blend.New(mustRamp(t), blend.WithZeroHorizonBackfill(true))
		So(err, ShouldBeNil)

		Convey("When consecutive issues each predict the next issue instant", func() {
			next := issue.Add(30 * time.Minute)
			intraday := []model.ForecastRow{
				row(issue, 30*time.Minute, model.Expected, 111), // predicts the next issue instant
				row(next, 30*time.Minute, model.Expected, 222),
			}

			out, stats, err := blender.Blend(context.Background(), intraday, nil)

			Convey("Then the later issue gains a horizon-zero row from its predecessor", func() {
				So(err, ShouldBeNil)
				So(stats.Backfilled, ShouldEqual, 1)
				So(out, ShouldHaveLength, 3)

				var zero *model.ForecastRow
				for i := range out {
					if out[i].IssueTime.Equal(next) && out[i].ValidTime.Equal(next) {
						zero = &out[i]
					}
				}
				So(zero, ShouldNotBeNil)
				So(zero.Value, ShouldEqual, 111.0)
				So(zero.Horizon(), ShouldEqual, time.Duration(0))
			})
		})

		Convey("When the first issue has no predecessor", func() {
			intraday := []model.ForecastRow{row(issue, 30*time.Minute, model.Expected, 111)}

			out, stats, err := blender.Blend(context.Background(), intraday, nil)

			Convey("Then nothing is backfilled", func() {
				So(err, ShouldBeNil)
				So(stats.Backfilled, ShouldEqual, 0)
				So(out, ShouldHaveLength, 1)
			})
		})

		Convey("When a horizon-zero row already exists", func() {
			next := issue.Add(30 * time.Minute)
			intraday := []model.ForecastRow{
				row(issue, 30*time.Minute, model.Expected, 111),
				row(next, 30*time.Minute, model.Expected, 222),
				row(next, 0, model.Expected, 333),
			}

			out, stats, err := blender.Blend(context.Background(), intraday, nil)

			Convey("Then the existing row is left alone", func() {
				So(err, ShouldBeNil)
				So(stats.Backfilled, ShouldEqual, 0)
				for _, r := range out {
					if r.IssueTime.Equal(next) && r.ValidTime.Equal(next) {
						So(r.Value, ShouldEqual, 333.0)
					}
				}
			})
		})
	})
}

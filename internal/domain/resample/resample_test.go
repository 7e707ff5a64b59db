package resample_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/dedupe"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/resample"
	"github.com/smartystreets/goconvey/convey"
)

func TestResample(t *testing.T) {
	convey.Convey("Given a resampler with the default half-hourly target", t, func() {
		resampler := resample.New()
		issue := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
		ctx := context.Background()

		convey.Convey("When resampling an hourly series", func() {
			rows := []model.ForecastRow{
				{IssueTime: issue, ValidTime: issue.Add(time.Hour), Quantile: model.Expected, Value: 100},
				{IssueTime: issue, ValidTime: issue.Add(2 * time.Hour), Quantile: model.Expected, Value: 200},
				{IssueTime: issue, ValidTime: issue.Add(3 * time.Hour), Quantile: model.Expected, Value: 150},
			}

			out, err := resampler.Resample(ctx, rows)

			convey.Convey("Then the output lands on every half-hour step", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldHaveLength, 5)
				convey.So(out[0].ValidTime.Equal(issue.Add(time.Hour)), convey.ShouldBeTrue)
				convey.So(out[4].ValidTime.Equal(issue.Add(3*time.Hour)), convey.ShouldBeTrue)
			})

			convey.Convey("And original points keep their values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out[0].Value, convey.ShouldAlmostEqual, 100, 1e-9)
				convey.So(out[2].Value, convey.ShouldAlmostEqual, 200, 1e-9)
				convey.So(out[4].Value, convey.ShouldAlmostEqual, 150, 1e-9)
			})

			convey.Convey("And midpoints average their neighbours", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out[1].Value, convey.ShouldAlmostEqual, 150, 1e-9)
				convey.So(out[3].Value, convey.ShouldAlmostEqual, 175, 1e-9)
			})
		})

		convey.Convey("When quantile series differ", func() {
			rows := []model.ForecastRow{
				{IssueTime: issue, ValidTime: issue.Add(time.Hour), Quantile: model.P10, Value: 10},
				{IssueTime: issue, ValidTime: issue.Add(2 * time.Hour), Quantile: model.P10, Value: 20},
				{IssueTime: issue, ValidTime: issue.Add(time.Hour), Quantile: model.P90, Value: 100},
				{IssueTime: issue, ValidTime: issue.Add(2 * time.Hour), Quantile: model.P90, Value: 200},
			}

			out, err := resampler.Resample(ctx, rows)

			convey.Convey("Then each quantile interpolates independently", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldHaveLength, 6)
				for _, r := range out {
					if r.Quantile == model.P10 && r.ValidTime.Equal(issue.Add(90*time.Minute)) {
						convey.So(r.Value, convey.ShouldAlmostEqual, 15, 1e-9)
					}
					if r.Quantile == model.P90 && r.ValidTime.Equal(issue.Add(90*time.Minute)) {
						convey.So(r.Value, convey.ShouldAlmostEqual, 150, 1e-9)
					}
				}
			})
		})

		convey.Convey("When a series has a single point", func() {
			rows := []model.ForecastRow{
				{IssueTime: issue, ValidTime: issue.Add(time.Hour), Quantile: model.Expected, Value: 42},
			}

			out, err := resampler.Resample(ctx, rows)

			convey.Convey("Then it passes through unchanged", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldHaveLength, 1)
				convey.So(out[0].Value, convey.ShouldEqual, 42.0)
			})
		})

		convey.Convey("When a series repeats a valid time", func() {
			rows := []model.ForecastRow{
				{IssueTime: issue, ValidTime: issue.Add(time.Hour), Quantile: model.Expected, Value: 1},
				{IssueTime: issue, ValidTime: issue.Add(time.Hour), Quantile: model.Expected, Value: 2},
			}

			_, err := resampler.Resample(ctx, rows)

			convey.Convey("Then the duplicate sentinel is returned", func() {
				convey.So(errors.Is(err, dedupe.ErrDuplicateRow), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a resampler with a quarter-hourly target", t, func() {
		resampler := resample.New(resample.WithTarget(15 * time.Minute))
		issue := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

		convey.Convey("When resampling two half-hourly points", func() {
			rows := []model.ForecastRow{
				{IssueTime: issue, ValidTime: issue.Add(30 * time.Minute), Quantile: model.Expected, Value: 0},
				{IssueTime: issue, ValidTime: issue.Add(time.Hour), Quantile: model.Expected, Value: 100},
			}

			out, err := resampler.Resample(context.Background(), rows)

			convey.Convey("Then three steps cover the interval", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldHaveLength, 3)
				convey.So(out[1].Value, convey.ShouldAlmostEqual, 50, 1e-9)
			})
		})
	})
}

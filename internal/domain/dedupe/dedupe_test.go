package dedupe_test

import (
	"context"
	"testing"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/dedupe"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func rowKey(issueOffset, validOffset time.Duration, q model.Quantile) model.RowKey {
	base := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	return model.ForecastRow{
		IssueTime: base.Add(issueOffset),
		ValidTime: base.Add(validOffset),
		Quantile:  q,
	}.Key()
}

func TestInMemoryTracker(t *testing.T) {
	convey.Convey("Given an unbounded tracker", t, func() {
		tracker := dedupe.NewInMemoryTracker()
		ctx := context.Background()

		convey.Convey("When recording a fresh key", func() {
			seen := tracker.SeenAndRecord(ctx, rowKey(0, time.Hour, model.Expected))

			convey.Convey("Then it is reported as new", func() {
				convey.So(seen, convey.ShouldBeFalse)
				convey.So(tracker.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When recording the same key twice", func() {
			key := rowKey(0, time.Hour, model.P10)
			first := tracker.SeenAndRecord(ctx, key)
			second := tracker.SeenAndRecord(ctx, key)

			convey.Convey("Then the second attempt is flagged as a duplicate", func() {
				convey.So(first, convey.ShouldBeFalse)
				convey.So(second, convey.ShouldBeTrue)
				convey.So(tracker.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When keys differ only by quantile", func() {
			a := tracker.SeenAndRecord(ctx, rowKey(0, time.Hour, model.P10))
			b := tracker.SeenAndRecord(ctx, rowKey(0, time.Hour, model.P90))

			convey.Convey("Then both are recorded", func() {
				convey.So(a, convey.ShouldBeFalse)
				convey.So(b, convey.ShouldBeFalse)
				convey.So(tracker.Size(), convey.ShouldEqual, 2)
			})
		})
	})

	convey.Convey("Given a bounded tracker", t, func() {
		tracker := dedupe.NewInMemoryTracker(dedupe.WithMaxSize(2))
		ctx := context.Background()

		convey.Convey("When recording more keys than the bound", func() {
			k1 := rowKey(0, 30*time.Minute, model.Expected)
			k2 := rowKey(0, time.Hour, model.Expected)
			k3 := rowKey(0, 90*time.Minute, model.Expected)

			tracker.SeenAndRecord(ctx, k1)
			tracker.SeenAndRecord(ctx, k2)
			tracker.SeenAndRecord(ctx, k3)

			convey.Convey("Then the size stays within the bound", func() {
				convey.So(tracker.Size(), convey.ShouldEqual, 2)
			})

			convey.Convey("And the oldest key is forgotten", func() {
				convey.So(tracker.SeenAndRecord(ctx, k1), convey.ShouldBeFalse)
			})

			convey.Convey("And recent keys are still detected", func() {
				convey.So(tracker.SeenAndRecord(ctx, k3), convey.ShouldBeTrue)
			})
		})
	})
}

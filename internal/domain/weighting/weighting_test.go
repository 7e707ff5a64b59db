package weighting_test

import (
	"errors"
	"testing"
	"time"

	weighting "github.com/openclimatefix/uk-pv-backtest/internal/domain/weighting"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRampWeight(t *testing.T) {
	Convey("Given a ramp with the default breakpoints", t, func() {
		ramp, err := weighting.New()
		So(err, ShouldBeNil)

		Convey("When evaluating at or below the full-intraday bound", func() {
			Convey("Then the weight is exactly one", func() {
				So(ramp.Weight(0), ShouldEqual, 1.0)
				So(ramp.Weight(30*time.Minute), ShouldEqual, 1.0)
				So(ramp.Weight(6*time.Hour+30*time.Minute), ShouldEqual, 1.0)
			})
		})

		Convey("When evaluating at or beyond the full-day-ahead bound", func() {
			Convey("Then the weight is exactly zero", func() {
				So(ramp.Weight(8*time.Hour+30*time.Minute), ShouldEqual, 0.0)
				So(ramp.Weight(36*time.Hour), ShouldEqual, 0.0)
			})
		})

		Convey("When evaluating inside the ramp", func() {
			Convey("Then it reproduces the historical blend ratios", func() {
				So(ramp.Weight(7*time.Hour), ShouldAlmostEqual, 0.75, 1e-12)
				So(ramp.Weight(7*time.Hour+30*time.Minute), ShouldAlmostEqual, 0.50, 1e-12)
				So(ramp.Weight(8*time.Hour), ShouldAlmostEqual, 0.25, 1e-12)
			})

			Convey("And the weight never increases with horizon", func() {
				prev := 1.0
				for h := time.Duration(0); h <= 10*time.Hour; h += 15 * time.Minute {
					w := ramp.Weight(h)
					So(w, ShouldBeLessThanOrEqualTo, prev)
					So(w, ShouldBeBetweenOrEqual, 0, 1)
					prev = w
				}
			})
		})
	})

	Convey("Given a ramp with custom breakpoints", t, func() {
		ramp, err := weighting.New(
			weighting.WithBreakpoints(8*time.Hour, 36*time.Hour),
		)
		So(err, ShouldBeNil)

		Convey("When evaluating at the midpoint of the ramp", func() {
			Convey("Then the weight is one half", func() {
				So(ramp.Weight(22*time.Hour), ShouldAlmostEqual, 0.5, 1e-12)
			})
		})

		Convey("When reading back the breakpoints", func() {
			lo, hi := ramp.Breakpoints()

			Convey("Then they match the configuration", func() {
				So(lo, ShouldEqual, 8*time.Hour)
				So(hi, ShouldEqual, 36*time.Hour)
			})
		})
	})
}

func TestRampValidation(t *testing.T) {
	Convey("Given inverted breakpoints", t, func() {
		_, err := weighting.New(
			weighting.WithBreakpoints(9*time.Hour, 6*time.Hour),
		)

		Convey("Then construction fails with the ramp sentinel", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, weighting.ErrInvalidRamp), ShouldBeTrue)
		})
	})

	Convey("Given equal breakpoints", t, func() {
		_, err := weighting.New(
			weighting.WithBreakpoints(8*time.Hour, 8*time.Hour),
		)

		Convey("Then construction fails", func() {
			So(errors.Is(err, weighting.ErrInvalidRamp), ShouldBeTrue)
		})
	})

	Convey("Given a negative breakpoint", t, func() {
		_, err := weighting.New(
			weighting.WithBreakpoints(-time.Hour, 8*time.Hour),
		)

		Convey("Then construction fails", func() {
			So(errors.Is(err, weighting.ErrInvalidRamp), ShouldBeTrue)
		})
	})
}

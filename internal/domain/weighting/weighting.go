// Package weighting computes the intraday share of a blended forecast value
// as a function of forecast horizon.
package weighting

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/interp"
)

// Default ramp breakpoints. With these bounds the blend carries 75% intraday
// at 7h, 50% at 7h30m and 25% at 8h.
const (
	DefaultFullIntradayUntil = 6*time.Hour + 30*time.Minute
	DefaultFullDayAheadFrom  = 8*time.Hour + 30*time.Minute
)

// Option applies a configuration option to the Ramp.
type Option func(*Ramp)

// WithBreakpoints sets the horizons bounding the linear ramp.
func WithBreakpoints(fullIntradayUntil, fullDayAheadFrom time.Duration) Option {
	return func(r *Ramp) {
		r.fullIntradayUntil = fullIntradayUntil
		r.fullDayAheadFrom = fullDayAheadFrom
	}
}

// Ramp maps a forecast horizon to the intraday weight in [0,1].
// The weight is exactly 1 up to the first breakpoint, exactly 0 from the
// second, and linear in between. It is monotonic non-increasing.
type Ramp struct {
	fullIntradayUntil time.Duration
	fullDayAheadFrom  time.Duration
	line              interp.PiecewiseLinear
}

// New builds a Ramp. Breakpoints are validated here so that a misconfigured
// ramp fails before any row is processed.
func New(opts ...Option) (*Ramp, error) {
	r := &Ramp{
		fullIntradayUntil: DefaultFullIntradayUntil,
		fullDayAheadFrom:  DefaultFullDayAheadFrom,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.fullIntradayUntil < 0 || r.fullDayAheadFrom < 0 {
		return nil, fmt.Errorf("%w: breakpoints must not be negative (got %s, %s)",
			ErrInvalidRamp, r.fullIntradayUntil, r.fullDayAheadFrom)
	}
	if r.fullIntradayUntil >= r.fullDayAheadFrom {
		return nil, fmt.Errorf("%w: full-intraday bound %s must be below full-day-ahead bound %s",
			ErrInvalidRamp, r.fullIntradayUntil, r.fullDayAheadFrom)
	}

	xs := []float64{r.fullIntradayUntil.Hours(), r.fullDayAheadFrom.Hours()}
	ys := []float64{1, 0}
	if err := r.line.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRamp, err)
	}

	return r, nil
}

// Weight returns the intraday share for the given horizon. The day-ahead
// share is 1 - Weight.
func (r *Ramp) Weight(horizon time.Duration) float64 {
	h := horizon.Hours()
	switch {
	case h <= r.fullIntradayUntil.Hours():
		return 1
	case h >= r.fullDayAheadFrom.Hours():
		return 0
	default:
		return r.line.Predict(h)
	}
}

// Breakpoints returns the configured ramp bounds.
func (r *Ramp) Breakpoints() (fullIntradayUntil, fullDayAheadFrom time.Duration) {
	return r.fullIntradayUntil, r.fullDayAheadFrom
}

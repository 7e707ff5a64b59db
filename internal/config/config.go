// Package config defines pipeline configuration and loading.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Layer an optional YAML file and UKPV_-prefixed env vars on top.
// - External errors must be wrapped via this package's error sentinels.
package config

import (
	"context"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr enables the Prometheus listener when non-empty,
	// e.g. ":9090". Long backtests expose progress there.
	MetricsAddr string `koanf:"metrics_addr"`

	// GSP selects the location extracted from the consolidated archive;
	// 0 is the national aggregate.
	GSP int `koanf:"gsp"`

	// Quantiles lists the labels extracted and carried through the
	// pipeline.
	Quantiles []string `koanf:"quantiles"`

	// IntervalMinutes is the settlement period length.
	IntervalMinutes int `koanf:"interval_minutes"`

	// FullIntradayUntilMinutes and FullDayAheadFromMinutes are the blend
	// ramp breakpoints: fully intraday at or below the first horizon,
	// fully day-ahead at or beyond the second.
	FullIntradayUntilMinutes int `koanf:"full_intraday_until_minutes"`
	FullDayAheadFromMinutes  int `koanf:"full_day_ahead_from_minutes"`

	// SingleSource decides what happens to rows present on only one side
	// of the blend: passthrough or drop.
	SingleSource string `koanf:"single_source"`

	// BackfillZeroHorizon copies each issue's first-step value from the
	// previous issue when the zero-horizon row is missing.
	BackfillZeroHorizon bool `koanf:"backfill_zero_horizon"`

	// Normalized marks forecast values as capacity fractions that must
	// be rescaled against the reference series.
	Normalized bool `koanf:"normalized"`

	// NightThreshold zeroes normalized values at or below it before
	// rescaling.
	NightThreshold float64 `koanf:"night_threshold"`

	// Glob matches per-run files inside the compile input directory.
	Glob string `koanf:"glob"`

	// PVLiveURL overrides the PVLive API root; empty selects the client
	// default.
	PVLiveURL string `koanf:"pvlive_url"`

	// PVLiveEntity and PVLiveEntityID select the series fetched from
	// PVLive; gsp/0 is the national aggregate.
	PVLiveEntity   string `koanf:"pvlive_entity"`
	PVLiveEntityID int    `koanf:"pvlive_entity_id"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and currently
// unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:                 "info",
		MetricsAddr:              "",
		GSP:                      0,
		Quantiles:                []string{"p10", "expected", "p90"},
		IntervalMinutes:          30,
		FullIntradayUntilMinutes: 390,
		FullDayAheadFromMinutes:  510,
		SingleSource:             "passthrough",
		NightThreshold:           0.000234,
		Glob:                     "*.csv",
		PVLiveEntity:             "gsp",
		PVLiveEntityID:           0,
	}
	return c
}

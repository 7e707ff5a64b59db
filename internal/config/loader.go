package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/blend"
	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML), path argument or UKPV_CONFIG
//  3. env (prefix UKPV_)
func Load(ctx context.Context, path string) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path == "" {
		path = os.Getenv("UKPV_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: UKPV_GSP, UKPV_NIGHT_THRESHOLD, ...
	// Map env keys like UKPV_NIGHT_THRESHOLD -> night_threshold (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("UKPV_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "ukpv_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects values no stage could run with. Ramp breakpoints are
// checked where the ramp is built, so their error kind stays consistent for
// flag and config paths alike.
func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.GSP < 0 {
		return fmt.Errorf("%w: gsp must not be negative, got %d", ErrInvalidConfig, c.GSP)
	}
	if c.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: interval_minutes must be positive, got %d", ErrInvalidConfig, c.IntervalMinutes)
	}
	if _, err := model.ParseQuantiles(c.Quantiles); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := blend.ParsePolicy(c.SingleSource); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.NightThreshold < 0 {
		return fmt.Errorf("%w: night_threshold must not be negative, got %g", ErrInvalidConfig, c.NightThreshold)
	}
	if c.Glob == "" {
		return fmt.Errorf("%w: glob must not be empty", ErrInvalidConfig)
	}
	return nil
}

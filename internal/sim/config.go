package sim

import "time"

// Config holds the simulated backtest parameters
type Config struct {
	Dir          string    // Working directory for generated and derived files
	Days         int       // Days of issue times to simulate
	IssuesPerDay int       // Forecast runs per source per day; must divide 24 evenly
	Horizons     int       // Half-hour steps per intraday run
	ExtraGSPs    int       // Regional locations generated besides the national aggregate
	Workers      int       // Number of concurrent run writers
	Seed         int64     // Generator seed; equal seeds reproduce a simulation exactly
	Start        time.Time // First issue time
	LogFile      string    // Log file for simulation output
	Verbose      bool      // Enable verbose logging
}

// Stats holds simulation statistics
type Stats struct {
	RunsGenerated int
	RowsGenerated int
	RowsExtracted int
	RowsResampled int
	RowsBlended   int
	RowsFormatted int
	RowsRejoined  int
	GapsFound     int
	ChecksRun     int
	ChecksFailed  int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pipeline "github.com/openclimatefix/uk-pv-backtest/internal/app"
)

var (
	blendIntraday  string
	blendDayAhead  string
	blendOut       string
	blendFrom      string
	blendUntil     string
	blendPolicy    string
	blendRampStart int
	blendRampEnd   int
	blendBackfill  bool
)

// blendCmd merges the intraday and day-ahead tables under the horizon ramp.
var blendCmd = &cobra.Command{
	Use:   "blend",
	Short: "Blend intraday and day-ahead tables under the horizon ramp",
	Long: `Outer-joins two flat tables on issue time, valid time and quantile.
Keys present on both sides take the horizon-weighted average: fully
intraday at short horizons, fully day-ahead at long ones, linear in
between. One-sided keys follow the single-source policy.`,
	RunE: runBlend,
}

func init() {
	blendCmd.Flags().StringVar(&blendIntraday, "intraday", "", "Intraday flat table (required)")
	blendCmd.Flags().StringVar(&blendDayAhead, "day-ahead", "", "Day-ahead flat table (required)")
	blendCmd.Flags().StringVarP(&blendOut, "out", "o", "blended.csv", "Output table path")
	blendCmd.Flags().StringVar(&blendFrom, "from", "", "Keep issue times at or after this instant")
	blendCmd.Flags().StringVar(&blendUntil, "until", "", "Drop issue times at or after this instant")
	blendCmd.Flags().StringVar(&blendPolicy, "single-source", "", "Policy for one-sided rows: passthrough or drop")
	blendCmd.Flags().IntVar(&blendRampStart, "full-intraday-until", 0, "Horizon in minutes fully served by the intraday source")
	blendCmd.Flags().IntVar(&blendRampEnd, "full-day-ahead-from", 0, "Horizon in minutes fully served by the day-ahead source")
	blendCmd.Flags().BoolVar(&blendBackfill, "backfill-zero-horizon", false, "Fill horizon zero from the previous issue")
	_ = blendCmd.MarkFlagRequired("intraday")
	_ = blendCmd.MarkFlagRequired("day-ahead")
	rootCmd.AddCommand(blendCmd)
}

func runBlend(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("single-source") {
		cfg.SingleSource = blendPolicy
	}
	if cmd.Flags().Changed("full-intraday-until") {
		cfg.FullIntradayUntilMinutes = blendRampStart
	}
	if cmd.Flags().Changed("full-day-ahead-from") {
		cfg.FullDayAheadFromMinutes = blendRampEnd
	}
	if cmd.Flags().Changed("backfill-zero-horizon") {
		cfg.BackfillZeroHorizon = blendBackfill
	}

	from, err := parseTimeFlag(blendFrom)
	if err != nil {
		return err
	}
	until, err := parseTimeFlag(blendUntil)
	if err != nil {
		return err
	}

	stats, err := newPipeline().Blend(cmd.Context(), pipeline.BlendRequest{
		IntradayPath: blendIntraday,
		DayAheadPath: blendDayAhead,
		Output:       blendOut,
		From:         from,
		Until:        until,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Blended %d rows (%d intraday only, %d day-ahead only, %d dropped, %d backfilled) into %s\n",
		stats.Blended, stats.IntradayOnly, stats.DayAheadOnly, stats.Dropped, stats.Backfilled, blendOut)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resampleOut      string
	resampleInterval int
)

// resampleCmd densifies a flat table onto the settlement period grid.
var resampleCmd = &cobra.Command{
	Use:   "resample [table]",
	Short: "Interpolate a flat table onto the settlement period grid",
	Long: `Linearly interpolates each forecast trajectory onto the settlement
period grid, filling the steps an hourly model run leaves out. Only
interior points are filled; trajectories are never extrapolated.`,
	Args: cobra.ExactArgs(1),
	RunE: runResample,
}

func init() {
	resampleCmd.Flags().StringVarP(&resampleOut, "out", "o", "resampled.csv", "Output table path")
	resampleCmd.Flags().IntVar(&resampleInterval, "interval", 0, "Target grid spacing in minutes")
	rootCmd.AddCommand(resampleCmd)
}

func runResample(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("interval") {
		cfg.IntervalMinutes = resampleInterval
	}

	rows, err := newPipeline().Resample(cmd.Context(), args[0], resampleOut)
	if err != nil {
		return err
	}

	fmt.Printf("Resampled to %d rows in %s\n", rows, resampleOut)
	return nil
}

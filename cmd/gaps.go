package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	pipeline "github.com/openclimatefix/uk-pv-backtest/internal/app"
)

var (
	gapsOut    string
	gapsIssues bool
)

// gapsCmd scans a formatted output for holes in its timestamp coverage.
var gapsCmd = &cobra.Command{
	Use:   "gaps [table]",
	Short: "Scan a formatted output for missing timestamps",
	Long: `Walks each forecast's settlement periods and reports every run of
missing timestamps, with a length distribution. The input file is never
modified. With --issue-times the scan checks the spacing of forecast
issues instead of each forecast's coverage.`,
	Args: cobra.ExactArgs(1),
	RunE: runGaps,
}

func init() {
	gapsCmd.Flags().StringVarP(&gapsOut, "out", "o", "", "Write the gap report to this CSV")
	gapsCmd.Flags().BoolVar(&gapsIssues, "issue-times", false, "Scan the issue-time cadence instead of per-issue coverage")
	rootCmd.AddCommand(gapsCmd)
}

func runGaps(cmd *cobra.Command, args []string) error {
	_, summary, err := newPipeline().Gaps(cmd.Context(), pipeline.GapsRequest{
		InputPath:    args[0],
		Output:       gapsOut,
		IssueCadence: gapsIssues,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d series, %d timestamps: %d gaps, %d missing steps\n",
		summary.Series, summary.Samples, summary.Gaps, summary.MissingSteps)
	if summary.Gaps == 0 {
		return nil
	}

	fmt.Printf("Mean gap %s, longest %s\n", summary.MeanLength, summary.MaxLength)
	lengths := make([]time.Duration, 0, len(summary.ByLength))
	for length := range summary.ByLength {
		lengths = append(lengths, length)
	}
	sort.Slice(lengths, func(i, j int) bool { return lengths[i] < lengths[j] })
	for _, length := range lengths {
		fmt.Printf("  %d gap(s) of %s\n", summary.ByLength[length], length)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var joinOut string

// joinCmd concatenates two formatted outputs covering disjoint ranges.
var joinCmd = &cobra.Command{
	Use:   "join [first] [second]",
	Short: "Join two formatted outputs covering disjoint issue-time ranges",
	Long: `Concatenates two formatted outputs and writes the result sorted by
issue time. The two inputs must cover disjoint issue-time ranges;
overlapping ranges abort rather than deduplicate silently.`,
	Args: cobra.ExactArgs(2),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVarP(&joinOut, "out", "o", "joined.csv.gz", "Output file path")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	rows, err := newPipeline().Join(cmd.Context(), args[0], args[1], joinOut)
	if err != nil {
		return err
	}

	fmt.Printf("Joined %d rows into %s\n", rows, joinOut)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	compileOut  string
	compileGlob string
)

// compileCmd folds a directory of per-run forecast files into one archive.
var compileCmd = &cobra.Command{
	Use:   "compile [run-dir]",
	Short: "Consolidate per-run forecast files into one archive",
	Long: `Reads every run file in the directory, checks the schemas agree and
writes a single consolidated archive sorted by issue time. Files that do
not parse are skipped and logged; files that parse but disagree on the
schema abort the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileOut, "out", "o", "consolidated.csv.gz", "Output archive path")
	compileCmd.Flags().StringVar(&compileGlob, "glob", "", "Pattern matching run files inside the directory")
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("glob") {
		cfg.Glob = compileGlob
	}

	stats, err := newPipeline().Compile(cmd.Context(), args[0], compileOut)
	if err != nil {
		return err
	}

	fmt.Printf("Consolidated %d runs (%d skipped) into %s: %d rows across %d issue times\n",
		stats.FilesRead, stats.FilesSkipped, compileOut, stats.Rows, stats.IssueTimes)
	return nil
}

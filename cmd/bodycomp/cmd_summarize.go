package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"bodycomp/pkg/pipeline"
)

func newSummarizeCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "summarize [results-dir]",
		Short: "Aggregate metric artifacts into a CSV manifest",
		Long: `Summarize scans every metric artifact under the results directory,
resolves anatomical level context where available and writes one flat
manifest row per (artifact, model) pair. The manifest is rebuilt in full
on every run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			resultsDir := cfg.Output.ResultsDir
			if len(args) == 1 {
				resultsDir = args[0]
			}
			if output == "" {
				output = filepath.Join(resultsDir, "manifest.csv")
			}

			_, err = pipeline.Summarize(resultsDir, output)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Manifest output path (default <results-dir>/manifest.csv)")
	return cmd
}

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"bodycomp/pkg/config"
)

var version = "dev"

// configPath is shared by every subcommand through the persistent flag
var configPath string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bodycomp",
		Short: "Body-composition analysis for abdominal CT series",
		Long: `Bodycomp ingests DICOM CT series, localizes vertebral levels from
segmentation model output, measures calibrated tissue composition per
anatomical level, and aggregates per-scan results into a CSV manifest.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "bodycomp.yaml", "Path to the configuration file")
	verbose := cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *verbose {
			setLogLevelDebug()
		}
	}

	// Add subcommands
	cmd.AddCommand(newProcess2DCommand())
	cmd.AddCommand(newProcess3DCommand())
	cmd.AddCommand(newSummarizeCommand())
	cmd.AddCommand(newConfigCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Output.Verbose {
		setLogLevelDebug()
	}
	return cfg, nil
}

// setLogLevelDebug enables debug-level logging on the default slog logger.
// Equivalent to slog.SetLogLoggerLevel(slog.LevelDebug), which requires Go 1.22+.
func setLogLevelDebug() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bodycomp/pkg/config"
	"bodycomp/pkg/inference"
	"bodycomp/pkg/pipeline"
)

// processFlags overrides configuration file settings for one run
type processFlags struct {
	batchSize    int
	workers      int
	devices      []int
	models       []string
	resultsDir   string
	minSlices    int
	overwrite    bool
	saveOverlays bool
}

func (f *processFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "Slices per inference batch")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Worker count forwarded to the inference backend")
	cmd.Flags().IntSliceVar(&f.devices, "devices", nil, "Accelerator device indices used round-robin")
	cmd.Flags().StringSliceVar(&f.models, "models", nil, "Tissue models to run")
	cmd.Flags().StringVar(&f.resultsDir, "results-dir", "", "Results directory override")
	cmd.Flags().IntVar(&f.minSlices, "min-slices", 0, "Minimum series length; shorter series are skipped")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "Reprocess scans whose results already exist")
	cmd.Flags().BoolVar(&f.saveOverlays, "save-overlays", false, "Write segmentation overlay images")
}

// apply folds explicitly set flags into the loaded configuration
func (f *processFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("batch-size") {
		cfg.Processing.BatchSize = f.batchSize
	}
	if cmd.Flags().Changed("workers") {
		cfg.Processing.Workers = f.workers
	}
	if cmd.Flags().Changed("devices") {
		cfg.Processing.Devices = f.devices
	}
	if cmd.Flags().Changed("models") {
		cfg.Models.TissueModels = f.models
	}
	if cmd.Flags().Changed("results-dir") {
		cfg.Output.ResultsDir = f.resultsDir
	}
	if cmd.Flags().Changed("min-slices") {
		cfg.Processing.MinSlices = f.minSlices
	}
	if cmd.Flags().Changed("overwrite") {
		cfg.Processing.Overwrite = f.overwrite
	}
	if cmd.Flags().Changed("save-overlays") {
		cfg.Output.SaveOverlays = f.saveOverlays
	}
}

func newProcess2DCommand() *cobra.Command {
	var flags processFlags
	cmd := &cobra.Command{
		Use:   "process_2d <input-dir>",
		Short: "Segment tissues on level-selected slices of every scan",
		Long: `Process every DICOM series under the input directory with the 2D
tissue pipeline: localize vertebral levels, select one slice per level,
run the configured tissue models over them in batches, and write one
metric artifact per level.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args[0], &flags, false)
		},
	}
	flags.register(cmd)
	return cmd
}

func newProcess3DCommand() *cobra.Command {
	var flags processFlags
	cmd := &cobra.Command{
		Use:   "process_3d <input-dir>",
		Short: "Measure vertebral bodies volumetrically for every scan",
		Long: `Process every DICOM series under the input directory with the 3D
spine pipeline: segment the whole volume, localize vertebral levels and
write per-scan vertebral measurements plus the level context used by
summarize.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args[0], &flags, true)
		},
	}
	flags.register(cmd)
	return cmd
}

func runProcess(cmd *cobra.Command, inputDir string, flags *processFlags, volumetric bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	volumeEngine, sliceEngine, err := buildEngines(cfg, volumetric)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, volumeEngine, sliceEngine)
	var sum pipeline.Summary
	if volumetric {
		sum, err = p.ProcessAll3D(cmd.Context(), inputDir)
	} else {
		sum, err = p.ProcessAll2D(cmd.Context(), inputDir)
	}
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d scan(s) failed", sum.Failed, sum.Found)
	}
	return nil
}

// buildEngines wires the subprocess-backed inference collaborators. Both
// pipelines need the volume engine for spine localization; only the 2D
// pipeline needs the slice engine.
func buildEngines(cfg *config.Config, volumetric bool) (inference.VolumeEngine, inference.SliceEngine, error) {
	if cfg.Inference.Command3D == "" {
		return nil, nil, fmt.Errorf("inference.command3d is not configured")
	}
	volumeEngine := &inference.CommandVolumeEngine{
		Command: cfg.Inference.Command3D,
		WorkDir: cfg.Models.StorageDir,
	}

	if volumetric {
		return volumeEngine, nil, nil
	}
	if cfg.Inference.Command2D == "" {
		return nil, nil, fmt.Errorf("inference.command2d is not configured")
	}
	sliceEngine := &inference.CommandSliceEngine{
		Command: cfg.Inference.Command2D,
		WorkDir: cfg.Models.StorageDir,
	}
	return volumeEngine, sliceEngine, nil
}

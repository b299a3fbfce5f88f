// Package pipeline drives per-scan body-composition processing: series
// guarding, spine localization, ROI extraction and artifact writing, with
// a bounded fan-out across scans. A single control flow drives each scan;
// entities produced by one stage are immutable inputs to the next.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"bodycomp/internal/models"
	"bodycomp/pkg/artifacts"
	"bodycomp/pkg/config"
	"bodycomp/pkg/dicomio"
	"bodycomp/pkg/inference"
	"bodycomp/pkg/spine"
)

// DefaultTissueClasses maps tissue segmentation labels to names
var DefaultTissueClasses = map[uint8]string{
	1: "muscle",
	2: "vat",
	3: "sat",
}

// errSkipped marks a scan excluded by a skip condition, not a failure
var errSkipped = errors.New("scan skipped")

// Processor runs the 2D and 3D pipelines over discovered series
type Processor struct {
	cfg          *config.Config
	spineEngine  inference.VolumeEngine
	tissueEngine inference.SliceEngine

	// LevelNames maps spine segmentation labels to level names
	LevelNames map[uint8]string

	// TissueClasses maps tissue segmentation labels to tissue names
	TissueClasses map[uint8]string

	// series access, replaceable in tests
	readSeries  func(string) (*models.Series, error)
	countSlices func(string) (int, error)
}

// New creates a Processor. The volume engine segments whole series for
// spine localization; the slice engine segments selected slices for
// tissue measurement.
func New(cfg *config.Config, spineEngine inference.VolumeEngine, tissueEngine inference.SliceEngine) *Processor {
	return &Processor{
		cfg:           cfg,
		spineEngine:   spineEngine,
		tissueEngine:  tissueEngine,
		LevelNames:    spine.DefaultLevelNames,
		TissueClasses: DefaultTissueClasses,
		readSeries:    dicomio.ReadSeries,
		countSlices:   dicomio.CountSlices,
	}
}

// Summary counts the outcome of one processing run
type Summary struct {
	// Found is the number of series directories discovered
	Found int

	// Processed is the number of scans completing their stage
	Processed int

	// Skipped counts scans excluded by a skip condition (short series,
	// existing results without overwrite)
	Skipped int

	// Failed counts scans whose processing errored; failures are
	// isolated and never abort sibling scans
	Failed int
}

// ProcessAll3D runs the volumetric spine pipeline over every series found
// under inputDir. Zero discovered scans is a clean empty summary.
func (p *Processor) ProcessAll3D(ctx context.Context, inputDir string) (Summary, error) {
	return p.processAll(ctx, inputDir, p.processScan3D)
}

// ProcessAll2D runs the per-slice tissue pipeline over every series found
// under inputDir.
func (p *Processor) ProcessAll2D(ctx context.Context, inputDir string) (Summary, error) {
	return p.processAll(ctx, inputDir, p.processScan2D)
}

func (p *Processor) processAll(ctx context.Context, inputDir string, stage func(context.Context, string) error) (Summary, error) {
	dirs, err := dicomio.FindSeriesDirs(inputDir)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Found: len(dirs)}
	if len(dirs) == 0 {
		fmt.Println("No scans found, nothing to do")
		return sum, nil
	}
	fmt.Printf("Found %d scan(s) under %s\n", len(dirs), inputDir)

	workers := p.cfg.Processing.ScanWorkers
	if workers < 1 {
		workers = 1
	}

	// failures are recorded, not propagated, so one bad scan never
	// cancels its siblings
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			err := p.runScan(ctx, dir, stage)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sum.Processed++
			case errors.Is(err, errSkipped):
				sum.Skipped++
			default:
				sum.Failed++
				slog.Error("scan failed", "scan", filepath.Base(dir), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	fmt.Printf("Done: %d processed, %d skipped, %d failed\n",
		sum.Processed, sum.Skipped, sum.Failed)
	return sum, nil
}

// runScan applies the skip guards, prepares the scan's results directory
// and hands off to the stage function.
func (p *Processor) runScan(ctx context.Context, dir string, stage func(context.Context, string) error) error {
	scan := filepath.Base(dir)

	n, err := p.countSlices(dir)
	if err != nil {
		return err
	}
	if min := p.cfg.Processing.MinSlices; n < min {
		slog.Info("skipping short series", "scan", scan, "slices", n, "minimum", min)
		return errSkipped
	}

	outDir := p.scanDir(scan)
	if !p.cfg.Processing.Overwrite {
		if _, err := os.Stat(filepath.Join(outDir, artifacts.SpineContextName)); err == nil {
			slog.Info("results already exist, skipping", "scan", scan)
			return errSkipped
		}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	return stage(ctx, dir)
}

func (p *Processor) scanDir(scan string) string {
	return filepath.Join(p.cfg.Output.ResultsDir, scan)
}

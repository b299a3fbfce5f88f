package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"bodycomp/internal/models"
	"bodycomp/pkg/artifacts"
	"bodycomp/pkg/calibration"
	"bodycomp/pkg/inference"
	"bodycomp/pkg/roi"
	"bodycomp/pkg/spine"
	"bodycomp/pkg/visualization"
)

// scanContext carries everything the stage functions derive once per scan
type scanContext struct {
	scan   string
	outDir string
	series *models.Series
	vol    *models.SegmentationVolume
	tf     calibration.Transform
	levels []spine.Level
}

// prepareScan reads the series, segments the spine and localizes levels.
// Both stages start here: slice selection is level-driven, so the 2D
// pipeline needs the spine volume as much as the 3D one does.
// A series without usable calibration metadata fails the scan; falling
// back to raw values would silently skew every Hounsfield measurement.
func (p *Processor) prepareScan(ctx context.Context, dir string) (*scanContext, error) {
	scan := filepath.Base(dir)
	outDir := p.scanDir(scan)

	series, err := p.readSeries(dir)
	if err != nil {
		return nil, fmt.Errorf("reading series: %w", err)
	}

	fmt.Printf("Segmenting spine for %s (%d slices)...\n", scan, series.NumSlices())
	vol, meta, err := p.spineEngine.Segment(ctx, dir, filepath.Join(outDir, "spine_seg"), p.cfg.Models.SpineModel)
	if err != nil {
		return nil, fmt.Errorf("spine segmentation: %w", err)
	}

	slope, intercept := meta.RescaleSlope, meta.RescaleIntercept
	if slope == "" && intercept == "" {
		slope, intercept = series.RescaleSlope, series.RescaleIntercept
	}
	tf, err := calibration.Parse(slope, intercept)
	if err != nil {
		slog.Error("calibration metadata unusable, failing scan", "scan", scan, "error", err)
		return nil, err
	}

	levels, err := spine.Localize(vol, series, p.LevelNames)
	if err != nil {
		return nil, fmt.Errorf("localizing levels: %w", err)
	}

	return &scanContext{
		scan:   scan,
		outDir: outDir,
		series: series,
		vol:    vol,
		tf:     tf,
		levels: levels,
	}, nil
}

// processScan3D measures the vertebral bodies themselves: one ROI per
// localized level, written as a single per-scan artifact plus the spine
// context consumed by summarization.
func (p *Processor) processScan3D(ctx context.Context, dir string) error {
	sc, err := p.prepareScan(ctx, dir)
	if err != nil {
		return err
	}

	rois, err := p.vertebralROIs(sc)
	if err != nil {
		return err
	}

	a := &artifacts.Artifact{Scan: sc.scan}
	var entries []artifacts.SpineEntry
	for i, lv := range sc.levels {
		r := rois[i]
		a.Put(p.cfg.Models.SpineModel, lv.Name, "area_mm2", artifacts.Scalar(r.AreaMM2))
		a.Put(p.cfg.Models.SpineModel, lv.Name, "area_pixels", artifacts.Scalar(float64(r.AreaPixels)))

		entry := artifacts.SpineEntry{
			File:  lv.SourcePath,
			Label: lv.Name + "_" + sc.scan,
		}
		if r.HasMean {
			a.Put(p.cfg.Models.SpineModel, lv.Name, "mean_hu", artifacts.Scalar(float64(r.MeanHU)))
			hu := float64(r.MeanHU)
			entry.ReferenceHU = &hu
		}
		entries = append(entries, entry)
	}

	path := filepath.Join(sc.outDir, sc.scan+"_spine"+artifacts.Suffix)
	if err := a.WriteFile(path); err != nil {
		return fmt.Errorf("writing spine artifact: %w", err)
	}
	return p.writeSpineContext(sc, entries)
}

// processScan2D selects one slice per localized level, runs the batched
// tissue models over them and writes one artifact per level carrying the
// level label as its join key.
func (p *Processor) processScan2D(ctx context.Context, dir string) error {
	sc, err := p.prepareScan(ctx, dir)
	if err != nil {
		return err
	}

	sel, err := spine.SelectSlices(sc.series, sc.levels)
	if err != nil {
		return err
	}
	if sel.Len() == 0 {
		slog.Warn("no levels localized, nothing to segment", "scan", sc.scan)
	}

	refs := make([]inference.SliceRef, sel.Len())
	for i := range refs {
		refs[i] = inference.SliceRef{Path: sel.Files[i], Label: sel.Labels[i]}
	}

	opts := inference.BatchOptions{
		BatchSize: p.cfg.Processing.BatchSize,
		Workers:   p.cfg.Processing.Workers,
		Devices:   p.cfg.Processing.Devices,
	}

	levelArts := make([]*artifacts.Artifact, sel.Len())
	for mi, model := range p.cfg.Models.TissueModels {
		opts.Model = model
		fmt.Printf("Running %s on %d slice(s) for %s...\n", model, sel.Len(), sc.scan)

		results, err := inference.RunBatches(ctx, p.tissueEngine, refs, opts)
		if err != nil {
			return fmt.Errorf("tissue inference with %s: %w", model, err)
		}

		for i, res := range results {
			lv := sc.levels[i]
			raw := sc.series.Slices[lv.SliceIndex].Pixels
			rois, err := roi.Extract(lv.Name, res.Mask, raw, sc.tf,
				sc.series.PixelAreaMM2(), p.TissueClasses)
			if err != nil {
				return fmt.Errorf("extracting ROIs at %s: %w", lv.Name, err)
			}

			if levelArts[i] == nil {
				levelArts[i] = &artifacts.Artifact{
					Scan:   sc.scan,
					Level:  sel.Labels[i],
					Source: sel.Files[i],
				}
			}
			for _, r := range rois {
				levelArts[i].Put(model, r.Tissue, "area_mm2", artifacts.Scalar(r.AreaMM2))
				levelArts[i].Put(model, r.Tissue, "area_pixels", artifacts.Scalar(float64(r.AreaPixels)))
				if r.HasMean {
					levelArts[i].Put(model, r.Tissue, "mean_hu", artifacts.Scalar(float64(r.MeanHU)))
				}
			}

			if mi == 0 && p.cfg.Output.SaveOverlays {
				overlay := filepath.Join(sc.outDir, sel.Labels[i]+".png")
				if err := p.saveOverlay(overlay, sc.series.Slices[lv.SliceIndex], sc.tf, res.Mask); err != nil {
					slog.Warn("overlay rendering failed", "scan", sc.scan, "level", lv.Name, "error", err)
				}
			}
		}
	}

	for i, a := range levelArts {
		if a == nil {
			continue
		}
		path := filepath.Join(sc.outDir, sel.Labels[i]+artifacts.Suffix)
		if err := a.WriteFile(path); err != nil {
			return fmt.Errorf("writing artifact for %s: %w", sel.Labels[i], err)
		}
	}

	rois, err := p.vertebralROIs(sc)
	if err != nil {
		return err
	}
	entries := make([]artifacts.SpineEntry, len(sc.levels))
	for i, lv := range sc.levels {
		entries[i] = artifacts.SpineEntry{File: lv.SourcePath, Label: lv.Name + "_" + sc.scan}
		if rois[i].HasMean {
			hu := float64(rois[i].MeanHU)
			entries[i].ReferenceHU = &hu
		}
	}
	return p.writeSpineContext(sc, entries)
}

// vertebralROIs measures the vertebra itself on each level's
// representative slice, index-aligned with sc.levels.
func (p *Processor) vertebralROIs(sc *scanContext) ([]roi.ROI, error) {
	out := make([]roi.ROI, len(sc.levels))
	for i, lv := range sc.levels {
		mask := sc.vol.AxialMask(lv.SliceIndex)
		raw := sc.series.Slices[lv.SliceIndex].Pixels
		rois, err := roi.Extract(lv.Name, mask, raw, sc.tf,
			sc.series.PixelAreaMM2(), map[uint8]string{lv.Class: lv.Name})
		if err != nil {
			return nil, fmt.Errorf("measuring vertebra at %s: %w", lv.Name, err)
		}
		out[i] = rois[0]
	}
	return out, nil
}

// saveOverlay renders the segmentation over the slice using the
// configured display window and size cap and writes the PNG.
func (p *Processor) saveOverlay(path string, sl models.Slice, tf calibration.Transform, mask *models.SegmentationMask) error {
	o := visualization.NewOverlay(sl, tf)
	if w := p.cfg.Output.OverlayWindowWidth; w > 0 {
		o.SetWindow(p.cfg.Output.OverlayWindowCenter, w)
	}
	img, err := o.RenderScaled(mask, p.cfg.Output.OverlayMaxDim)
	if err != nil {
		return err
	}
	return o.Save(img, path)
}

func (p *Processor) writeSpineContext(sc *scanContext, entries []artifacts.SpineEntry) error {
	path := filepath.Join(sc.outDir, artifacts.SpineContextName)
	if err := artifacts.WriteSpineContext(path, &artifacts.SpineContext{Entries: entries}); err != nil {
		return fmt.Errorf("writing spine context: %w", err)
	}
	return nil
}

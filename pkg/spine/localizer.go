// Package spine locates anatomical vertebral levels in a segmentation
// volume and maps them back to the source DICOM slices they were derived
// from.
package spine

import (
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"bodycomp/internal/models"
)

// DefaultLevelNames maps the spine model's class ids to vertebral level
// names, superior to inferior.
var DefaultLevelNames = map[uint8]string{
	1: "T12",
	2: "L1",
	3: "L2",
	4: "L3",
	5: "L4",
	6: "L5",
}

// Level is a named anatomical level identified in a segmentation volume.
// Levels are immutable once created.
type Level struct {
	// Name is the anatomical level name, e.g. "L3"
	Name string

	// Class is the voxel label this level was derived from
	Class uint8

	// SliceIndex is the representative axial slice: the central slice of
	// the label's axial extent
	SliceIndex int

	// Centroid is the mean voxel coordinate (x, y, z) of the label
	Centroid [3]float64

	// SourcePath is the DICOM file of the representative slice
	SourcePath string
}

// Localize identifies the anatomical levels present in vol and orders them
// superior to inferior. Discontiguous voxels carrying the same label are
// treated as one region spanning the full label extent; segmentation noise
// therefore shifts a centroid rather than splitting a level. A level name
// whose label has no voxels is omitted with a diagnostic, never an error.
func Localize(vol *models.SegmentationVolume, series *models.Series, names map[uint8]string) ([]Level, error) {
	if vol.Depth != series.NumSlices() {
		return nil, fmt.Errorf("spine: volume depth %d does not match series slice count %d",
			vol.Depth, series.NumSlices())
	}

	classes := make([]uint8, 0, len(names))
	for class := range names {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	levels := make([]Level, 0, len(classes))
	for _, class := range classes {
		lvl, ok := localizeClass(vol, class, names[class])
		if !ok {
			slog.Warn("spine level absent from segmentation, omitting",
				"level", names[class], "class", class, "series", series.Dir)
			continue
		}
		lvl.SourcePath = series.Slices[lvl.SliceIndex].Path
		levels = append(levels, lvl)
	}

	// Superior to inferior: higher axial slice index first. Ties broken by
	// class id so the ordering is deterministic on degenerate volumes.
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].SliceIndex != levels[j].SliceIndex {
			return levels[i].SliceIndex > levels[j].SliceIndex
		}
		return levels[i].Class < levels[j].Class
	})

	return levels, nil
}

func localizeClass(vol *models.SegmentationVolume, class uint8, name string) (Level, bool) {
	var xs, ys, zs []float64
	zMin, zMax := vol.Depth, -1

	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				if vol.At(x, y, z) != class {
					continue
				}
				xs = append(xs, float64(x))
				ys = append(ys, float64(y))
				zs = append(zs, float64(z))
				if z < zMin {
					zMin = z
				}
				if z > zMax {
					zMax = z
				}
			}
		}
	}

	if len(xs) == 0 {
		return Level{}, false
	}

	return Level{
		Name:       name,
		Class:      class,
		SliceIndex: (zMin + zMax) / 2,
		Centroid: [3]float64{
			stat.Mean(xs, nil),
			stat.Mean(ys, nil),
			stat.Mean(zs, nil),
		},
	}, true
}

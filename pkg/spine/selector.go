package spine

import (
	"fmt"
	"path/filepath"
	"strings"

	"bodycomp/internal/models"
)

// Selection maps anatomical levels to the concrete source slices that 2D
// inference should run on. The three lists are mutually index-aligned:
// position i in Files corresponds to position i in Labels and Centroids.
// Downstream consumers rely on this alignment instead of keyed lookup.
type Selection struct {
	// Files holds the source DICOM file for each selected slice
	Files []string

	// Labels holds the human-readable level label for each slice,
	// "<level>_<series id>", e.g. "L3_scan012"
	Labels []string

	// Centroids holds the level centroid for each slice
	Centroids [][3]float64
}

// Len returns the number of selected slices.
func (s Selection) Len() int {
	return len(s.Files)
}

// SelectSlices maps each level to its representative source slice. The
// result is valid for an empty level sequence: all three lists come back
// empty but non-nil, still index-aligned.
func SelectSlices(series *models.Series, levels []Level) (Selection, error) {
	sel := Selection{
		Files:     make([]string, 0, len(levels)),
		Labels:    make([]string, 0, len(levels)),
		Centroids: make([][3]float64, 0, len(levels)),
	}

	seriesID := filepath.Base(series.Dir)
	for _, lvl := range levels {
		if lvl.SliceIndex < 0 || lvl.SliceIndex >= series.NumSlices() {
			return Selection{}, fmt.Errorf("spine: level %s slice index %d outside series of %d slices",
				lvl.Name, lvl.SliceIndex, series.NumSlices())
		}
		sel.Files = append(sel.Files, series.Slices[lvl.SliceIndex].Path)
		sel.Labels = append(sel.Labels, lvl.Name+"_"+seriesID)
		sel.Centroids = append(sel.Centroids, lvl.Centroid)
	}

	return sel, nil
}

// ShortForm returns the level part of a label string: the segment before
// the first separator. "L3_scan012" yields "L3".
func ShortForm(label string) string {
	if i := strings.Index(label, "_"); i >= 0 {
		return label[:i]
	}
	return label
}

// Package roi carves tissue regions of interest out of segmentation masks
// and summarizes them as calibrated scalar statistics.
package roi

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"bodycomp/internal/models"
	"bodycomp/pkg/calibration"
)

// ROI summarizes one tissue class at one anatomical level. An ROI is never
// mutated after creation.
type ROI struct {
	// Level is the anatomical level the ROI is tied to, e.g. "L3"
	Level string

	// Tissue is the tissue class name, e.g. "muscle"
	Tissue string

	// AreaPixels is the number of mask pixels matching the tissue class
	AreaPixels int

	// AreaMM2 is the physical area in mm², 0 when pixel spacing is unknown
	AreaMM2 float64

	// MeanHU is the mean calibrated intensity over the ROI. Only valid
	// when HasMean is true.
	MeanHU calibration.HU

	// HasMean is false for an empty ROI: the tissue is absent at this
	// level and the mean is missing, not zero.
	HasMean bool
}

// Extract computes one ROI per tissue class for a single level slice. The
// mask and the raw pixel array must share the slice's grid. A tissue with
// zero matching pixels yields a defined empty ROI (zero area, missing mean)
// rather than an error or a silent 0.0 mean. Results are ordered by class id
// for determinism.
func Extract(level string, mask *models.SegmentationMask, raw []int32, tf calibration.Transform,
	pixelAreaMM2 float64, tissues map[uint8]string) ([]ROI, error) {

	if len(raw) != len(mask.Labels) {
		return nil, fmt.Errorf("roi: pixel array length %d does not match mask length %d",
			len(raw), len(mask.Labels))
	}

	classes := make([]uint8, 0, len(tissues))
	for class := range tissues {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	rois := make([]ROI, 0, len(classes))
	for _, class := range classes {
		var values []float64
		for i, label := range mask.Labels {
			if label == class {
				values = append(values, float64(tf.Apply(float64(raw[i]))))
			}
		}

		r := ROI{
			Level:      level,
			Tissue:     tissues[class],
			AreaPixels: len(values),
			AreaMM2:    float64(len(values)) * pixelAreaMM2,
		}
		if len(values) > 0 {
			r.MeanHU = calibration.HU(stat.Mean(values, nil))
			r.HasMean = true
		}
		rois = append(rois, r)
	}

	return rois, nil
}

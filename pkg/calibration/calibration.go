// Package calibration converts raw stored CT pixel values into calibrated
// Hounsfield Units using the per-series linear rescale transform.
package calibration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// HU is a calibrated Hounsfield Unit value. It is a distinct type from the
// raw stored pixel values so that raw and calibrated intensities cannot be
// mixed in downstream computation: every Transform method accepts raw values
// and returns HU, and nothing in this package accepts HU as input.
type HU float64

// MissingCalibrationError reports a series whose rescale metadata is absent
// or not numeric. Callers decide whether to propagate or fall back to raw
// values; either way the decision must be logged, never silent.
type MissingCalibrationError struct {
	// Field names the offending attribute, e.g. "RescaleSlope"
	Field string

	// Value is the raw attribute text ("" when the tag was absent)
	Value string
}

func (e *MissingCalibrationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("calibration: %s is missing", e.Field)
	}
	return fmt.Sprintf("calibration: %s %q is not numeric", e.Field, e.Value)
}

// Transform is the per-series linear map from stored pixel values to
// Hounsfield Units: HU = raw*Slope + Intercept.
type Transform struct {
	Slope     float64
	Intercept float64
}

// Parse builds a Transform from the raw DICOM decimal strings of
// RescaleSlope and RescaleIntercept. An empty or non-numeric value yields a
// MissingCalibrationError.
func Parse(slope, intercept string) (Transform, error) {
	s, err := parseField("RescaleSlope", slope)
	if err != nil {
		return Transform{}, err
	}
	i, err := parseField("RescaleIntercept", intercept)
	if err != nil {
		return Transform{}, err
	}
	return Transform{Slope: s, Intercept: i}, nil
}

func parseField(name, value string) (float64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, &MissingCalibrationError{Field: name}
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &MissingCalibrationError{Field: name, Value: value}
	}
	return f, nil
}

// Identity returns the transform that maps raw values to themselves. It is
// the explicit fall-back for callers that decide to keep raw intensities
// when a series carries no rescale metadata.
func Identity() Transform {
	return Transform{Slope: 1, Intercept: 0}
}

// Apply calibrates a single raw stored value.
func (t Transform) Apply(raw float64) HU {
	return HU(raw*t.Slope + t.Intercept)
}

// ApplyAll calibrates a raw pixel array into Hounsfield Units.
func (t Transform) ApplyAll(raw []int32) []HU {
	out := make([]HU, len(raw))
	for i, v := range raw {
		out[i] = t.Apply(float64(v))
	}
	return out
}

package models

// Slice represents a single axial CT slice with metadata
type Slice struct {
	// Path is the source DICOM file this slice was read from
	Path string

	// Index is the position of this slice in the series sequence
	Index int

	// Location is the physical position of the slice along the series axis in mm
	Location float64

	// Rows and Cols are the pixel grid dimensions of the slice
	Rows, Cols int

	// Pixels holds the raw stored pixel values in row-major order.
	// These are uncalibrated: they must pass through the calibration
	// transform before they can be interpreted as Hounsfield Units.
	Pixels []int32
}

// At returns the raw stored pixel value at (x, y).
func (s *Slice) At(x, y int) int32 {
	return s.Pixels[y*s.Cols+x]
}

// Series represents one DICOM series: an ordered sequence of slices read
// from a single source directory, sharing series-level calibration metadata.
type Series struct {
	// Dir is the source directory the series was discovered in
	Dir string

	// Slices is the ordered slice sequence (by instance number, then filename)
	Slices []Slice

	// RescaleSlope and RescaleIntercept are the series-level linear
	// calibration metadata, kept as the raw DICOM decimal strings so
	// absent or malformed values stay detectable downstream.
	RescaleSlope     string
	RescaleIntercept string

	// PixelSpacing is the physical size of a pixel in mm (row, column).
	// Zero when the series does not carry the tag.
	PixelSpacing [2]float64
}

// NumSlices returns the number of slices in the series.
func (s *Series) NumSlices() int {
	return len(s.Slices)
}

// PixelAreaMM2 returns the physical area of one pixel in mm², or 0 when
// the series carries no pixel spacing.
func (s *Series) PixelAreaMM2() float64 {
	return s.PixelSpacing[0] * s.PixelSpacing[1]
}

package models

// SegmentationMask is a 2D labeled array produced by an inference
// collaborator for a single slice. Each pixel holds a tissue/level class
// id, with 0 meaning background. Masks are immutable inputs to the core.
type SegmentationMask struct {
	// Labels holds the class ids in row-major order
	Labels []uint8

	// Width and Height are the mask dimensions, matching the source slice
	Width, Height int
}

// At returns the class id at (x, y).
func (m *SegmentationMask) At(x, y int) uint8 {
	return m.Labels[y*m.Width+x]
}

// SegmentationVolume is a 3D labeled volume with the same grid as its
// source series. Voxel classes encode anatomical levels for the spine
// model and tissue types for the 2D models.
type SegmentationVolume struct {
	// Labels holds the class ids as a 1D array in row-major order,
	// z-major: index = z*Width*Height + y*Width + x
	Labels []uint8

	// Width, Height, Depth are the volume dimensions in voxels
	Width, Height, Depth int
}

// At returns the class id at voxel (x, y, z).
func (v *SegmentationVolume) At(x, y, z int) uint8 {
	return v.Labels[z*v.Width*v.Height+y*v.Width+x]
}

// AxialMask extracts the 2D mask for the axial slice at index z.
func (v *SegmentationVolume) AxialMask(z int) *SegmentationMask {
	n := v.Width * v.Height
	labels := make([]uint8, n)
	copy(labels, v.Labels[z*n:(z+1)*n])
	return &SegmentationMask{
		Labels: labels,
		Width:  v.Width,
		Height: v.Height,
	}
}

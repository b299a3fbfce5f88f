// Package inference defines the boundary to the external neural-network
// collaborators and the batched orchestration that drives the 2D one.
// Model definitions, weights and inference numerics live entirely behind
// these interfaces.
package inference

import (
	"context"

	"bodycomp/internal/models"
)

// CPUDevice is the device index used when no accelerator is available.
const CPUDevice = -1

// SliceRef identifies one slice submitted for 2D inference.
type SliceRef struct {
	// Path is the source DICOM file
	Path string

	// Label is the level label the slice was selected for, e.g.
	// "L3_scan012"; may be empty for non-spine-aware runs
	Label string
}

// SliceResult pairs one input slice with its segmentation mask, aligned by
// submission order.
type SliceResult struct {
	// Path echoes the input file identity
	Path string

	// Mask is the tissue segmentation for the slice
	Mask *models.SegmentationMask
}

// BatchOptions configures one orchestrated 2D inference run. The device
// list is explicit configuration threaded through function boundaries;
// there is no process-wide device state.
type BatchOptions struct {
	// BatchSize is the number of slices submitted per collaborator call
	BatchSize int

	// Workers is the collaborator-internal parallelism degree, forwarded
	// as-is
	Workers int

	// Devices lists the accelerator device indices to rotate across.
	// Empty means a single CPU-style executor.
	Devices []int

	// Model is the model identity to run
	Model string
}

// SliceEngine is the external 2D inference collaborator. One call processes
// one batch on one device and returns per-slice results aligned with the
// input order.
type SliceEngine interface {
	Infer(ctx context.Context, refs []SliceRef, device int, opts BatchOptions) ([]SliceResult, error)
}

// VolumeMeta is the calibration metadata the 3D collaborator exposes
// alongside its segmentation volume, as raw DICOM decimal strings.
type VolumeMeta struct {
	RescaleSlope     string
	RescaleIntercept string
}

// VolumeEngine is the external 3D spine inference collaborator: it
// segments a whole series and persists its raw output at artifactPath.
type VolumeEngine interface {
	Segment(ctx context.Context, seriesDir, artifactPath, model string) (*models.SegmentationVolume, VolumeMeta, error)
}

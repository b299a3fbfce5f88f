package roi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodycomp/internal/models"
	"bodycomp/pkg/calibration"
)

var testTissues = map[uint8]string{1: "muscle", 2: "vat", 3: "sat"}

func testMask(labels []uint8, w, h int) *models.SegmentationMask {
	return &models.SegmentationMask{Labels: labels, Width: w, Height: h}
}

func TestExtractMeanAndArea(t *testing.T) {
	// 2x2 slice: two muscle pixels, one vat, one background
	mask := testMask([]uint8{1, 1, 2, 0}, 2, 2)
	raw := []int32{1024, 1124, 924, 0}
	tf := calibration.Transform{Slope: 1, Intercept: -1024}

	rois, err := Extract("L3", mask, raw, tf, 0.25, testTissues)
	require.NoError(t, err)
	require.Len(t, rois, 3)

	muscle := rois[0]
	assert.Equal(t, "muscle", muscle.Tissue)
	assert.Equal(t, "L3", muscle.Level)
	assert.Equal(t, 2, muscle.AreaPixels)
	assert.InDelta(t, 0.5, muscle.AreaMM2, 1e-9)
	require.True(t, muscle.HasMean)
	// (0 + 100) / 2 after calibration
	assert.InDelta(t, 50, float64(muscle.MeanHU), 1e-9)

	vat := rois[1]
	assert.Equal(t, "vat", vat.Tissue)
	assert.Equal(t, 1, vat.AreaPixels)
	require.True(t, vat.HasMean)
	assert.InDelta(t, -100, float64(vat.MeanHU), 1e-9)
}

func TestExtractEmptyROI(t *testing.T) {
	// No sat pixels anywhere: area 0 and a flagged missing mean, never a
	// divide-by-zero or a silent 0.0
	mask := testMask([]uint8{1, 1, 1, 1}, 2, 2)
	raw := []int32{10, 20, 30, 40}

	rois, err := Extract("L1", mask, raw, calibration.Identity(), 0, testTissues)
	require.NoError(t, err)

	sat := rois[2]
	assert.Equal(t, "sat", sat.Tissue)
	assert.Equal(t, 0, sat.AreaPixels)
	assert.False(t, sat.HasMean)
	assert.Equal(t, calibration.HU(0), sat.MeanHU)
}

func TestExtractLengthMismatch(t *testing.T) {
	mask := testMask([]uint8{1, 2}, 2, 1)
	_, err := Extract("L2", mask, []int32{5}, calibration.Identity(), 0, testTissues)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestExtractDeterministicOrder(t *testing.T) {
	mask := testMask([]uint8{3, 2, 1, 0}, 2, 2)
	raw := []int32{1, 2, 3, 4}

	for i := 0; i < 5; i++ {
		rois, err := Extract("L4", mask, raw, calibration.Identity(), 0, testTissues)
		require.NoError(t, err)
		require.Len(t, rois, 3)
		assert.Equal(t, "muscle", rois[0].Tissue)
		assert.Equal(t, "vat", rois[1].Tissue)
		assert.Equal(t, "sat", rois[2].Tissue)
	}
}

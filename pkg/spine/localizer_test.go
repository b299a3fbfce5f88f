package spine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodycomp/internal/models"
)

// testVolume builds a width x height x depth volume and fills the given
// axial slice ranges with a class label.
func testVolume(w, h, d int, fill map[uint8][2]int) *models.SegmentationVolume {
	vol := &models.SegmentationVolume{
		Labels: make([]uint8, w*h*d),
		Width:  w,
		Height: h,
		Depth:  d,
	}
	for class, zRange := range fill {
		for z := zRange[0]; z <= zRange[1]; z++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					vol.Labels[z*w*h+y*w+x] = class
				}
			}
		}
	}
	return vol
}

func testSeries(dir string, n int) *models.Series {
	s := &models.Series{Dir: dir}
	for i := 0; i < n; i++ {
		s.Slices = append(s.Slices, models.Slice{
			Path:  fmt.Sprintf("%s/slice_%03d.dcm", dir, i),
			Index: i,
		})
	}
	return s
}

func TestLocalizeOrdersSuperiorToInferior(t *testing.T) {
	// L1 occupies the upper slices, L3 the lower ones
	vol := testVolume(4, 4, 12, map[uint8][2]int{
		2: {8, 11}, // L1
		4: {0, 3},  // L3
	})
	series := testSeries("scan01", 12)

	levels, err := Localize(vol, series, DefaultLevelNames)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	assert.Equal(t, "L1", levels[0].Name)
	assert.Equal(t, "L3", levels[1].Name)
	assert.Greater(t, levels[0].SliceIndex, levels[1].SliceIndex)
}

func TestLocalizeRepresentativeSliceAndCentroid(t *testing.T) {
	vol := testVolume(4, 4, 10, map[uint8][2]int{4: {2, 6}})
	series := testSeries("scan02", 10)

	levels, err := Localize(vol, series, DefaultLevelNames)
	require.NoError(t, err)
	require.Len(t, levels, 1)

	lvl := levels[0]
	assert.Equal(t, "L3", lvl.Name)
	// Central slice of the axial extent [2, 6]
	assert.Equal(t, 4, lvl.SliceIndex)
	assert.Equal(t, series.Slices[4].Path, lvl.SourcePath)
	// Full-slice fill: centroid sits at the grid center
	assert.InDelta(t, 1.5, lvl.Centroid[0], 1e-9)
	assert.InDelta(t, 1.5, lvl.Centroid[1], 1e-9)
	assert.InDelta(t, 4.0, lvl.Centroid[2], 1e-9)
}

func TestLocalizeOmitsEmptyLevels(t *testing.T) {
	// Only L2 is present; the other named levels must be silently omitted
	// from the result (with a diagnostic), not reported as an error.
	vol := testVolume(4, 4, 6, map[uint8][2]int{3: {1, 4}})
	series := testSeries("scan03", 6)

	levels, err := Localize(vol, series, DefaultLevelNames)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "L2", levels[0].Name)
}

func TestLocalizeDiscontiguousLabelIsOneRegion(t *testing.T) {
	// Two disjoint runs of the same label: policy is one region spanning
	// the full extent, so the representative slice lands between them.
	vol := testVolume(2, 2, 11, map[uint8][2]int{5: {0, 1}})
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			vol.Labels[10*2*2+y*2+x] = 5
		}
	}
	series := testSeries("scan04", 11)

	levels, err := Localize(vol, series, DefaultLevelNames)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, 5, levels[0].SliceIndex)
}

func TestLocalizeDepthMismatch(t *testing.T) {
	vol := testVolume(2, 2, 4, nil)
	series := testSeries("scan05", 6)

	_, err := Localize(vol, series, DefaultLevelNames)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestSelectSlicesIndexAlignment(t *testing.T) {
	series := testSeries("scan06", 8)
	levels := []Level{
		{Name: "L1", Class: 2, SliceIndex: 6, Centroid: [3]float64{1, 2, 6}},
		{Name: "L2", Class: 3, SliceIndex: 4, Centroid: [3]float64{1, 2, 4}},
		{Name: "L3", Class: 4, SliceIndex: 1, Centroid: [3]float64{1, 2, 1}},
	}

	sel, err := SelectSlices(series, levels)
	require.NoError(t, err)

	require.Equal(t, len(sel.Files), len(sel.Labels))
	require.Equal(t, len(sel.Files), len(sel.Centroids))
	require.Equal(t, 3, sel.Len())

	for i, lvl := range levels {
		assert.Equal(t, series.Slices[lvl.SliceIndex].Path, sel.Files[i])
		assert.Equal(t, lvl.Name+"_scan06", sel.Labels[i])
		assert.Equal(t, lvl.Centroid, sel.Centroids[i])
	}
}

func TestSelectSlicesEmptyLevels(t *testing.T) {
	sel, err := SelectSlices(testSeries("scan07", 3), nil)
	require.NoError(t, err)

	assert.NotNil(t, sel.Files)
	assert.NotNil(t, sel.Labels)
	assert.NotNil(t, sel.Centroids)
	assert.Equal(t, 0, sel.Len())
}

func TestSelectSlicesOutOfRange(t *testing.T) {
	series := testSeries("scan08", 2)
	_, err := SelectSlices(series, []Level{{Name: "L5", SliceIndex: 9}})
	require.Error(t, err)
}

func TestShortForm(t *testing.T) {
	assert.Equal(t, "L3", ShortForm("L3_scan012"))
	assert.Equal(t, "T12", ShortForm("T12_x"))
	assert.Equal(t, "L5", ShortForm("L5"))
}

// Package dicomio discovers and reads DICOM series from disk. It is the
// concrete edge of the file-discovery and DICOM-parsing collaborator
// boundary: everything past here works on the in-memory Series model.
package dicomio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"bodycomp/internal/models"
)

// FindSeriesDirs walks root and returns every directory containing at least
// one DICOM file, sorted lexicographically for reproducible processing
// order. A root with no series is an empty result, not an error.
func FindSeriesDirs(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("dicomio: resolving %s: %w", root, err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("dicomio: input directory: %w", err)
	}

	seen := make(map[string]bool)
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if !d.IsDir() && isDicomName(d.Name()) {
			seen[filepath.Dir(path)] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dicomio: walking %s: %w", absRoot, err)
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// CountSlices returns the number of DICOM files in a series directory
// without parsing them. It backs the minimum-slice-count guard that skips
// short series before any inference is attempted.
func CountSlices(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("dicomio: reading %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && isDicomName(e.Name()) {
			n++
		}
	}
	return n, nil
}

func isDicomName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".dcm")
}

// ReadSeries parses every DICOM file in dir into an ordered Series. Slices
// are ordered by instance number, falling back to physical slice location
// and finally to filename order when tags are absent. Series-level
// calibration metadata is taken from the first
// slice; all slices in a series share it by invariant.
func ReadSeries(dir string) (*models.Series, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dicomio: reading %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isDicomName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("dicomio: no DICOM files in %s", dir)
	}
	sort.Strings(names)

	series := &models.Series{Dir: dir}
	slices := make([]seriesSlice, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		ds, err := dicom.ParseFile(path, nil)
		if err != nil {
			return nil, fmt.Errorf("dicomio: parsing %s: %w", path, err)
		}

		sl, hasLoc, err := sliceFromDataset(ds, path)
		if err != nil {
			return nil, err
		}

		p := seriesSlice{slice: sl, hasLoc: hasLoc}
		if inst, ok := intTagValue(ds, tag.InstanceNumber); ok {
			p.instance = inst
			p.hasInst = true
		}
		slices = append(slices, p)

		if len(slices) == 1 {
			series.RescaleSlope = stringTagValue(ds, tag.RescaleSlope)
			series.RescaleIntercept = stringTagValue(ds, tag.RescaleIntercept)
			series.PixelSpacing = pixelSpacing(ds)
		}
	}

	sort.SliceStable(slices, func(i, j int) bool {
		return sliceBefore(slices[i], slices[j])
	})

	for i := range slices {
		slices[i].slice.Index = i
		series.Slices = append(series.Slices, slices[i].slice)
	}
	return series, nil
}

// seriesSlice pairs a decoded slice with the ordering metadata read
// alongside it.
type seriesSlice struct {
	slice    models.Slice
	instance int
	hasInst  bool
	hasLoc   bool
}

// sliceBefore orders slices by instance number, falling back to the
// physical slice location and finally to filename.
func sliceBefore(a, b seriesSlice) bool {
	if a.hasInst && b.hasInst {
		return a.instance < b.instance
	}
	if a.hasLoc && b.hasLoc && a.slice.Location != b.slice.Location {
		return a.slice.Location < b.slice.Location
	}
	return a.slice.Path < b.slice.Path
}

func sliceFromDataset(ds dicom.Dataset, path string) (models.Slice, bool, error) {
	rows, okR := intTagValue(ds, tag.Rows)
	cols, okC := intTagValue(ds, tag.Columns)
	if !okR || !okC {
		return models.Slice{}, false, fmt.Errorf("dicomio: %s is missing pixel grid dimensions", path)
	}

	sl := models.Slice{
		Path: path,
		Rows: rows,
		Cols: cols,
	}
	loc, hasLoc := floatTagValue(ds, tag.SliceLocation)
	if hasLoc {
		sl.Location = loc
	}

	pixelEl, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return models.Slice{}, false, fmt.Errorf("dicomio: %s has no pixel data: %w", path, err)
	}
	info := dicom.MustGetPixelDataInfo(pixelEl.Value)
	if len(info.Frames) == 0 {
		return models.Slice{}, false, fmt.Errorf("dicomio: %s has no frames", path)
	}

	// CT series carry one frame per file
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return models.Slice{}, false, fmt.Errorf("dicomio: decoding %s: %w", path, err)
	}

	// 16-bit grayscale storage assumed: the 16-bit channel value is the
	// raw stored pixel value.
	sl.Pixels = make([]int32, rows*cols)
	bounds := img.Bounds()
	for y := 0; y < rows && y < bounds.Dy(); y++ {
		for x := 0; x < cols && x < bounds.Dx(); x++ {
			v, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			sl.Pixels[y*cols+x] = int32(v)
		}
	}
	return sl, hasLoc, nil
}

func stringTagValue(ds dicom.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return ""
	}
	if vals, ok := el.Value.GetValue().([]string); ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func intTagValue(ds dicom.Dataset, t tag.Tag) (int, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch vals := el.Value.GetValue().(type) {
	case []int:
		if len(vals) > 0 {
			return vals[0], true
		}
	case []string:
		if len(vals) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(vals[0])); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func floatTagValue(ds dicom.Dataset, t tag.Tag) (float64, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	if vals, ok := el.Value.GetValue().([]string); ok && len(vals) > 0 {
		if f, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func pixelSpacing(ds dicom.Dataset) [2]float64 {
	el, err := ds.FindElementByTag(tag.PixelSpacing)
	if err != nil {
		return [2]float64{}
	}
	vals, ok := el.Value.GetValue().([]string)
	if !ok || len(vals) < 2 {
		return [2]float64{}
	}
	row, err1 := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
	col, err2 := strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
	if err1 != nil || err2 != nil {
		return [2]float64{}
	}
	return [2]float64{row, col}
}

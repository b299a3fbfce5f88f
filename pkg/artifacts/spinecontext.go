package artifacts

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SpineContextName is the per-scan file the 3D stage writes next to its
// metric artifacts.
const SpineContextName = "levels.json"

// SpineEntry ties one anatomical level to its source slice and its
// reference Hounsfield value.
type SpineEntry struct {
	// File is the DICOM file identity of the level's representative slice
	File string `json:"file"`

	// Label is the level label string, e.g. "L3_scan012"
	Label string `json:"label"`

	// ReferenceHU is the level's mean vertebral Hounsfield value, nil
	// when the representative slice holds no vertebral pixels. The value
	// is missing then, never zero.
	ReferenceHU *float64 `json:"reference_hu,omitempty"`
}

// SpineContext is the spine-aware aggregation context: index-aligned level
// metadata for one or more scans.
type SpineContext struct {
	Entries []SpineEntry `json:"levels"`
}

// WriteSpineContext persists the context for one scan.
func WriteSpineContext(path string, ctx *SpineContext) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("artifacts: creating directory: %w", err)
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("artifacts: encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("artifacts: writing %s: %w", path, err)
	}
	return nil
}

// ReadSpineContext loads one scan's context file.
func ReadSpineContext(path string) (*SpineContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifacts: reading %s: %w", path, err)
	}
	var ctx SpineContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("artifacts: parsing %s: %w", path, err)
	}
	return &ctx, nil
}

// LoadSpineContexts discovers every per-scan context file under a results
// directory (sorted by path) and merges their entries. A directory with no
// context files yields an empty context, not an error: summarization then
// runs without spine awareness.
func LoadSpineContexts(root string) (*SpineContext, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if !d.IsDir() && d.Name() == SpineContextName {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: walking %s: %w", root, err)
	}
	sort.Strings(paths)

	merged := &SpineContext{}
	for _, p := range paths {
		ctx, err := ReadSpineContext(p)
		if err != nil {
			return nil, err
		}
		merged.Entries = append(merged.Entries, ctx.Entries...)
	}
	return merged, nil
}

package artifacts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover walks a results directory and returns every metric artifact file
// underneath it, sorted lexicographically by path so manifests are
// reproducible regardless of filesystem ordering.
func Discover(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("artifacts: resolving %s: %w", root, err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("artifacts: results directory: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), Suffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: walking %s: %w", absRoot, err)
	}

	sort.Strings(paths)
	return paths, nil
}

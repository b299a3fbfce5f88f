package manifest

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"bodycomp/pkg/artifacts"
	"bodycomp/pkg/spine"
)

// Aggregate scans a results directory for metric artifacts and builds one
// record per (artifact, model) pair, in artifact-discovery order
// (lexicographic by path). When a spine context is supplied, each record is
// joined to its anatomical level and reference Hounsfield value; without
// context only the artifact's own file identity is attached. Artifacts with
// zero scalar metrics still yield records, so the manifest row count is
// always reconcilable against artifact count × model count.
func Aggregate(resultsDir string, sctx *artifacts.SpineContext) ([]Record, error) {
	paths, err := artifacts.Discover(resultsDir)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, path := range paths {
		a, err := artifacts.ReadFile(path)
		if err != nil {
			return nil, err
		}

		entry, hasEntry := resolveLevel(path, a, sctx)

		for _, model := range a.ModelNames() {
			b := NewRecord(a.Scan, model).Source(path)
			if hasEntry {
				b.Level(spine.ShortForm(entry.Label))
				if entry.ReferenceHU != nil {
					b.ReferenceHU(*entry.ReferenceHU)
				}
			}
			for _, fm := range a.ScalarMetrics(model) {
				if err := b.AddMetric(fm.Key, fm.Value); err != nil {
					return nil, err
				}
			}
			records = append(records, b.Build())
		}
	}

	return records, nil
}

// resolveLevel joins an artifact to its spine context entry. The primary
// join is the artifact's own embedded level label; artifacts written by
// older stages carry no label, so the fallback matches each entry's level
// short form as a substring of the artifact's file name, taking the first
// match in entry order. The fallback is ambiguous by construction (a short
// form like "L1" can match more than one path); multiple matches are
// reported and the first wins.
func resolveLevel(path string, a *artifacts.Artifact, sctx *artifacts.SpineContext) (artifacts.SpineEntry, bool) {
	if sctx == nil || len(sctx.Entries) == 0 {
		return artifacts.SpineEntry{}, false
	}

	if a.Level != "" {
		for _, e := range sctx.Entries {
			if e.Label == a.Level {
				return e, true
			}
		}
		slog.Warn("artifact level has no spine context entry",
			"artifact", path, "level", a.Level)
		return artifacts.SpineEntry{}, false
	}

	base := filepath.Base(path)
	var matches []artifacts.SpineEntry
	for _, e := range sctx.Entries {
		if strings.Contains(base, spine.ShortForm(e.Label)) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		slog.Warn("no spine level matches artifact path", "artifact", path)
		return artifacts.SpineEntry{}, false
	case 1:
		return matches[0], true
	default:
		labels := make([]string, 0, len(matches))
		for _, m := range matches {
			labels = append(labels, m.Label)
		}
		slog.Warn("ambiguous spine level match, taking first",
			"artifact", path, "candidates", fmt.Sprintf("%v", labels))
		return matches[0], true
	}
}

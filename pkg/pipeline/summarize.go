package pipeline

import (
	"fmt"

	"bodycomp/pkg/artifacts"
	"bodycomp/pkg/manifest"
)

// Summarize rebuilds the manifest from every artifact under resultsDir and
// writes it to manifestPath. The manifest is rebuilt in full on every run,
// never updated incrementally. Returns the number of records written.
func Summarize(resultsDir, manifestPath string) (int, error) {
	sctx, err := artifacts.LoadSpineContexts(resultsDir)
	if err != nil {
		return 0, fmt.Errorf("loading spine contexts: %w", err)
	}

	records, err := manifest.Aggregate(resultsDir, sctx)
	if err != nil {
		return 0, fmt.Errorf("aggregating artifacts: %w", err)
	}

	if err := manifest.WriteFile(manifestPath, records); err != nil {
		return 0, fmt.Errorf("writing manifest: %w", err)
	}

	fmt.Printf("Wrote %d record(s) to %s\n", len(records), manifestPath)
	return len(records), nil
}

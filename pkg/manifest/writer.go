package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Identity columns always present in the manifest, in order.
var identityColumns = []string{"Scan", "Level", "Model", "Reference HU", "Source"}

// WriteCSV serializes records as a flat table: identity columns followed by
// the sorted union of every metric key seen across all records. Cells for
// metrics a record does not carry are written empty, never zero.
func WriteCSV(w io.Writer, records []Record) error {
	metricCols := metricColumns(records)

	cw := csv.NewWriter(w)
	header := append(append([]string{}, identityColumns...), metricCols...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("manifest: writing header: %w", err)
	}

	for _, rec := range records {
		row := make([]string, 0, len(header))
		row = append(row, rec.Scan, rec.Level, rec.Model, formatRefHU(rec.ReferenceHU), rec.Source)
		for _, col := range metricCols {
			if v, ok := rec.Metrics[col]; ok {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("manifest: writing row for scan %s: %w", rec.Scan, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes the manifest to a CSV file, creating parent directories
// as needed. The manifest is rebuilt in full on every run, so an existing
// file is replaced.
func WriteFile(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("manifest: creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("manifest: creating %s: %w", path, err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func metricColumns(records []Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for _, key := range rec.Keys {
			if !seen[key] {
				seen[key] = true
				cols = append(cols, key)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func formatRefHU(hu *float64) string {
	if hu == nil {
		return ""
	}
	return strconv.FormatFloat(*hu, 'g', -1, 64)
}

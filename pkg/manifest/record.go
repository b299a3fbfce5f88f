// Package manifest reconciles per-scan metric artifacts into a flat tabular
// manifest, one record per (scan-artifact, model) pair.
package manifest

import (
	"fmt"
)

// Record is one manifest row. Records are immutable once built.
type Record struct {
	// Scan identifies the scan the artifact belongs to
	Scan string

	// Level is the anatomical level short form, e.g. "T12"; empty when the
	// artifact has no spine context
	Level string

	// Model is the model key this record was built from
	Model string

	// ReferenceHU is the level's reference Hounsfield value, nil when the
	// record has no spine context
	ReferenceHU *float64

	// Source is the artifact's own file identity
	Source string

	// Metrics maps "{metric} ({tissue})" keys to scalar values. Keys holds
	// them in insertion order.
	Metrics map[string]float64
	Keys    []string
}

// RecordBuilder assembles one record, validating that the merged metric key
// set has no collisions before emission. Required identity columns (scan,
// model) are fixed at construction; level and reference HU are optional.
type RecordBuilder struct {
	rec Record
}

// NewRecord starts a builder for one (scan, model) pair.
func NewRecord(scan, model string) *RecordBuilder {
	return &RecordBuilder{rec: Record{
		Scan:    scan,
		Model:   model,
		Metrics: make(map[string]float64),
	}}
}

// Level attaches the level short form.
func (b *RecordBuilder) Level(level string) *RecordBuilder {
	b.rec.Level = level
	return b
}

// ReferenceHU attaches the level's reference Hounsfield value.
func (b *RecordBuilder) ReferenceHU(hu float64) *RecordBuilder {
	b.rec.ReferenceHU = &hu
	return b
}

// Source attaches the artifact's file identity.
func (b *RecordBuilder) Source(path string) *RecordBuilder {
	b.rec.Source = path
	return b
}

// AddMetric adds one flattened scalar metric. A duplicate key is a
// collision in the merged key set and fails the build rather than silently
// overwriting.
func (b *RecordBuilder) AddMetric(key string, value float64) error {
	if _, exists := b.rec.Metrics[key]; exists {
		return fmt.Errorf("manifest: metric column %q collides for scan %s model %s",
			key, b.rec.Scan, b.rec.Model)
	}
	b.rec.Metrics[key] = value
	b.rec.Keys = append(b.rec.Keys, key)
	return nil
}

// Build returns the finished record. A record with zero metrics is valid:
// artifacts without scalar metrics still yield a row.
func (b *RecordBuilder) Build() Record {
	return b.rec
}

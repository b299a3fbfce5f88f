// Package artifacts persists and reads per-scan metric artifacts: a
// three-level keyed store (model → tissue → metric) with scalar or array
// leaves, one artifact per processed scan-subregion. Artifacts are produced
// by the processing stages and are read-only to the aggregator.
package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Metric is one named leaf value.
type Metric struct {
	Name  string
	Value Value
}

// Tissue groups the metrics measured for one tissue class.
type Tissue struct {
	Name    string
	Metrics []Metric
}

// Model groups the tissues measured by one model.
type Model struct {
	Name    string
	Tissues []Tissue
}

// Artifact is one persisted scan-subregion measurement tree. Key order is
// preserved across write and read so manifests stay stable.
type Artifact struct {
	// Scan identifies the scan this artifact belongs to
	Scan string

	// Level is the anatomical level label this artifact was measured at,
	// e.g. "L3_scan012". It is the explicit join key for spine-aware
	// aggregation; empty for artifacts without level context.
	Level string

	// Source is the DICOM file identity the measurements derive from
	Source string

	// Models holds the measurement tree in insertion order
	Models []Model
}

// Put inserts or replaces one metric, preserving first-insertion order of
// models, tissues and metrics.
func (a *Artifact) Put(model, tissue, metric string, v Value) {
	m := a.model(model)
	t := m.tissue(tissue)
	for i := range t.Metrics {
		if t.Metrics[i].Name == metric {
			t.Metrics[i].Value = v
			return
		}
	}
	t.Metrics = append(t.Metrics, Metric{Name: metric, Value: v})
}

func (a *Artifact) model(name string) *Model {
	for i := range a.Models {
		if a.Models[i].Name == name {
			return &a.Models[i]
		}
	}
	a.Models = append(a.Models, Model{Name: name})
	return &a.Models[len(a.Models)-1]
}

func (m *Model) tissue(name string) *Tissue {
	for i := range m.Tissues {
		if m.Tissues[i].Name == name {
			return &m.Tissues[i]
		}
	}
	m.Tissues = append(m.Tissues, Tissue{Name: name})
	return &m.Tissues[len(m.Tissues)-1]
}

// ModelNames returns the model keys in insertion order.
func (a *Artifact) ModelNames() []string {
	names := make([]string, 0, len(a.Models))
	for _, m := range a.Models {
		names = append(names, m.Name)
	}
	return names
}

// FlatMetric is one scalar metric flattened to its manifest key.
type FlatMetric struct {
	// Key is the manifest column, "{metric} ({tissue})"
	Key   string
	Value float64
}

// ScalarMetrics flattens every scalar leaf of one model into manifest keys,
// in tree order. Array leaves are skipped: they are not
// manifest-representable.
func (a *Artifact) ScalarMetrics(model string) []FlatMetric {
	var flat []FlatMetric
	for _, m := range a.Models {
		if m.Name != model {
			continue
		}
		for _, t := range m.Tissues {
			for _, metric := range t.Metrics {
				v, ok := metric.Value.Float()
				if !ok {
					continue
				}
				flat = append(flat, FlatMetric{
					Key:   fmt.Sprintf("%s (%s)", metric.Name, t.Name),
					Value: v,
				})
			}
		}
	}
	return flat
}

// MarshalJSON writes the artifact with the measurement tree rendered as
// nested JSON objects whose key order follows insertion order.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, "scan")
	writeString(&buf, a.Scan)
	if a.Level != "" {
		buf.WriteByte(',')
		writeKey(&buf, "level")
		writeString(&buf, a.Level)
	}
	if a.Source != "" {
		buf.WriteByte(',')
		writeKey(&buf, "source")
		writeString(&buf, a.Source)
	}
	buf.WriteByte(',')
	writeKey(&buf, "models")
	buf.WriteByte('{')
	for i, m := range a.Models {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, m.Name)
		buf.WriteByte('{')
		for j, t := range m.Tissues {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, t.Name)
			buf.WriteByte('{')
			for k, metric := range t.Metrics {
				if k > 0 {
					buf.WriteByte(',')
				}
				writeKey(&buf, metric.Name)
				vb, err := json.Marshal(metric.Value)
				if err != nil {
					return nil, err
				}
				buf.Write(vb)
			}
			buf.WriteByte('}')
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	writeString(buf, key)
	buf.WriteByte(':')
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// UnmarshalJSON reads an artifact back preserving the key order of the
// measurement tree, using token-level decoding instead of Go maps.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return err
		}
		switch key {
		case "scan":
			if a.Scan, err = stringToken(dec); err != nil {
				return err
			}
		case "level":
			if a.Level, err = stringToken(dec); err != nil {
				return err
			}
		case "source":
			if a.Source, err = stringToken(dec); err != nil {
				return err
			}
		case "models":
			if err = a.decodeModels(dec); err != nil {
				return err
			}
		default:
			return fmt.Errorf("artifacts: unknown field %q", key)
		}
	}
	return expectDelim(dec, '}')
}

func (a *Artifact) decodeModels(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return err
		}
		m := Model{Name: name}
		if err := decodeTissues(dec, &m); err != nil {
			return err
		}
		a.Models = append(a.Models, m)
	}
	return expectDelim(dec, '}')
}

func decodeTissues(dec *json.Decoder, m *Model) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return err
		}
		t := Tissue{Name: name}
		if err := decodeMetrics(dec, &t); err != nil {
			return err
		}
		m.Tissues = append(m.Tissues, t)
	}
	return expectDelim(dec, '}')
}

func decodeMetrics(dec *json.Decoder, t *Tissue) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return err
		}
		v, err := decodeValue(dec)
		if err != nil {
			return fmt.Errorf("artifacts: metric %q: %w", name, err)
		}
		t.Metrics = append(t.Metrics, Metric{Name: name, Value: v})
	}
	return expectDelim(dec, '}')
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch tv := tok.(type) {
	case float64:
		return Scalar(tv), nil
	case json.Delim:
		if tv != '[' {
			return Value{}, fmt.Errorf("unexpected delimiter %v", tv)
		}
		var vs []float64
		for dec.More() {
			elem, err := dec.Token()
			if err != nil {
				return Value{}, err
			}
			f, ok := elem.(float64)
			if !ok {
				return Value{}, fmt.Errorf("array element %v is not numeric", elem)
			}
			vs = append(vs, f)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return Value{}, err
		}
		if vs == nil {
			vs = []float64{}
		}
		return Array(vs), nil
	default:
		return Value{}, fmt.Errorf("value %v is neither scalar nor array", tok)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("artifacts: unexpected end of document, want %q", want)
		}
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return fmt.Errorf("artifacts: unexpected token %v, want %q", tok, want)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("artifacts: unexpected token %v, want string", tok)
	}
	return s, nil
}

// Suffix identifies metric artifact files on disk.
const Suffix = ".metrics.json"

// WriteFile persists the artifact, creating parent directories as needed.
func (a *Artifact) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("artifacts: creating directory: %w", err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("artifacts: encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("artifacts: writing %s: %w", path, err)
	}
	return nil
}

// ReadFile loads one artifact from disk.
func ReadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifacts: reading %s: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("artifacts: parsing %s: %w", path, err)
	}
	return &a, nil
}

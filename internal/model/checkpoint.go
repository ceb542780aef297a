// Package model loads the pretrained classifier checkpoint: the exported
// ONNX network, the fitted feature scaler and the label vocabulary.
package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed checkpoint.schema.json
var manifestSchemaJSON []byte

const manifestSchemaURL = "checkpoint.schema.json"

var manifestSchema = jsonschema.MustCompileString(manifestSchemaURL, string(manifestSchemaJSON))

// Output kinds a checkpoint may declare for its network output.
const (
	OutputLogits        = "logits"
	OutputProbabilities = "probabilities"
)

// Manifest describes a checkpoint directory. Paths are relative to the
// manifest file.
type Manifest struct {
	FormatVersion int          `json:"format_version"`
	Model         string       `json:"model"`
	InputName     string       `json:"input_name"`
	OutputName    string       `json:"output_name"`
	OutputKind    string       `json:"output_kind"`
	NumFeatures   int          `json:"num_features"`
	Labels        []string     `json:"labels"`
	Scaler        ScalerParams `json:"scaler"`

	dir string
}

// ScalerParams are the fitted StandardScaler statistics.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ModelPath returns the absolute location of the ONNX network.
func (m *Manifest) ModelPath() string {
	if filepath.IsAbs(m.Model) {
		return m.Model
	}
	return filepath.Join(m.dir, m.Model)
}

// LoadManifest reads, schema-checks and validates a checkpoint manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	m.dir = filepath.Dir(abs)
	return m, nil
}

// ParseManifest decodes and validates manifest bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := manifestSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "logits"
	}
	if m.OutputKind == "" {
		m.OutputKind = OutputLogits
	}
	if len(m.Scaler.Mean) != m.NumFeatures || len(m.Scaler.Scale) != m.NumFeatures {
		return nil, fmt.Errorf("scaler has %d means and %d scales for %d features",
			len(m.Scaler.Mean), len(m.Scaler.Scale), m.NumFeatures)
	}
	return &m, nil
}

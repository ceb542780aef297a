package model

import (
	"fmt"
	"io"

	"github.com/invisible-tech/hybrid-ids/internal/inference"
)

// Handle is the immutable, loaded model: scaler, classifier and label
// vocabulary. It is created once at startup and shared read-only.
type Handle struct {
	scaler      inference.Scaler
	classifier  inference.Classifier
	labels      []string
	numFeatures int
	fingerprint string
	files       []string
	closer      io.Closer
}

// LoadOptions control how the ONNX runtime is opened.
type LoadOptions struct {
	LibraryPath string
	Threads     int
}

// Load reads the manifest at path, opens the network and fingerprints the
// checkpoint files.
func Load(path string, opts LoadOptions) (*Handle, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}

	scaler, err := NewStandardScaler(m.Scaler.Mean, m.Scaler.Scale)
	if err != nil {
		return nil, err
	}

	files := []string{path, m.ModelPath()}
	fp, err := Fingerprint(files...)
	if err != nil {
		return nil, err
	}

	clf, err := NewONNXClassifier(ONNXConfig{
		ModelPath:   m.ModelPath(),
		LibraryPath: opts.LibraryPath,
		InputName:   m.InputName,
		OutputName:  m.OutputName,
		OutputKind:  m.OutputKind,
		NumFeatures: m.NumFeatures,
		NumClasses:  len(m.Labels),
		Threads:     opts.Threads,
	})
	if err != nil {
		return nil, err
	}

	h, err := NewHandle(scaler, clf, m.Labels, m.NumFeatures)
	if err != nil {
		clf.Close()
		return nil, err
	}
	h.fingerprint = fp
	h.files = files
	h.closer = clf
	return h, nil
}

// NewHandle assembles a handle from already constructed parts.
func NewHandle(scaler inference.Scaler, classifier inference.Classifier, labels []string, numFeatures int) (*Handle, error) {
	if scaler == nil || classifier == nil {
		return nil, fmt.Errorf("model: scaler and classifier are required")
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("model: empty label vocabulary")
	}
	if numFeatures <= 0 {
		return nil, fmt.Errorf("model: invalid feature count %d", numFeatures)
	}
	return &Handle{
		scaler:      scaler,
		classifier:  classifier,
		labels:      append([]string(nil), labels...),
		numFeatures: numFeatures,
	}, nil
}

func (h *Handle) Scaler() inference.Scaler { return h.scaler }
func (h *Handle) Classifier() inference.Classifier { return h.classifier }
func (h *Handle) NumFeatures() int { return h.numFeatures }
func (h *Handle) Fingerprint() string { return h.fingerprint }

// Labels returns a copy of the vocabulary in classifier output order.
func (h *Handle) Labels() []string {
	return append([]string(nil), h.labels...)
}

// Files lists the checkpoint files on disk, empty for injected handles.
func (h *Handle) Files() []string {
	return append([]string(nil), h.files...)
}

// Close releases the runtime session, if any.
func (h *Handle) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}

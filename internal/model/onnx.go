package model

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/floats"
)

// runtimeEnv guards process-wide ONNX Runtime initialization.
var runtimeEnv struct {
	once sync.Once
	err  error
}

func initRuntime(libPath string) error {
	runtimeEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		runtimeEnv.err = ort.InitializeEnvironment()
	})
	return runtimeEnv.err
}

// ONNXConfig describes how to open the exported network.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	OutputKind  string
	NumFeatures int
	NumClasses  int
	Threads     int
}

// ONNXClassifier runs the hybrid CNN/ConvNeXt network. The network takes a
// [batch, 1, features] float32 tensor and returns [batch, classes] scores.
// Classify is safe for concurrent use.
type ONNXClassifier struct {
	session    *ort.DynamicAdvancedSession
	features   int64
	classes    int64
	logits     bool
	inputName  string
	outputName string
}

// NewONNXClassifier initializes the runtime (once per process), checks the
// model's declared output width against the vocabulary and opens a session.
func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if !hasTensor(inputs, cfg.InputName) {
		return nil, fmt.Errorf("onnx: model missing input %q", cfg.InputName)
	}
	out, ok := findTensor(outputs, cfg.OutputName)
	if !ok {
		return nil, fmt.Errorf("onnx: model missing output %q", cfg.OutputName)
	}
	dims := out.Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D output tensor, got %v", dims)
	}
	if dims[1] > 0 && dims[1] != int64(cfg.NumClasses) {
		return nil, fmt.Errorf("onnx: model has %d outputs, vocabulary has %d labels", dims[1], cfg.NumClasses)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			return nil, fmt.Errorf("onnx: failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNXClassifier{
		session:    session,
		features:   int64(cfg.NumFeatures),
		classes:    int64(cfg.NumClasses),
		logits:     cfg.OutputKind != OutputProbabilities,
		inputName:  cfg.InputName,
		outputName: cfg.OutputName,
	}, nil
}

// Classify returns one probability vector per row.
func (c *ONNXClassifier) Classify(ctx context.Context, batch [][]float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int64(len(batch))
	if n == 0 {
		return [][]float64{}, nil
	}

	flat := make([]float32, 0, n*c.features)
	for i, row := range batch {
		if int64(len(row)) != c.features {
			return nil, fmt.Errorf("onnx: row %d has %d features, want %d", i, len(row), c.features)
		}
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}

	in, err := ort.NewTensor(ort.NewShape(n, 1, c.features), flat)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create %s tensor: %w", c.inputName, err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(n, c.classes))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create %s tensor: %w", c.outputName, err)
	}
	defer out.Destroy()

	if err := c.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy out before the tensor is destroyed.
	data := out.GetData()
	probs := make([][]float64, n)
	for i := int64(0); i < n; i++ {
		row := make([]float64, c.classes)
		for k := int64(0); k < c.classes; k++ {
			row[k] = float64(data[i*c.classes+k])
		}
		if c.logits {
			row = softmax(row)
		}
		probs[i] = row
	}
	return probs, nil
}

// Close releases the session.
func (c *ONNXClassifier) Close() error {
	return c.session.Destroy()
}

// softmax converts scores to probabilities in place using log-sum-exp for
// numerical stability.
func softmax(scores []float64) []float64 {
	lse := floats.LogSumExp(scores)
	for i, s := range scores {
		scores[i] = math.Exp(s - lse)
	}
	return scores
}

func hasTensor(infos []ort.InputOutputInfo, name string) bool {
	_, ok := findTensor(infos, name)
	return ok
}

func findTensor(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return ort.InputOutputInfo{}, false
}

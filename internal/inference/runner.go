// Package inference runs a feature matrix through the scaling and
// classification capabilities in bounded-size chunks, preserving row order.
package inference

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize bounds the number of rows handed to one classifier call.
const DefaultBatchSize = 256

// Scaler is a fitted, shape-preserving feature transform.
type Scaler interface {
	Scale(rows [][]float64) ([][]float64, error)
}

// Classifier maps a chunk of scaled rows to one probability vector per row,
// in the same order. Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, batch [][]float64) ([][]float64, error)
}

// ChunkObserver is notified after each successful classifier call.
type ChunkObserver func(rows int)

// Runner owns the chunking policy. It holds no per-request state.
type Runner struct {
	scaler     Scaler
	classifier Classifier
	batchSize  int
	workers    int
	observe    ChunkObserver
}

// Option configures a Runner.
type Option func(*Runner)

// WithBatchSize sets the chunk size. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithWorkers allows up to n chunks to be classified concurrently.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithChunkObserver registers a callback invoked once per classified chunk.
func WithChunkObserver(fn ChunkObserver) Option {
	return func(r *Runner) { r.observe = fn }
}

// NewRunner creates a Runner over the given capabilities.
func NewRunner(scaler Scaler, classifier Classifier, opts ...Option) *Runner {
	r := &Runner{
		scaler:     scaler,
		classifier: classifier,
		batchSize:  DefaultBatchSize,
		workers:    1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BatchSize returns the configured chunk size.
func (r *Runner) BatchSize() int { return r.batchSize }

// Infer scales matrix once, classifies it chunk by chunk and returns one
// probability vector per input row in input order. Any failure discards all
// partial results.
func (r *Runner) Infer(ctx context.Context, matrix [][]float64) ([][]float64, error) {
	if len(matrix) == 0 {
		return [][]float64{}, nil
	}

	scaled, err := r.scaler.Scale(matrix)
	if err != nil {
		return nil, &ScalingError{Err: err}
	}
	if len(scaled) != len(matrix) {
		return nil, &ScalingError{Err: fmt.Errorf("scaler returned %d rows for %d inputs", len(scaled), len(matrix))}
	}

	chunks := split(len(scaled), r.batchSize)
	out := make([][]float64, len(scaled))

	if r.workers <= 1 || len(chunks) == 1 {
		for i, c := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, &InferenceError{Chunk: i, Err: err}
			}
			if err := r.classifyChunk(ctx, i, scaled[c.start:c.end], out[c.start:c.end]); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &InferenceError{Chunk: i, Err: err}
			}
			return r.classifyChunk(gctx, i, scaled[c.start:c.end], out[c.start:c.end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// classifyChunk fills dst with the classifier output for rows.
func (r *Runner) classifyChunk(ctx context.Context, index int, rows, dst [][]float64) error {
	probs, err := r.classifier.Classify(ctx, rows)
	if err != nil {
		return &InferenceError{Chunk: index, Err: err}
	}
	if len(probs) != len(rows) {
		return &InferenceError{Chunk: index, Err: fmt.Errorf("classifier returned %d vectors for %d rows", len(probs), len(rows))}
	}
	copy(dst, probs)
	if r.observe != nil {
		r.observe(len(rows))
	}
	return nil
}

type span struct{ start, end int }

// split partitions n rows into contiguous spans of at most size rows.
func split(n, size int) []span {
	spans := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, span{start, end})
	}
	return spans
}

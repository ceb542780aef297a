package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityScaler struct{}

func (identityScaler) Scale(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out, nil
}

type shiftScaler struct{ by float64 }

func (s shiftScaler) Scale(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for j, v := range r {
			out[i][j] = v + s.by
		}
	}
	return out, nil
}

type failingScaler struct{}

func (failingScaler) Scale([][]float64) ([][]float64, error) { return nil, errors.New("bad scaler") }

type droppingScaler struct{}

func (droppingScaler) Scale(rows [][]float64) ([][]float64, error) { return rows[1:], nil }

// fakeClassifier puts most of the mass on class int(row[0]) % classes so
// that every row is classified independently of its chunk.
type fakeClassifier struct {
	classes int
	failAt  int // 1-based call number that fails; 0 never fails
	short   bool

	mu    sync.Mutex
	sizes []int
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(_ context.Context, batch [][]float64) ([][]float64, error) {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	f.sizes = append(f.sizes, len(batch))
	f.mu.Unlock()
	if f.failAt > 0 && n == f.failAt {
		return nil, errors.New("model exploded")
	}
	out := make([][]float64, len(batch))
	for i, row := range batch {
		out[i] = vectorFor(row, f.classes)
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func vectorFor(row []float64, classes int) []float64 {
	v := make([]float64, classes)
	hot := int(row[0]) % classes
	rest := 0.1 / float64(classes-1)
	for k := range v {
		v[k] = rest
	}
	v[hot] = 0.9
	return v
}

func matrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = []float64{float64(i), float64(i) * 2, 1}
	}
	return m
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(identityScaler{}, &fakeClassifier{classes: 3})
	assert.Equal(t, DefaultBatchSize, r.BatchSize())
	assert.Equal(t, 1, r.workers)

	r = NewRunner(identityScaler{}, &fakeClassifier{classes: 3}, WithBatchSize(0), WithWorkers(-1))
	assert.Equal(t, DefaultBatchSize, r.BatchSize())
	assert.Equal(t, 1, r.workers)
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []span{{0, 256}, {256, 300}}, split(300, 256))
	assert.Equal(t, []span{{0, 2}, {2, 4}}, split(4, 2))
	assert.Equal(t, []span{{0, 1}}, split(1, 256))
	assert.Empty(t, split(0, 256))
}

func TestInfer_ChunksAndPreservesOrder(t *testing.T) {
	cls := &fakeClassifier{classes: 7}
	r := NewRunner(identityScaler{}, cls, WithBatchSize(256))
	in := matrix(600)

	out, err := r.Infer(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 600)
	assert.Equal(t, []int{256, 256, 88}, cls.sizes)
	for i, row := range in {
		assert.Equal(t, vectorFor(row, 7), out[i], "row %d", i)
	}
}

func TestInfer_BatchSizeInvariance(t *testing.T) {
	in := matrix(517)
	var results [][][]float64
	for _, size := range []int{1, 7, 256, 1000} {
		out, err := NewRunner(shiftScaler{by: 3}, &fakeClassifier{classes: 5}, WithBatchSize(size)).
			Infer(context.Background(), in)
		require.NoError(t, err, "batch size %d", size)
		results = append(results, out)
	}
	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestInfer_ParallelMatchesSequential(t *testing.T) {
	in := matrix(1000)
	seq, err := NewRunner(identityScaler{}, &fakeClassifier{classes: 4}, WithBatchSize(16)).
		Infer(context.Background(), in)
	require.NoError(t, err)

	par, err := NewRunner(identityScaler{}, &fakeClassifier{classes: 4}, WithBatchSize(16), WithWorkers(8)).
		Infer(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, seq, par)
}

func TestInfer_SingleRowEqualsBatched(t *testing.T) {
	in := matrix(300)
	r := NewRunner(identityScaler{}, &fakeClassifier{classes: 6}, WithBatchSize(64))
	batched, err := r.Infer(context.Background(), in)
	require.NoError(t, err)

	for i, row := range in {
		single, err := r.Infer(context.Background(), [][]float64{row})
		require.NoError(t, err)
		assert.InDeltaSlice(t, single[0], batched[i], 1e-12, "row %d", i)
	}
}

func TestInfer_DoesNotMutateInput(t *testing.T) {
	in := matrix(10)
	_, err := NewRunner(shiftScaler{by: 100}, &fakeClassifier{classes: 3}).Infer(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, matrix(10), in)
}

func TestInfer_Empty(t *testing.T) {
	cls := &fakeClassifier{classes: 3}
	out, err := NewRunner(failingScaler{}, cls).Infer(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, cls.calls.Load())
}

func TestInfer_ScalerError(t *testing.T) {
	_, err := NewRunner(failingScaler{}, &fakeClassifier{classes: 3}).Infer(context.Background(), matrix(3))
	var se *ScalingError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "bad scaler")
}

func TestInfer_ScalerChangesRowCount(t *testing.T) {
	_, err := NewRunner(droppingScaler{}, &fakeClassifier{classes: 3}).Infer(context.Background(), matrix(3))
	var se *ScalingError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "2 rows for 3 inputs")
}

func TestInfer_ClassifierErrorIsAtomic(t *testing.T) {
	cls := &fakeClassifier{classes: 3, failAt: 2}
	out, err := NewRunner(identityScaler{}, cls, WithBatchSize(4)).Infer(context.Background(), matrix(12))
	assert.Nil(t, out)
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, ie.Chunk)
	assert.EqualValues(t, 2, cls.calls.Load(), "no chunks after the failure")
}

func TestInfer_ClassifierErrorParallel(t *testing.T) {
	cls := &fakeClassifier{classes: 3, failAt: 1}
	out, err := NewRunner(identityScaler{}, cls, WithBatchSize(4), WithWorkers(4)).Infer(context.Background(), matrix(40))
	assert.Nil(t, out)
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
}

func TestInfer_ClassifierShortOutput(t *testing.T) {
	_, err := NewRunner(identityScaler{}, &fakeClassifier{classes: 3, short: true}).Infer(context.Background(), matrix(5))
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "4 vectors for 5 rows")
}

func TestInfer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(identityScaler{}, &fakeClassifier{classes: 3}).Infer(ctx, matrix(5))
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInfer_ChunkObserver(t *testing.T) {
	var rows, chunks atomic.Int64
	r := NewRunner(identityScaler{}, &fakeClassifier{classes: 3},
		WithBatchSize(10),
		WithWorkers(3),
		WithChunkObserver(func(n int) {
			rows.Add(int64(n))
			chunks.Add(1)
		}),
	)
	_, err := r.Infer(context.Background(), matrix(95))
	require.NoError(t, err)
	assert.EqualValues(t, 95, rows.Load())
	assert.EqualValues(t, 10, chunks.Load())
}

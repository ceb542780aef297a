package inference

import "fmt"

// ScalingError reports a failure of the scaling capability.
type ScalingError struct {
	Err error
}

func (e *ScalingError) Error() string { return fmt.Sprintf("scaling failed: %v", e.Err) }

func (e *ScalingError) Unwrap() error { return e.Err }

// InferenceError reports a classifier failure on one chunk. The whole batch
// fails with it.
type InferenceError struct {
	Chunk int
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed on chunk %d: %v", e.Chunk, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Package aggregate reduces per-row probability vectors to predicted labels
// and a ranked attack-frequency summary.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/invisible-tech/hybrid-ids/internal/types"
)

// DefaultTopN is the number of attack categories reported in a summary.
const DefaultTopN = 14

// ErrEmptyInput is returned when there is nothing to summarize.
var ErrEmptyInput = errors.New("no samples to classify")

// ErrVectorShape is returned when a probability vector does not match the
// label vocabulary.
var ErrVectorShape = errors.New("probability vector does not match label vocabulary")

// Argmax returns the index of the largest entry; ties go to the lowest index.
// It returns -1 for an empty vector.
func Argmax(v []float64) int {
	best := -1
	for i, p := range v {
		if best < 0 || p > v[best] {
			best = i
		}
	}
	return best
}

// Label returns the predicted label and its probability for one vector.
func Label(vector []float64, vocabulary []string) (string, float64, error) {
	if len(vector) == 0 || len(vector) != len(vocabulary) {
		return "", 0, fmt.Errorf("%w: %d entries, %d labels", ErrVectorShape, len(vector), len(vocabulary))
	}
	i := Argmax(vector)
	return vocabulary[i], vector[i], nil
}

// Predict builds the single-sample response. Confidence is the maximum
// probability rounded to four decimal places.
func Predict(vector []float64, vocabulary []string) (*types.Prediction, error) {
	label, p, err := Label(vector, vocabulary)
	if err != nil {
		return nil, err
	}
	return &types.Prediction{Prediction: label, Confidence: round(p, 4)}, nil
}

// Summarize counts predicted labels and ranks attack categories by
// frequency. Equal counts are ordered by label. Only the first topN attacks
// are reported; percentages are relative to the total sample count.
func Summarize(vectors [][]float64, vocabulary []string, topN int) (*types.BatchSummary, error) {
	total := len(vectors)
	if total == 0 {
		return nil, ErrEmptyInput
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	counts := make(map[string]int, len(vocabulary))
	for i, v := range vectors {
		label, _, err := Label(v, vocabulary)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		counts[label]++
	}

	normal := counts[types.NormalLabel]
	delete(counts, types.NormalLabel)

	ranked := make([]types.AttackCount, 0, len(counts))
	for label, n := range counts {
		ranked = append(ranked, types.AttackCount{Attack: label, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Attack < ranked[j].Attack
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i := range ranked {
		ranked[i].Percentage = round(float64(ranked[i].Count)/float64(total)*100, 2)
	}

	return &types.BatchSummary{
		TotalSamples: total,
		NormalCount:  normal,
		AttackCount:  total - normal,
		TopAttacks:   ranked,
	}, nil
}

// round rounds half to even at the given decimal place.
func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.RoundToEven(v*scale) / scale
}

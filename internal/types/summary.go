// Package types defines shared API types for predictions, batch summaries,
// alerts, and model metadata used by the HTTP API and internal processing.
package types

// NormalLabel is the vocabulary entry for benign traffic. Every other label
// is an attack category.
const NormalLabel = "Normal"

// Prediction is the single-sample classification result.
type Prediction struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// AttackCount is one ranked entry of a batch summary.
type AttackCount struct {
	Attack     string  `json:"attack"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// BatchSummary is the reduced result of classifying a batch of samples.
// Percentages are relative to TotalSamples, not to AttackCount.
type BatchSummary struct {
	TotalSamples int           `json:"total_samples"`
	NormalCount  int           `json:"normal_count"`
	AttackCount  int           `json:"attack_count"`
	TopAttacks   []AttackCount `json:"top_attacks"`
}

// AttackRatio returns the fraction of samples classified as an attack.
func (s *BatchSummary) AttackRatio() float64 {
	if s.TotalSamples == 0 {
		return 0
	}
	return float64(s.AttackCount) / float64(s.TotalSamples)
}

// Has reports whether label appears among the ranked attacks.
func (s *BatchSummary) Has(label string) bool {
	for _, a := range s.TopAttacks {
		if a.Attack == label {
			return true
		}
	}
	return false
}

// AttackCategory is a known attack category with its grouping and severity.
type AttackCategory struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

// ModelInfo describes the loaded checkpoint for the model info endpoint.
type ModelInfo struct {
	Version     string           `json:"version"`
	Labels      []string         `json:"labels"`
	NumFeatures int              `json:"num_features"`
	NumClasses  int              `json:"num_classes"`
	BatchSize   int              `json:"batch_size"`
	TopN        int              `json:"top_n"`
	Fingerprint string           `json:"fingerprint"`
	Attacks     []AttackCategory `json:"attacks"`
}

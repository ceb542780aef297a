package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBatchSummary_EmptyTopAttacksEncodesAsArray(t *testing.T) {
	s := BatchSummary{TotalSamples: 3, NormalCount: 3, TopAttacks: []AttackCount{}}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"top_attacks":[]`) {
		t.Errorf("top_attacks should encode as empty array, got %s", data)
	}
}

func TestBatchSummary_FieldNames(t *testing.T) {
	s := BatchSummary{
		TotalSamples: 10, NormalCount: 5, AttackCount: 5,
		TopAttacks: []AttackCount{{Attack: "A", Count: 3, Percentage: 30}},
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"total_samples", "normal_count", "attack_count", "top_attacks"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	entry := raw["top_attacks"].([]any)[0].(map[string]any)
	for _, key := range []string{"attack", "count", "percentage"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("missing entry key %q in %s", key, data)
		}
	}
}

func TestBatchSummary_AttackRatio(t *testing.T) {
	s := &BatchSummary{TotalSamples: 4, AttackCount: 1}
	if got := s.AttackRatio(); got != 0.25 {
		t.Errorf("AttackRatio() = %v, want 0.25", got)
	}
	empty := &BatchSummary{}
	if got := empty.AttackRatio(); got != 0 {
		t.Errorf("AttackRatio() on empty = %v, want 0", got)
	}
}

func TestBatchSummary_Has(t *testing.T) {
	s := &BatchSummary{TopAttacks: []AttackCount{{Attack: "Botnet", Count: 1}}}
	if !s.Has("Botnet") {
		t.Error("Has(Botnet) = false")
	}
	if s.Has("PortScan") {
		t.Error("Has(PortScan) = true")
	}
}

func TestAlert_IsUrgent(t *testing.T) {
	tests := []struct {
		severity string
		want     bool
	}{
		{"CRITICAL", true},
		{"HIGH", true},
		{"MEDIUM", false},
		{"LOW", false},
	}
	for _, tt := range tests {
		a := &Alert{Severity: tt.severity}
		if got := a.IsUrgent(); got != tt.want {
			t.Errorf("IsUrgent(%s) = %v, want %v", tt.severity, got, tt.want)
		}
	}
}

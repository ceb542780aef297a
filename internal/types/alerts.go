package types

import "time"

// Alert is a generated security alert from the detection engine, raised
// against the summary of one classified batch.
type Alert struct {
	ID            string           `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	Severity      string           `json:"severity"`
	RuleID        string           `json:"rule_id"`
	RuleName      string           `json:"rule_name"`
	Description   string           `json:"description"`
	BatchID       string           `json:"batch_id"`
	Attacks       []string         `json:"attacks,omitempty"`
	AttackDetails []AttackCategory `json:"attack_details,omitempty"`
	TotalSamples  int              `json:"total_samples"`
	AttackCount   int              `json:"attack_count"`
	MitreTactic   string           `json:"mitre_tactic,omitempty"`
	MitreID       string           `json:"mitre_id,omitempty"`
	Actions       []string         `json:"recommended_actions"`
}

// IsUrgent reports whether the alert should be forwarded immediately.
func (a *Alert) IsUrgent() bool {
	return a.Severity == "CRITICAL" || a.Severity == "HIGH"
}

package detection

import (
	"testing"

	"github.com/invisible-tech/hybrid-ids/internal/types"
)

func summary(total int, attacks ...types.AttackCount) *types.BatchSummary {
	s := &types.BatchSummary{TotalSamples: total, TopAttacks: attacks}
	for _, a := range attacks {
		s.AttackCount += a.Count
	}
	s.NormalCount = total - s.AttackCount
	return s
}

func attack(name string, count, total int) types.AttackCount {
	return types.AttackCount{Attack: name, Count: count, Percentage: float64(count) / float64(total) * 100}
}

func ruleIDs(alerts []*types.Alert) map[string]*types.Alert {
	out := make(map[string]*types.Alert, len(alerts))
	for _, a := range alerts {
		out[a.RuleID] = a
	}
	return out
}

func TestNewEngine(t *testing.T) {
	e := NewEngine()
	if e == nil {
		t.Fatal("NewEngine() returned nil")
	}
	rules := e.Rules()
	if len(rules) < 7 {
		t.Errorf("expected at least 7 rules, got %d", len(rules))
	}
	seen := map[string]bool{}
	for _, r := range rules {
		if seen[r.ID] {
			t.Errorf("duplicate rule ID %s", r.ID)
		}
		seen[r.ID] = true
		if r.Condition == nil {
			t.Errorf("rule %s has no condition", r.ID)
		}
	}
}

func TestEngine_Evaluate_NoMatch(t *testing.T) {
	e := NewEngine()
	alerts := e.Evaluate("b-1", summary(100))
	if len(alerts) != 0 {
		t.Errorf("expected 0 alerts for all-normal batch, got %d", len(alerts))
	}
}

func TestEngine_Evaluate_NilOrEmpty(t *testing.T) {
	e := NewEngine()
	if alerts := e.Evaluate("b-1", nil); alerts != nil {
		t.Errorf("expected nil alerts for nil summary, got %v", alerts)
	}
	if alerts := e.Evaluate("b-1", &types.BatchSummary{}); alerts != nil {
		t.Errorf("expected nil alerts for empty summary, got %v", alerts)
	}
}

func TestEngine_Evaluate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		summary *types.BatchSummary
		want    string
		absent  string
	}{
		{"majority attack", summary(10, attack("PortScan", 6, 10)), "IDS-001", ""},
		{"dos above threshold", summary(100, attack("DDoS-UDPFlood", 8, 100), attack("DoS-SynFlood", 4, 100)), "IDS-002", "IDS-001"},
		{"injection", summary(100, attack("SQL Injection", 1, 100)), "IDS-003", ""},
		{"xss", summary(100, attack("BruteForce-XSS", 1, 100)), "IDS-003", ""},
		{"brute force", summary(100, attack("BruteForce-Web", 2, 100)), "IDS-004", "IDS-003"},
		{"malware", summary(100, attack("Backdoor", 1, 100)), "IDS-005", ""},
		{"recon", summary(100, attack("Fingerprinting", 5, 100)), "IDS-006", ""},
		{"mitm", summary(100, attack("MITM", 1, 100)), "IDS-007", ""},
	}
	e := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ruleIDs(e.Evaluate("b-1", tt.summary))
			if got[tt.want] == nil {
				t.Errorf("expected %s to fire, got %v", tt.want, got)
			}
			if tt.absent != "" && got[tt.absent] != nil {
				t.Errorf("expected %s not to fire", tt.absent)
			}
		})
	}
}

func TestEngine_Evaluate_BelowThresholds(t *testing.T) {
	e := NewEngine()
	s := summary(100, attack("DDoS-UDPFlood", 9, 100), attack("PortScan", 4, 100))
	got := ruleIDs(e.Evaluate("b-1", s))
	if got["IDS-002"] != nil {
		t.Error("IDS-002 should not fire at 9%")
	}
	if got["IDS-006"] != nil {
		t.Error("IDS-006 should not fire at 4%")
	}
}

func TestEngine_Evaluate_AlertFields(t *testing.T) {
	e := NewEngine()
	s := summary(10, attack("Botnet", 4, 10), attack("PortScan", 2, 10), attack("Infiltration", 1, 10))
	alerts := e.Evaluate("batch-99", s)
	a := ruleIDs(alerts)["IDS-005"]
	if a == nil {
		t.Fatal("expected IDS-005 alert")
	}
	if a.BatchID != "batch-99" || a.TotalSamples != 10 || a.AttackCount != 7 {
		t.Errorf("alert context: BatchID=%q TotalSamples=%d AttackCount=%d", a.BatchID, a.TotalSamples, a.AttackCount)
	}
	if len(a.Attacks) != 2 || a.Attacks[0] != "Botnet" || a.Attacks[1] != "Infiltration" {
		t.Errorf("alert attacks = %v", a.Attacks)
	}
	if a.ID == "" || a.Timestamp.IsZero() {
		t.Error("alert should have an ID and timestamp")
	}
	if len(a.Actions) == 0 {
		t.Error("alert should have recommended actions")
	}
	if a.Severity != "CRITICAL" || !a.IsUrgent() {
		t.Errorf("alert severity = %q", a.Severity)
	}

	if len(a.AttackDetails) != 2 || a.AttackDetails[0].Severity != "CRITICAL" || a.AttackDetails[1].Severity != "HIGH" {
		t.Fatalf("alert attack details = %+v", a.AttackDetails)
	}
	if a.AttackDetails[0].Type != TypeMalware {
		t.Errorf("Botnet type = %q", a.AttackDetails[0].Type)
	}

	major := ruleIDs(alerts)["IDS-001"]
	if major == nil {
		t.Fatal("expected IDS-001 alert")
	}
	if len(major.Attacks) != 3 {
		t.Errorf("majority alert should list all attacks, got %v", major.Attacks)
	}
}

func TestEngine_Evaluate_UnknownLabelHasNoDetails(t *testing.T) {
	e := NewEngine()
	s := summary(10, attack("Mirai", 6, 10))
	a := ruleIDs(e.Evaluate("b-1", s))["IDS-001"]
	if a == nil {
		t.Fatal("expected IDS-001 alert")
	}
	if len(a.Attacks) != 1 || a.Attacks[0] != "Mirai" {
		t.Errorf("alert attacks = %v", a.Attacks)
	}
	if len(a.AttackDetails) != 0 {
		t.Errorf("unknown label should have no catalog entry, got %+v", a.AttackDetails)
	}
}

func TestInjectionRuleUsesCatalogType(t *testing.T) {
	var injection *Rule
	for _, r := range NewEngine().Rules() {
		if r.ID == "IDS-003" {
			injection = r
		}
	}
	if injection == nil {
		t.Fatal("IDS-003 not loaded")
	}
	want := LabelsOfType(TypeInjection)
	if len(injection.Labels) != len(want) {
		t.Fatalf("IDS-003 labels = %v, want %v", injection.Labels, want)
	}
	for i := range want {
		if injection.Labels[i] != want[i] {
			t.Errorf("IDS-003 labels = %v, want %v", injection.Labels, want)
		}
	}
}

func TestCatalog(t *testing.T) {
	c := Catalog()
	if len(c) != 14 {
		t.Fatalf("expected 14 attack categories, got %d", len(c))
	}
	c[0].Name = "mutated"
	if Catalog()[0].Name == "mutated" {
		t.Error("Catalog() must return a copy")
	}

	a, ok := Lookup("SQL Injection")
	if !ok || a.Type != TypeInjection || a.Severity != "CRITICAL" {
		t.Errorf("Lookup(SQL Injection) = %+v, %v", a, ok)
	}
	if _, ok := Lookup("Normal"); ok {
		t.Error("Normal is not an attack")
	}

	recon := LabelsOfType(TypeRecon)
	if len(recon) != 2 || recon[0] != "PortScan" || recon[1] != "Fingerprinting" {
		t.Errorf("LabelsOfType(recon) = %v", recon)
	}
	if got := LabelsOfType(TypeVolume, TypeProtocol, TypeApplication); len(got) != 5 {
		t.Errorf("expected 5 denial-of-service labels, got %v", got)
	}
}

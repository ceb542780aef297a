// Package detection provides the detection rules engine for evaluating
// classified batch summaries and generating alerts.
package detection

import (
	"time"

	"github.com/google/uuid"

	"github.com/invisible-tech/hybrid-ids/internal/types"
)

// Rule defines a detection rule: condition and metadata. Labels restricts
// which attack categories are attached to the alert; empty means all.
type Rule struct {
	ID          string
	Name        string
	Description string
	Severity    string
	MitreTactic string
	MitreID     string
	Labels      []string
	Condition   func(s *types.BatchSummary) bool
	Actions     []string
}

// Engine evaluates batch summaries against rules and produces alerts.
type Engine struct {
	rules []*Rule
}

// NewEngine creates a detection engine with the default rule set.
func NewEngine() *Engine {
	e := &Engine{}
	e.rules = defaultRules()
	return e
}

// Evaluate runs all rules against the summary and returns any matching alerts.
func (e *Engine) Evaluate(batchID string, s *types.BatchSummary) []*types.Alert {
	if s == nil || s.TotalSamples == 0 {
		return nil
	}
	var alerts []*types.Alert
	now := time.Now().UTC()
	for _, rule := range e.rules {
		if !rule.Condition(s) {
			continue
		}
		attacks := present(s, rule.Labels)
		alerts = append(alerts, &types.Alert{
			ID:            uuid.NewString(),
			Timestamp:     now,
			Severity:      rule.Severity,
			RuleID:        rule.ID,
			RuleName:      rule.Name,
			Description:   rule.Description,
			BatchID:       batchID,
			Attacks:       attacks,
			AttackDetails: details(attacks),
			TotalSamples:  s.TotalSamples,
			AttackCount:   s.AttackCount,
			MitreTactic:   rule.MitreTactic,
			MitreID:       rule.MitreID,
			Actions:       rule.Actions,
		})
	}
	return alerts
}

// Rules returns the loaded rules (read-only).
func (e *Engine) Rules() []*Rule {
	return e.rules
}

// present returns the ranked attacks restricted to labels, in rank order.
func present(s *types.BatchSummary, labels []string) []string {
	want := make(map[string]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	var out []string
	for _, a := range s.TopAttacks {
		if len(labels) == 0 || want[a.Attack] {
			out = append(out, a.Attack)
		}
	}
	return out
}

// details resolves attack names against the catalog. Labels the catalog
// does not know are skipped.
func details(names []string) []Attack {
	var out []Attack
	for _, n := range names {
		if a, ok := Lookup(n); ok {
			out = append(out, a)
		}
	}
	return out
}

// share sums the percentage of samples attributed to labels.
func share(s *types.BatchSummary, labels []string) float64 {
	var pct float64
	for _, a := range s.TopAttacks {
		for _, l := range labels {
			if a.Attack == l {
				pct += a.Percentage
				break
			}
		}
	}
	return pct
}

func anyOf(labels []string) func(s *types.BatchSummary) bool {
	return func(s *types.BatchSummary) bool {
		for _, l := range labels {
			if s.Has(l) {
				return true
			}
		}
		return false
	}
}

func atLeast(labels []string, pct float64) func(s *types.BatchSummary) bool {
	return func(s *types.BatchSummary) bool {
		return share(s, labels) >= pct
	}
}

func defaultRules() []*Rule {
	dos := LabelsOfType(TypeVolume, TypeProtocol, TypeApplication)
	injection := LabelsOfType(TypeInjection)
	credential := LabelsOfType(TypeCredential)
	malware := LabelsOfType(TypeMalware)
	recon := LabelsOfType(TypeRecon)
	mitm := LabelsOfType(TypeMITM)

	return []*Rule{
		{
			ID:          "IDS-001",
			Name:        "Majority Attack Traffic",
			Description: "More than half of the classified flows are attack traffic",
			Severity:    "HIGH",
			Condition: func(s *types.BatchSummary) bool {
				return s.AttackRatio() > 0.5
			},
			Actions: []string{"Identify affected hosts", "Review perimeter firewall rules", "Escalate to incident response"},
		},
		{
			ID:          "IDS-002",
			Name:        "Denial of Service",
			Description: "Flood or exhaustion attack traffic above 10% of flows",
			Severity:    "CRITICAL",
			MitreTactic: "Impact",
			MitreID:     "T1498",
			Labels:      dos,
			Condition:   atLeast(dos, 10),
			Actions:     []string{"Enable rate limiting", "Engage upstream DDoS mitigation", "Identify source addresses"},
		},
		{
			ID:          "IDS-003",
			Name:        "Web Application Injection",
			Description: "SQL injection or cross-site scripting attempts classified",
			Severity:    "CRITICAL",
			MitreTactic: "Initial Access",
			MitreID:     "T1190",
			Labels:      injection,
			Condition:   anyOf(injection),
			Actions:     []string{"Review web application logs", "Check WAF rules", "Audit database access"},
		},
		{
			ID:          "IDS-004",
			Name:        "Credential Brute Force",
			Description: "Repeated authentication attempts against web services",
			Severity:    "HIGH",
			MitreTactic: "Credential Access",
			MitreID:     "T1110",
			Labels:      credential,
			Condition:   anyOf(credential),
			Actions:     []string{"Lock targeted accounts", "Enforce MFA", "Block offending sources"},
		},
		{
			ID:          "IDS-005",
			Name:        "Malware Activity",
			Description: "Botnet, backdoor or infiltration traffic classified",
			Severity:    "CRITICAL",
			MitreTactic: "Command and Control",
			MitreID:     "T1071",
			Labels:      malware,
			Condition:   anyOf(malware),
			Actions:     []string{"Isolate affected hosts", "Block C2 destinations", "Run endpoint forensics"},
		},
		{
			ID:          "IDS-006",
			Name:        "Network Reconnaissance",
			Description: "Port scanning or fingerprinting above 5% of flows",
			Severity:    "MEDIUM",
			MitreTactic: "Discovery",
			MitreID:     "T1046",
			Labels:      recon,
			Condition:   atLeast(recon, 5),
			Actions:     []string{"Identify scanning sources", "Review exposed services"},
		},
		{
			ID:          "IDS-007",
			Name:        "Man-in-the-Middle",
			Description: "Traffic interception attempts classified",
			Severity:    "HIGH",
			MitreTactic: "Credential Access",
			MitreID:     "T1557",
			Labels:      mitm,
			Condition:   anyOf(mitm),
			Actions:     []string{"Check ARP and DNS integrity", "Verify TLS certificates", "Inspect network segments"},
		},
	}
}

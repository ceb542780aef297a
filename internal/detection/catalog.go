package detection

import "github.com/invisible-tech/hybrid-ids/internal/types"

// Attack types used to group catalog entries.
const (
	TypeVolume      = "Volume-based"
	TypeProtocol    = "Protocol"
	TypeApplication = "Application"
	TypeCredential  = "Credential"
	TypeInjection   = "Injection"
	TypeMalware     = "Malware"
	TypeRecon       = "Reconnaissance"
	TypeMITM        = "Man-in-the-Middle"
)

// Attack is a known attack category the classifier can emit.
type Attack = types.AttackCategory

var catalog = []Attack{
	{"DDoS-RSTFINFlood", TypeVolume, "CRITICAL"},
	{"DoS-SlowHTTPTest", TypeApplication, "HIGH"},
	{"DDoS-UDPFlood", TypeVolume, "CRITICAL"},
	{"BruteForce-Web", TypeCredential, "HIGH"},
	{"BruteForce-XSS", TypeInjection, "HIGH"},
	{"SQL Injection", TypeInjection, "CRITICAL"},
	{"Infiltration", TypeMalware, "HIGH"},
	{"Botnet", TypeMalware, "CRITICAL"},
	{"PortScan", TypeRecon, "MEDIUM"},
	{"DoS-SynFlood", TypeProtocol, "HIGH"},
	{"DoS-HTTPFlood", TypeApplication, "HIGH"},
	{"Fingerprinting", TypeRecon, "MEDIUM"},
	{"MITM", TypeMITM, "HIGH"},
	{"Backdoor", TypeMalware, "CRITICAL"},
}

// Catalog returns a copy of the known attack categories.
func Catalog() []Attack {
	return append([]Attack(nil), catalog...)
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Attack, bool) {
	for _, a := range catalog {
		if a.Name == name {
			return a, true
		}
	}
	return Attack{}, false
}

// LabelsOfType returns the names of all catalog entries with one of the
// given types, in catalog order.
func LabelsOfType(kinds ...string) []string {
	var out []string
	for _, a := range catalog {
		for _, k := range kinds {
			if a.Type == k {
				out = append(out, a.Name)
				break
			}
		}
	}
	return out
}

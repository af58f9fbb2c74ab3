package policyreview

// HighRiskPattern is a co-occurrence of label families that the reviewer
// treats as elevated reidentification risk (spec §4.2).
type HighRiskPattern struct {
	Code               string
	RequiredLabels     []string
	RemediationHint    string
	RequiredSafeguards []string
	Action             SafeguardAction
}

// HighRiskPatterns is the fixed co-occurrence table of spec §4.2. Matching
// is against the raw label keys present across a request's scope and
// eligibility criteria combined, not just one map at a time — a request
// with "health" in scope and "location" in criteria still matches
// HEALTH_LOCATION_COMBINATION.
var HighRiskPatterns = []HighRiskPattern{
	{
		Code:               "HEALTH_LOCATION_COMBINATION",
		RequiredLabels:     []string{"health", "location"},
		RemediationHint:    "restrict health+location requests to clean-room delivery with coarse geography",
		RequiredSafeguards: []string{"CLEAN_ROOM_ONLY", "COARSE_GEO"},
		Action:             ActionDownscope,
	},
	{
		Code:               "HEALTH_CITY_BUCKET_COMBINATION",
		RequiredLabels:     []string{"health", "city_bucket"},
		RemediationHint:    "restrict health+city-bucket requests to clean-room delivery",
		RequiredSafeguards: []string{"CLEAN_ROOM_ONLY", "COARSE_GEO"},
		Action:             ActionDownscope,
	},
	{
		Code:               "FINANCE_LOCATION_COMBINATION",
		RequiredLabels:     []string{"finance", "location"},
		RemediationHint:    "restrict finance+location requests to aggregate-only output with coarse geography",
		RequiredSafeguards: []string{"AGGREGATE_ONLY", "COARSE_GEO"},
		Action:             ActionDownscope,
	},
	{
		Code:               "COMMUNICATION_LOCATION_COMBINATION",
		RequiredLabels:     []string{"communication", "location"},
		RemediationHint:    "restrict communication+location requests to coarse time and geography buckets",
		RequiredSafeguards: []string{"COARSE_TIME", "COARSE_GEO"},
		Action:             ActionDownscope,
	},
}

// scopeFamilies are the label keys recognised as scope families for both
// high-risk pattern matching and default safeguard assignment. Distinct
// from odx.SensitiveCategories: the reviewer cares about "finance" and
// "location" as families, which the ODX sensitive-category set does not
// name the same way.
var scopeFamilies = map[string]bool{
	"health": true, "location": true, "city_bucket": true,
	"finance": true, "communication": true,
}

// presentLabels returns the set of recognised scope-family keys present
// across any of the given label maps.
func presentLabels(labelMaps ...map[string]string) map[string]bool {
	found := map[string]bool{}
	for _, m := range labelMaps {
		for k := range m {
			if scopeFamilies[k] {
				found[k] = true
			}
		}
	}
	return found
}

// DetectHighRiskPatterns returns every pattern in HighRiskPatterns whose
// required labels are all present across labelMaps.
func DetectHighRiskPatterns(labelMaps ...map[string]string) []HighRiskPattern {
	present := presentLabels(labelMaps...)
	var matched []HighRiskPattern
	for _, p := range HighRiskPatterns {
		all := true
		for _, l := range p.RequiredLabels {
			if !present[l] {
				all = false
				break
			}
		}
		if all {
			matched = append(matched, p)
		}
	}
	return matched
}

// DefaultSafeguards returns the minimum safeguard set for a request (spec
// §4.2): every request gets K_ANONYMITY_50 and TTL_72H; each present scope
// family adds its own defaults on top.
func DefaultSafeguards(labelMaps ...map[string]string) []string {
	safeguards := []string{"K_ANONYMITY_50", "TTL_72H"}
	present := presentLabels(labelMaps...)
	if present["health"] {
		safeguards = append(safeguards, "CLEAN_ROOM_ONLY", "PRIVACY_FLOOR_HIGH")
	}
	if present["location"] || present["city_bucket"] {
		safeguards = append(safeguards, "COARSE_GEO")
	}
	if present["finance"] {
		safeguards = append(safeguards, "AGGREGATE_ONLY", "PRIVACY_FLOOR_HIGH")
	}
	if present["communication"] {
		safeguards = append(safeguards, "COARSE_TIME")
	}
	return safeguards
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

// Package odx implements the allowed vocabulary of coarse criteria labels
// (spec §2 glossary "ODX") shared by the screening engine and the
// coordinator policy review. Keys must either be one of a small set of
// exact allowed keys or begin with one of a fixed set of permitted
// prefixes (spec §4.2).
package odx

import (
	"fmt"
	"sort"
	"strings"
)

// AllowedPrefixes is the set of criteria-key prefixes the vocabulary
// permits (spec §4.2).
var AllowedPrefixes = []string{
	"domain.", "time.", "geo.", "quality.", "privacy.", "availability.", "account.",
}

// ExactAllowedKeys are keys permitted without a prefix.
var ExactAllowedKeys = map[string]bool{
	"purpose": true,
}

// IsAllowedKey reports whether key matches the ODX vocabulary: an exact
// allowed key or a permitted prefix.
func IsAllowedKey(key string) bool {
	if ExactAllowedKeys[key] {
		return true
	}
	for _, p := range AllowedPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Violations returns, for every key in criteria that is not part of the
// ODX vocabulary, the reason code NON_ODX_CRITERIA:<key> (spec §4.2,
// Property 10), in sorted key order for determinism.
func Violations(criteria map[string]string) []string {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		if !IsAllowedKey(k) {
			out = append(out, fmt.Sprintf("NON_ODX_CRITERIA:%s", k))
		}
	}
	return out
}

// DirectIdentifiers are scope labels that directly identify a person
// (spec §4.1 REIDENTIFICATION_RISK).
var DirectIdentifiers = map[string]bool{
	"name": true, "email": true, "phone": true, "ssn": true, "nationalId": true,
}

// QuasiIdentifiers are scope labels that, combined, raise reidentification
// risk (spec §4.1 REIDENTIFICATION_RISK — triggers at 3 or more).
var QuasiIdentifiers = map[string]bool{
	"birthdate": true, "zipcode": true, "gender": true,
	"occupation": true, "employer": true, "address": true,
}

// SensitiveCategories are scope families that trigger SCOPE_SENSITIVE
// (spec §4.1) and the coordinator's default safeguards (spec §4.2).
var SensitiveCategories = map[string]bool{
	"health": true, "medical": true, "financial": true, "political": true,
	"religious": true, "sexual": true, "biometric": true, "genetic": true,
	"criminal": true,
}

// MinorsIndicators are purpose/scope/criteria tokens that force
// MANUAL_REVIEW regardless of any other decision (spec §4.2).
var MinorsIndicators = map[string]bool{
	"minors": true, "children": true, "kids": true, "teens": true,
	"youth": true, "under_18": true, "school": true, "student": true,
	"pediatric": true,
}

// CountQuasiIdentifiers returns how many distinct quasi-identifier labels
// appear in scope.
func CountQuasiIdentifiers(scope map[string]string) int {
	n := 0
	for k := range scope {
		if QuasiIdentifiers[k] {
			n++
		}
	}
	return n
}

// HasDirectIdentifier reports whether scope contains any direct
// identifier label.
func HasDirectIdentifier(scope map[string]string) bool {
	for k := range scope {
		if DirectIdentifiers[k] {
			return true
		}
	}
	return false
}

// SensitiveFamilies returns the sorted set of sensitive-category families
// present across scope and criteria keys (used both for SCOPE_SENSITIVE
// and for the coordinator's default-safeguard assignment).
func SensitiveFamilies(labels ...map[string]string) []string {
	found := map[string]bool{}
	for _, m := range labels {
		for k := range m {
			if SensitiveCategories[k] {
				found[k] = true
			}
		}
	}
	out := make([]string, 0, len(found))
	for k := range found {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ContainsMinorsIndicator reports whether any of the given free-text
// strings or label maps mention a minors indicator token.
func ContainsMinorsIndicator(texts []string, labelMaps ...map[string]string) bool {
	for _, t := range texts {
		lower := strings.ToLower(t)
		for token := range MinorsIndicators {
			if strings.Contains(lower, token) {
				return true
			}
		}
	}
	for _, m := range labelMaps {
		for k := range m {
			lower := strings.ToLower(k)
			for token := range MinorsIndicators {
				if strings.Contains(lower, token) {
					return true
				}
			}
		}
	}
	return false
}

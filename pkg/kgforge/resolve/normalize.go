package resolve

import (
	"regexp"
	"strings"
)

// legalSuffixes are trailing legal-entity tokens stripped during
// normalization.
var legalSuffixes = map[string]struct{}{
	"inc": {}, "corp": {}, "ltd": {}, "llc": {}, "co": {}, "group": {},
	"holdings": {}, "plc": {}, "ag": {}, "gmbh": {}, "sa": {}, "nv": {}, "bv": {},
}

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize canonicalizes an entity name for matching: lowercase, replace
// non-alphanumeric characters with spaces, strip trailing legal-entity
// suffixes, drop single-character tokens, and rejoin with single spaces.
// Punctuation around the suffixes (commas, periods) is absorbed by the
// non-alphanumeric replacement, so "Acme Corp." and "Acme, Corp" normalize
// identically.
func Normalize(name string) string {
	lower := strings.ToLower(name)
	spaced := nonAlnumPattern.ReplaceAllString(lower, " ")
	tokens := strings.Fields(spaced)

	for len(tokens) > 0 {
		if _, ok := legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}

	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) <= 1 {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// tokenSet returns the word set of a normalized name.
func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		set[token] = struct{}{}
	}
	return set
}

// Jaccard computes token-set similarity of two normalized names, in [0, 1].
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// containment reports whether one normalized name is a substring of the
// other with the shorter one longer than three characters. This tolerates
// "acme" vs "acme corporation" while rejecting very short ambiguous
// substrings.
func containment(a, b string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) <= 3 {
		return false
	}
	return strings.Contains(longer, shorter)
}

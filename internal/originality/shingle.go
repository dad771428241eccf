// Package originality guards against cross-item copy duplication. Every
// accepted overview is fingerprinted as a set of word n-gram shingles
// and compared against a rolling window of recent fingerprints; too-high
// Jaccard similarity forces a rewrite before acceptance.
package originality

import (
	"regexp"
	"strings"
)

var shingleStripRe = regexp.MustCompile(`[^a-z0-9\s]+`)

// Shingles returns the set of word n-grams of text, case-folded and
// punctuation-stripped.
func Shingles(text string, n int) map[string]struct{} {
	cleaned := shingleStripRe.ReplaceAllString(strings.ToLower(text), " ")
	words := strings.Fields(cleaned)

	set := make(map[string]struct{})
	if len(words) < n {
		if len(words) > 0 {
			set[strings.Join(words, " ")] = struct{}{}
		}
		return set
	}
	for i := 0; i+n <= len(words); i++ {
		set[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return set
}

// Jaccard computes |a∩b| / |a∪b| for two shingle sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

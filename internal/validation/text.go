package validation

import (
	"math"
	"regexp"
	"strings"
)

var (
	tokenStripRe   = regexp.MustCompile(`[^a-z0-9']+`)
	sentenceEndRe  = regexp.MustCompile(`[.!?]+(\s+|$)`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
)

// normalizeToken lowercases and strips punctuation from one token.
func normalizeToken(s string) string {
	return tokenStripRe.ReplaceAllString(strings.ToLower(s), "")
}

// tokenize splits text into normalized word tokens.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if tok := normalizeToken(f); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// tokenSet returns the distinct normalized tokens of text.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(text) {
		set[tok] = true
	}
	return set
}

// paragraphs splits prose into non-empty paragraphs.
func paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphSplit.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// sentences splits prose into sentences, dropping empties.
func sentences(text string) []string {
	parts := sentenceEndRe.Split(text, -1)
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// wordCount counts whitespace-separated words.
func wordCount(text string) int {
	return len(strings.Fields(text))
}

// sentenceStats returns mean and standard deviation of sentence lengths
// in words.
func sentenceStats(sents []string) (mean, stddev float64) {
	if len(sents) == 0 {
		return 0, 0
	}
	lengths := make([]float64, len(sents))
	var sum float64
	for i, s := range sents {
		lengths[i] = float64(wordCount(s))
		sum += lengths[i]
	}
	mean = sum / float64(len(lengths))
	var varsum float64
	for _, l := range lengths {
		varsum += (l - mean) * (l - mean)
	}
	stddev = math.Sqrt(varsum / float64(len(lengths)))
	return mean, stddev
}

// countPhrase counts case-insensitive whole-phrase occurrences of phrase
// in text, on word boundaries.
func countPhrase(text, phrase string) int {
	want := tokenize(phrase)
	if len(want) == 0 {
		return 0
	}
	toks := tokenize(text)
	count := 0
	for i := 0; i+len(want) <= len(toks); i++ {
		match := true
		for j, w := range want {
			if toks[i+j] != w {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

// firstWord returns the normalized first word of text.
func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return normalizeToken(fields[0])
}

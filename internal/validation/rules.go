package validation

import (
	"fmt"
	"regexp"
	"strings"

	"copyforge/internal/deck"
)

var (
	linkRe     = regexp.MustCompile(`(?i)(https?://\S+|<a\s|\[[^\]]+\]\([^)]*\))`)
	emphasisRe = regexp.MustCompile(`(?i)(\*\*[^*]+\*\*|\*[^*\s][^*]*\*|<em>|<strong>|<b>|<i>)`)
	listMarkRe = regexp.MustCompile(`(?m)^\s*([-*•]|\d+[.)])\s`)
)

// certaintyPhrases are banned absolute-claim phrases.
var certaintyPhrases = []string{
	"guaranteed", "always", "never", "100%", "risk-free",
	"best price", "lowest price", "cheapest", "unbeatable price",
}

// claimTerms are conditionally allowed: only when the evidence itself
// uses them.
var claimTerms = []string{"verified", "certified", "official", "authentic"}

// synonymGroups drive the back-to-back synonym-chain check: three words
// of one group inside a short window reads as keyword padding.
var synonymGroups = [][]string{
	{"durable", "sturdy", "robust", "strong", "tough", "rugged"},
	{"beautiful", "gorgeous", "stunning", "elegant", "lovely"},
	{"cheap", "affordable", "inexpensive", "budget"},
	{"fast", "quick", "rapid", "speedy"},
	{"easy", "simple", "effortless"},
}

// checkShape verifies every expected section is present with the right
// primitive. A shape failure aborts the remaining rules: counting words
// in a section of the wrong type produces noise, not signal.
func checkShape(d deck.Deck, expected []deck.SectionKind) RuleOutcome {
	var problems []string
	for _, kind := range expected {
		s, ok := d[kind]
		if !ok {
			problems = append(problems, fmt.Sprintf("section %s missing", kind))
			continue
		}
		s.Kind = kind
		if err := s.CheckShape(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fail(RuleShape, strings.Join(problems, "; "))
	}
	return pass(RuleShape)
}

// checkAugment verifies pre-existing sections survived untouched. Both
// sides of the comparison pass through the same normalization: upstream
// exports carry stray whitespace and control characters that Sanitize
// strips from the candidate, and that must not read as generator drift.
func checkAugment(d deck.Deck, existing map[deck.SectionKind]string) RuleOutcome {
	var problems []string
	for kind, want := range existing {
		if want == "" {
			continue
		}
		ref := Sanitize(deck.Deck{kind: deck.SectionFromPlain(kind, want)})
		got := d[kind].PlainText()
		if got != ref[kind].PlainText() {
			problems = append(problems, fmt.Sprintf("pre-existing section %s was modified; copy it verbatim", kind))
		}
	}
	if len(problems) > 0 {
		return fail(RuleAugment, strings.Join(problems, "; "))
	}
	return pass(RuleAugment)
}

// checkStructure enforces unit and word counts per section.
func (e *Engine) checkStructure(d deck.Deck, generated []deck.SectionKind) RuleOutcome {
	var problems []string
	for _, kind := range generated {
		s := d[kind]
		b, ok := e.thresholds.Bounds[kind]
		if !ok {
			continue
		}

		units := unitCount(s)
		words := wordCount(s.PlainText())
		if units < b.MinUnits || units > b.MaxUnits {
			problems = append(problems, fmt.Sprintf(
				"section %s has %d %s, need %d-%d", kind, units, unitName(kind), b.MinUnits, b.MaxUnits))
		}
		if words < b.MinWords || words > b.MaxWords {
			problems = append(problems, fmt.Sprintf(
				"section %s has %d words, need %d-%d", kind, words, b.MinWords, b.MaxWords))
		}
	}
	if len(problems) > 0 {
		return fail(RuleStructure, strings.Join(problems, "; "))
	}
	return pass(RuleStructure)
}

// checkKeywords enforces the primary/secondary keyword policy.
func (e *Engine) checkKeywords(d deck.Deck, generated []deck.SectionKind) RuleOutcome {
	primary := e.thresholds.PrimaryKeyword
	var problems []string

	for _, kind := range generated {
		s := d[kind]
		text := s.PlainText()

		if primary != "" {
			count := countPhrase(text, primary)
			if kind == deck.KindOverview {
				paras := paragraphs(s.Text)
				first := ""
				if len(paras) > 0 {
					first = paras[0]
				}
				if n := countPhrase(first, primary); n != 1 {
					problems = append(problems, fmt.Sprintf(
						"primary term %q must appear exactly once in the first overview paragraph (found %d)", primary, n))
				}
				if count > 1 {
					problems = append(problems, fmt.Sprintf(
						"primary term %q appears %d times in overview, max 1", primary, count))
				}
			} else if count > 0 {
				problems = append(problems, fmt.Sprintf(
					"primary term %q must not appear in section %s", primary, kind))
			}
		}

		if len(e.thresholds.SecondaryKeywords) > 0 {
			total := 0
			for _, kw := range e.thresholds.SecondaryKeywords {
				total += countPhrase(text, kw)
			}
			if total > e.thresholds.SecondaryCapPerSection {
				problems = append(problems, fmt.Sprintf(
					"section %s uses secondary terms %d times, cap is %d",
					kind, total, e.thresholds.SecondaryCapPerSection))
			}
		}
	}
	if len(problems) > 0 {
		return fail(RuleKeywords, strings.Join(problems, "; "))
	}
	return pass(RuleKeywords)
}

// checkGrounding requires a minimum overlap between output tokens and
// evidence tokens, whitelist excluded, and gates claim terms on the
// evidence actually containing them.
func (e *Engine) checkGrounding(d deck.Deck, generated []deck.SectionKind, evidenceText string) RuleOutcome {
	evTokens := tokenSet(evidenceText)

	var outTokens []string
	for _, kind := range generated {
		outTokens = append(outTokens, tokenize(d[kind].PlainText())...)
	}
	if len(outTokens) == 0 {
		return pass(RuleGrounding)
	}

	counted, overlapping := 0, 0
	for _, tok := range outTokens {
		if e.thresholds.GroundingWhitelist[tok] {
			continue
		}
		counted++
		if evTokens[tok] {
			overlapping++
		}
	}

	var problems []string
	if counted > 0 {
		overlap := float64(overlapping) / float64(counted)
		if overlap < e.thresholds.MinGroundingOverlap {
			problems = append(problems, fmt.Sprintf(
				"only %.0f%% of output tokens are grounded in the evidence, need %.0f%%; remove claims the evidence does not support",
				overlap*100, e.thresholds.MinGroundingOverlap*100))
		}
	}

	for _, term := range claimTerms {
		used := false
		for _, kind := range generated {
			if countPhrase(d[kind].PlainText(), term) > 0 {
				used = true
				break
			}
		}
		if used && !evTokens[normalizeToken(term)] {
			problems = append(problems, fmt.Sprintf(
				"claim term %q is not supported by the evidence; remove it", term))
		}
	}

	if len(problems) > 0 {
		return fail(RuleGrounding, strings.Join(problems, "; "))
	}
	return pass(RuleGrounding)
}

// checkSafety applies the anti-spam and brand-safety bans.
func (e *Engine) checkSafety(d deck.Deck, generated []deck.SectionKind) RuleOutcome {
	var problems []string
	for _, kind := range generated {
		s := d[kind]
		text := s.PlainText()

		if linkRe.MatchString(text) {
			problems = append(problems, fmt.Sprintf("section %s contains a hyperlink; remove all links", kind))
		}
		if n := len(emphasisRe.FindAllString(text, -1)); n > e.thresholds.MaxEmphasisPerSection {
			problems = append(problems, fmt.Sprintf(
				"section %s has %d emphasis spans, max %d", kind, n, e.thresholds.MaxEmphasisPerSection))
		}
		lower := strings.ToLower(text)
		for _, phrase := range certaintyPhrases {
			if countPhrase(lower, phrase) > 0 {
				problems = append(problems, fmt.Sprintf(
					"section %s uses the banned phrase %q", kind, phrase))
			}
		}
		if chain := findSynonymChain(text); chain != "" {
			problems = append(problems, fmt.Sprintf(
				"section %s chains synonyms (%s); keep one", kind, chain))
		}

		switch deck.PrimitiveOf(kind) {
		case deck.PrimitiveText:
			if listMarkRe.MatchString(s.Text) {
				problems = append(problems, fmt.Sprintf(
					"prose section %s contains list markers; write paragraphs", kind))
			}
		case deck.PrimitiveList:
			for i, item := range s.Items {
				if strings.Contains(item, "\n\n") {
					problems = append(problems, fmt.Sprintf(
						"list item %d in %s contains paragraph breaks", i+1, kind))
				}
			}
		case deck.PrimitiveFAQ:
			seen := make(map[string]bool)
			for _, entry := range s.Entries {
				key := strings.ToLower(strings.TrimSpace(entry.Question))
				if seen[key] {
					problems = append(problems, fmt.Sprintf(
						"duplicate FAQ question %q", entry.Question))
				}
				seen[key] = true
			}
		}
	}
	if len(problems) > 0 {
		return fail(RuleSafety, strings.Join(problems, "; "))
	}
	return pass(RuleSafety)
}

// checkCadence enforces the human-ness style rules.
func (e *Engine) checkCadence(d deck.Deck, generated []deck.SectionKind) RuleOutcome {
	var problems []string
	for _, kind := range generated {
		s := d[kind]
		switch {
		case kind == deck.KindOverview:
			sents := sentences(s.Text)
			if len(sents) < e.thresholds.MinSentences {
				problems = append(problems, fmt.Sprintf(
					"overview has %d sentences, need at least %d", len(sents), e.thresholds.MinSentences))
				break
			}
			mean, stddev := sentenceStats(sents)
			if mean < e.thresholds.MeanSentenceMin || mean > e.thresholds.MeanSentenceMax {
				problems = append(problems, fmt.Sprintf(
					"overview mean sentence length %.1f words is outside %.0f-%.0f",
					mean, e.thresholds.MeanSentenceMin, e.thresholds.MeanSentenceMax))
			}
			if stddev < e.thresholds.SentenceStddevMin || stddev > e.thresholds.SentenceStddevMax {
				problems = append(problems, fmt.Sprintf(
					"overview sentence variation %.1f is outside %.0f-%.0f; vary sentence lengths naturally",
					stddev, e.thresholds.SentenceStddevMin, e.thresholds.SentenceStddevMax))
			}
		case deck.PrimitiveOf(kind) == deck.PrimitiveList:
			for i, item := range s.Items {
				if !e.thresholds.ImperativeVerbs[firstWord(item)] {
					problems = append(problems, fmt.Sprintf(
						"item %d in %s must open with an action verb", i+1, kind))
				}
			}
		case deck.PrimitiveOf(kind) == deck.PrimitiveFAQ:
			if len(s.Entries) >= e.thresholds.FAQOpenerThreshold {
				openers := make(map[string]bool)
				for _, entry := range s.Entries {
					openers[firstWord(entry.Question)] = true
				}
				if len(openers) < e.thresholds.MinFAQOpeners {
					problems = append(problems, fmt.Sprintf(
						"FAQ uses %d distinct question openers, need at least %d",
						len(openers), e.thresholds.MinFAQOpeners))
				}
			}
		}
	}
	if len(problems) > 0 {
		return fail(RuleCadence, strings.Join(problems, "; "))
	}
	return pass(RuleCadence)
}

// findSynonymChain reports the first run of 3+ same-group synonyms
// within a 6-token window, or "".
func findSynonymChain(text string) string {
	toks := tokenize(text)
	for _, group := range synonymGroups {
		inGroup := make(map[string]bool, len(group))
		for _, w := range group {
			inGroup[w] = true
		}
		for i := range toks {
			end := i + 6
			if end > len(toks) {
				end = len(toks)
			}
			var hits []string
			for _, tok := range toks[i:end] {
				if inGroup[tok] {
					hits = append(hits, tok)
				}
			}
			if len(hits) >= 3 {
				return strings.Join(hits, ", ")
			}
		}
	}
	return ""
}

func unitCount(s deck.Section) int {
	switch deck.PrimitiveOf(s.Kind) {
	case deck.PrimitiveList:
		return len(s.Items)
	case deck.PrimitiveFAQ:
		return len(s.Entries)
	default:
		return len(paragraphs(s.Text))
	}
}

func unitName(kind deck.SectionKind) string {
	switch deck.PrimitiveOf(kind) {
	case deck.PrimitiveList:
		return "items"
	case deck.PrimitiveFAQ:
		return "entries"
	default:
		return "paragraphs"
	}
}

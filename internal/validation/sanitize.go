package validation

import (
	"regexp"
	"strings"

	"copyforge/internal/deck"
)

var (
	// Markup allowed to survive sanitization: emphasis only.
	disallowedTagRe = regexp.MustCompile(`(?is)<(script|style|iframe|object|embed|form|input|link|meta)[^>]*>.*?</\s*(script|style|iframe|object|embed|form|input|link|meta)\s*>`)
	htmlTagRe       = regexp.MustCompile(`(?i)</?([a-z][a-z0-9]*)[^>]*>`)
	controlCharRe   = regexp.MustCompile("[\\x00-\\x08\\x0b\\x0c\\x0e-\\x1f\\x7f\\x{200b}-\\x{200d}\\x{2060}\\x{feff}]")
	multiSpaceRe    = regexp.MustCompile(`[ \t]+`)
	multiBlankRe    = regexp.MustCompile(`\n{3,}`)
	spacePunctRe    = regexp.MustCompile(` +([,.;:!?])`)
)

var keepTags = map[string]bool{"em": true, "strong": true, "b": true, "i": true}

// Sanitize normalizes a whole deck: executable and styling markup is
// stripped, invisible control characters removed, whitespace and
// punctuation spacing collapsed. Later length and count rules depend on
// this normalization being applied first.
func Sanitize(d deck.Deck) deck.Deck {
	out := make(deck.Deck, len(d))
	for kind, s := range d {
		cp := s
		cp.Text = sanitizeText(s.Text)
		if s.Items != nil {
			cp.Items = make([]string, 0, len(s.Items))
			for _, item := range s.Items {
				if cleaned := sanitizeText(item); cleaned != "" {
					cp.Items = append(cp.Items, cleaned)
				}
			}
		}
		if s.Entries != nil {
			cp.Entries = make([]deck.FAQEntry, 0, len(s.Entries))
			for _, e := range s.Entries {
				q, a := sanitizeText(e.Question), sanitizeText(e.Answer)
				if q != "" || a != "" {
					cp.Entries = append(cp.Entries, deck.FAQEntry{Question: q, Answer: a})
				}
			}
		}
		out[kind] = cp
	}
	return out
}

// sanitizeText cleans one text value while preserving paragraph breaks
// and the allowed emphasis tags.
func sanitizeText(text string) string {
	if text == "" {
		return ""
	}
	text = disallowedTagRe.ReplaceAllString(text, " ")
	text = htmlTagRe.ReplaceAllStringFunc(text, func(tag string) string {
		m := htmlTagRe.FindStringSubmatch(tag)
		if len(m) > 1 && keepTags[strings.ToLower(m[1])] {
			// Drop any attributes from kept tags.
			name := strings.ToLower(m[1])
			if strings.HasPrefix(tag, "</") {
				return "</" + name + ">"
			}
			return "<" + name + ">"
		}
		return " "
	})
	text = controlCharRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = spacePunctRe.ReplaceAllString(text, "$1")
	text = multiBlankRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Package deck defines the copy deck model: the fixed set of content
// sections generated for every catalog item. Section kinds form a closed
// tagged set so validation rules can be table-driven and exhaustively
// checked at compile time instead of dispatching on section names.
package deck

import (
	"fmt"
	"strings"
)

// SectionKind identifies one of the fixed content sections of a copy deck.
type SectionKind string

const (
	// KindOverview is the primary prose section and the canonical
	// placement for the primary keyword.
	KindOverview SectionKind = "overview"
	// KindBenefits is an unordered list of selling points.
	KindBenefits SectionKind = "benefits"
	// KindHowToUse is an ordered list of step-like instructions.
	KindHowToUse SectionKind = "how_to_use"
	// KindDetails is a secondary prose section.
	KindDetails SectionKind = "details"
	// KindFAQ is a list of question/answer entries.
	KindFAQ SectionKind = "faq"
)

// Primitive describes the value shape a section kind carries.
type Primitive int

const (
	PrimitiveText Primitive = iota
	PrimitiveList
	PrimitiveFAQ
)

// AllKinds lists every section kind in canonical order.
func AllKinds() []SectionKind {
	return []SectionKind{KindOverview, KindBenefits, KindHowToUse, KindDetails, KindFAQ}
}

// PrimitiveOf returns the value shape for a kind.
func PrimitiveOf(kind SectionKind) Primitive {
	switch kind {
	case KindBenefits, KindHowToUse:
		return PrimitiveList
	case KindFAQ:
		return PrimitiveFAQ
	default:
		return PrimitiveText
	}
}

// Ordered reports whether a list section must render as an explicitly
// ordered list. Only the step-like section carries ordering semantics.
func Ordered(kind SectionKind) bool {
	return kind == KindHowToUse
}

// Valid reports whether the kind is one of the closed set.
func Valid(kind SectionKind) bool {
	switch kind {
	case KindOverview, KindBenefits, KindHowToUse, KindDetails, KindFAQ:
		return true
	}
	return false
}

// FAQEntry is a single question/answer pair.
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Section holds the value for one section. Exactly one of Text, Items or
// Entries is populated, according to PrimitiveOf(Kind).
type Section struct {
	Kind    SectionKind `json:"kind"`
	Text    string      `json:"text,omitempty"`
	Items   []string    `json:"items,omitempty"`
	Entries []FAQEntry  `json:"entries,omitempty"`
}

// Deck is a full copy deck keyed by section kind.
type Deck map[SectionKind]Section

// Clone returns a deep copy of the deck.
func (d Deck) Clone() Deck {
	out := make(Deck, len(d))
	for k, s := range d {
		cp := s
		if s.Items != nil {
			cp.Items = append([]string(nil), s.Items...)
		}
		if s.Entries != nil {
			cp.Entries = append([]FAQEntry(nil), s.Entries...)
		}
		out[k] = cp
	}
	return out
}

// Overview returns the primary prose text, or "" if absent.
func (d Deck) Overview() string {
	return d[KindOverview].Text
}

// PlainText flattens a section to plain text for token-level checks.
func (s Section) PlainText() string {
	switch PrimitiveOf(s.Kind) {
	case PrimitiveList:
		out := ""
		for i, item := range s.Items {
			if i > 0 {
				out += "\n"
			}
			out += item
		}
		return out
	case PrimitiveFAQ:
		out := ""
		for i, e := range s.Entries {
			if i > 0 {
				out += "\n"
			}
			out += e.Question + "\n" + e.Answer
		}
		return out
	default:
		return s.Text
	}
}

// SectionFromPlain rebuilds a section from its stored plain-text form,
// the inverse of PlainText. List lines become items; FAQ lines pair up
// as question/answer.
func SectionFromPlain(kind SectionKind, raw string) Section {
	s := Section{Kind: kind}
	switch PrimitiveOf(kind) {
	case PrimitiveList:
		for _, line := range strings.Split(raw, "\n") {
			if line != "" {
				s.Items = append(s.Items, line)
			}
		}
	case PrimitiveFAQ:
		lines := strings.Split(raw, "\n")
		for i := 0; i+1 < len(lines); i += 2 {
			s.Entries = append(s.Entries, FAQEntry{Question: lines[i], Answer: lines[i+1]})
		}
	default:
		s.Text = raw
	}
	return s
}

// CheckShape verifies the section's populated field matches its kind.
func (s Section) CheckShape() error {
	if !Valid(s.Kind) {
		return fmt.Errorf("unknown section kind %q", s.Kind)
	}
	switch PrimitiveOf(s.Kind) {
	case PrimitiveText:
		if len(s.Items) > 0 || len(s.Entries) > 0 {
			return fmt.Errorf("section %s: expected text, got list content", s.Kind)
		}
	case PrimitiveList:
		if s.Text != "" || len(s.Entries) > 0 {
			return fmt.Errorf("section %s: expected list items, got other content", s.Kind)
		}
	case PrimitiveFAQ:
		if s.Text != "" || len(s.Items) > 0 {
			return fmt.Errorf("section %s: expected FAQ entries, got other content", s.Kind)
		}
	}
	return nil
}

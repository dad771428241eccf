package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"copyforge/internal/deck"
)

const systemPrompt = `You write product marketing copy for an online catalog.
Every factual claim must come from the provided source evidence. Do not invent
specifications, certifications or availability claims. Output only JSON matching
the requested shape, with no surrounding prose.`

// buildPrompt renders the user prompt for a request, capping evidence at
// maxEvidenceBytes so the prompt stays bounded.
func buildPrompt(req *Request, maxEvidenceBytes int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Product: %s\n\n", req.DisplayName)

	b.WriteString("Generate the following sections as a JSON object:\n")
	for _, kind := range req.Missing {
		switch deck.PrimitiveOf(kind) {
		case deck.PrimitiveList:
			ordered := ""
			if deck.Ordered(kind) {
				ordered = " (ordered steps)"
			}
			fmt.Fprintf(&b, "- %q: array of strings%s\n", kind, ordered)
		case deck.PrimitiveFAQ:
			fmt.Fprintf(&b, "- %q: array of {\"question\", \"answer\"} objects\n", kind)
		default:
			fmt.Fprintf(&b, "- %q: string of one or more paragraphs separated by blank lines\n", kind)
		}
	}

	if req.PrimaryKeyword != "" {
		fmt.Fprintf(&b, "\nThe phrase %q must appear exactly once, in the first paragraph of the overview section, and nowhere else.\n", req.PrimaryKeyword)
	}
	if len(req.SecondaryKeywords) > 0 {
		fmt.Fprintf(&b, "Use these phrases sparingly where natural: %s.\n", strings.Join(req.SecondaryKeywords, ", "))
	}
	b.WriteString("No hyperlinks. No absolute claims like \"guaranteed\" or \"always\". List items start with an action verb.\n")

	if len(req.Existing) > 0 {
		b.WriteString("\nThese sections already exist and must NOT be rewritten or returned:\n")
		for kind := range req.Existing {
			fmt.Fprintf(&b, "- %s\n", kind)
		}
	}

	if len(req.RepairNotes) > 0 {
		b.WriteString("\nA previous attempt failed validation. Fix exactly these problems and change nothing else:\n")
		for _, note := range req.RepairNotes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}
	if req.AvoidEcho {
		b.WriteString("\nA previous attempt was too similar to copy written for other products. Rephrase substantially: different sentence openings, different structure, same facts.\n")
	}

	if req.Evidence != nil {
		b.WriteString("\nSource evidence (the only permitted factual basis):\n")
		size := 0
		for _, block := range req.Evidence.Blocks {
			if size+len(block) > maxEvidenceBytes {
				break
			}
			b.WriteString(block)
			b.WriteString("\n")
			size += len(block) + 1
		}
	}

	return b.String()
}

// rawDeck is the JSON shape the model returns.
type rawDeck struct {
	Overview string          `json:"overview,omitempty"`
	Benefits []string        `json:"benefits,omitempty"`
	HowToUse []string        `json:"how_to_use,omitempty"`
	Details  string          `json:"details,omitempty"`
	FAQ      []deck.FAQEntry `json:"faq,omitempty"`
}

// parseDeck decodes the model output into sections, keeping only the
// kinds that were requested. Models occasionally wrap JSON in fences;
// those are stripped first. A requested section the model omitted is
// simply absent: the shape rule flags it and the repair loop asks again,
// rather than treating one flaky response as a provider failure.
func parseDeck(text string, requested []deck.SectionKind) (deck.Deck, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var raw rawDeck
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("decode generation output: %w", err)
	}

	want := make(map[deck.SectionKind]bool, len(requested))
	for _, kind := range requested {
		want[kind] = true
	}

	out := make(deck.Deck)
	if want[deck.KindOverview] && raw.Overview != "" {
		out[deck.KindOverview] = deck.Section{Kind: deck.KindOverview, Text: raw.Overview}
	}
	if want[deck.KindBenefits] && len(raw.Benefits) > 0 {
		out[deck.KindBenefits] = deck.Section{Kind: deck.KindBenefits, Items: raw.Benefits}
	}
	if want[deck.KindHowToUse] && len(raw.HowToUse) > 0 {
		out[deck.KindHowToUse] = deck.Section{Kind: deck.KindHowToUse, Items: raw.HowToUse}
	}
	if want[deck.KindDetails] && raw.Details != "" {
		out[deck.KindDetails] = deck.Section{Kind: deck.KindDetails, Text: raw.Details}
	}
	if want[deck.KindFAQ] && len(raw.FAQ) > 0 {
		out[deck.KindFAQ] = deck.Section{Kind: deck.KindFAQ, Entries: raw.FAQ}
	}

	return out, nil
}

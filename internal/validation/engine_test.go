package validation

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"copyforge/internal/config"
	"copyforge/internal/deck"
	"copyforge/internal/evidence"
)

// validDeck is a candidate that satisfies every default rule when paired
// with evidenceFor(d) and the "ceramic mug" primary keyword.
func validDeck() deck.Deck {
	return deck.Deck{
		deck.KindOverview: {Kind: deck.KindOverview, Text: "This ceramic mug holds twelve ounces of coffee and keeps drinks warm. " +
			"The glaze is fired at high temperature. " +
			"Each piece is shaped by hand in a small workshop, so the finish varies slightly from piece to piece. " +
			"A wide base keeps it stable on the desk. " +
			"The handle is sized for a full grip, even when wearing winter gloves. " +
			"It is safe for dishwashers."},
		deck.KindBenefits: {Kind: deck.KindBenefits, Items: []string{
			"Keep drinks warm for longer thanks to the thick walls.",
			"Use it in the microwave or the dishwasher without damage.",
			"Store it stacked; the straight sides nest cleanly.",
			"Choose from three glaze colors to match your kitchen.",
		}},
		deck.KindHowToUse: {Kind: deck.KindHowToUse, Items: []string{
			"Rinse the mug before first use.",
			"Wash it by hand or on the top rack.",
			"Remove coffee stains with a baking soda paste.",
			"Keep it away from open flames and stovetops.",
		}},
		deck.KindDetails: {Kind: deck.KindDetails, Text: "The body is stoneware fired twice, with a clear glaze inside and a colored glaze outside. " +
			"It measures nine centimeters across and holds about 350 milliliters when filled to the rim. " +
			"The weight sits just under 300 grams, light enough for daily use."},
		deck.KindFAQ: {Kind: deck.KindFAQ, Entries: []deck.FAQEntry{
			{Question: "How should it be cleaned?", Answer: "Hand washing is gentlest, though the top rack of a dishwasher is fine."},
			{Question: "Can it go in the microwave?", Answer: "Yes, the glaze contains no metal and heats evenly."},
			{Question: "What is it made of?", Answer: "Twice-fired stoneware with a food-safe glaze."},
			{Question: "Does the color fade over time?", Answer: "The colored glaze is fired on, so it keeps its shade through daily washing."},
		}},
	}
}

// evidenceFor builds a record whose blocks cover every token of d, so the
// grounding rule passes trivially and tests can target other rules.
func evidenceFor(d deck.Deck) *evidence.Record {
	var blocks []string
	for _, kind := range deck.AllKinds() {
		blocks = append(blocks, d[kind].PlainText())
	}
	return &evidence.Record{Blocks: blocks, BlockCount: len(blocks)}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.DefaultValidationConfig()
	cfg.PrimaryKeyword = "ceramic mug"
	return NewEngine(ThresholdsFromConfig(cfg), zap.NewNop())
}

func failedRules(v Verdict) map[RuleID]bool {
	out := make(map[RuleID]bool)
	for _, o := range v.Violations() {
		out[o.RuleID] = true
	}
	return out
}

func TestValidDeckPassesAllRules(t *testing.T) {
	e := testEngine(t)
	d := validDeck()
	_, verdict := e.Validate(d, evidenceFor(d), nil)
	if !verdict.Passed() {
		t.Fatalf("valid deck failed: %v", verdict.RepairNotes())
	}
	if verdict.Summary() != "pass" {
		t.Fatalf("Summary=%q", verdict.Summary())
	}
}

func TestShapeFailureShortCircuits(t *testing.T) {
	e := testEngine(t)
	d := validDeck()
	d[deck.KindBenefits] = deck.Section{Kind: deck.KindBenefits, Text: "not a list"}

	_, verdict := e.Validate(d, evidenceFor(d), nil)
	failed := failedRules(verdict)
	if !failed[RuleShape] {
		t.Fatalf("shape did not fail: %v", verdict.RepairNotes())
	}
	// Later rules never ran.
	if len(verdict.Outcomes) != 2 {
		t.Fatalf("expected augment+shape only, got %d outcomes", len(verdict.Outcomes))
	}
}

func TestMissingSectionFailsShape(t *testing.T) {
	e := testEngine(t)
	d := validDeck()
	delete(d, deck.KindFAQ)
	_, verdict := e.Validate(d, evidenceFor(validDeck()), nil)
	if !failedRules(verdict)[RuleShape] {
		t.Fatalf("missing section not caught: %v", verdict.RepairNotes())
	}
}

func TestKeywordPlacement(t *testing.T) {
	e := testEngine(t)

	t.Run("absent from first paragraph", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindOverview]
		s.Text = strings.ReplaceAll(s.Text, "ceramic mug", "drinking vessel")
		d[deck.KindOverview] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleKeywords] {
			t.Fatalf("missing primary keyword not caught: %v", verdict.RepairNotes())
		}
	})

	t.Run("leaks into another section", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindDetails]
		s.Text += " A fine ceramic mug for every desk, with room for a full pour and a saucer to match it well."
		d[deck.KindDetails] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleKeywords] {
			t.Fatalf("primary keyword outside overview not caught: %v", verdict.RepairNotes())
		}
	})

	t.Run("stuffed into overview twice", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindOverview]
		s.Text += " Order the ceramic mug while the full range of colors is still in stock this season."
		d[deck.KindOverview] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleKeywords] {
			t.Fatalf("doubled primary keyword not caught: %v", verdict.RepairNotes())
		}
	})
}

func TestStructureBounds(t *testing.T) {
	e := testEngine(t)
	d := validDeck()
	d[deck.KindBenefits] = deck.Section{Kind: deck.KindBenefits, Items: []string{"Use it daily without worry at all."}}

	_, verdict := e.Validate(d, evidenceFor(d), nil)
	if !failedRules(verdict)[RuleStructure] {
		t.Fatalf("undersized list not caught: %v", verdict.RepairNotes())
	}
}

func TestGroundingOverlap(t *testing.T) {
	e := testEngine(t)
	d := validDeck()
	// Evidence about something else entirely: overlap collapses.
	ev := &evidence.Record{Blocks: []string{
		"Quarterly revenue grew across all regions as logistics costs normalized during the reporting period.",
	}}
	_, verdict := e.Validate(d, ev, nil)
	if !failedRules(verdict)[RuleGrounding] {
		t.Fatalf("ungrounded copy not caught: %v", verdict.RepairNotes())
	}
}

func TestClaimTermsRequireEvidenceSupport(t *testing.T) {
	e := testEngine(t)
	d := validDeck()
	s := d[deck.KindDetails]
	s.Text += " It ships with a certified food-contact report for the glaze and the clay body used in production."
	d[deck.KindDetails] = s

	// Evidence covers the tokens but never says "certified".
	ev := evidenceFor(validDeck())
	ev.Blocks = append(ev.Blocks, "It ships with a food-contact report for the glaze and the clay body used in production.")
	_, verdict := e.Validate(d, ev, nil)
	if !failedRules(verdict)[RuleGrounding] {
		t.Fatalf("unsupported claim term not caught: %v", verdict.RepairNotes())
	}
}

func TestSafetyBans(t *testing.T) {
	e := testEngine(t)

	t.Run("link", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindDetails]
		s.Text += " See https://example.com/specs for the full measurement table and care advice from the maker."
		d[deck.KindDetails] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleSafety] {
			t.Fatalf("link not caught: %v", verdict.RepairNotes())
		}
	})

	t.Run("banned phrase", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindOverview]
		s.Text = strings.Replace(s.Text, "It is safe for dishwashers.", "It is guaranteed to last for years.", 1)
		d[deck.KindOverview] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleSafety] {
			t.Fatalf("banned phrase not caught: %v", verdict.RepairNotes())
		}
	})

	t.Run("synonym chain", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindDetails]
		s.Text += " The walls are durable, sturdy and robust under daily handling in a busy kitchen or shared office pantry."
		d[deck.KindDetails] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleSafety] {
			t.Fatalf("synonym chain not caught: %v", verdict.RepairNotes())
		}
	})

	t.Run("duplicate faq question", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindFAQ]
		s.Entries = append(s.Entries, deck.FAQEntry{Question: "How should it be cleaned?", Answer: "See above."})
		d[deck.KindFAQ] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleSafety] {
			t.Fatalf("duplicate question not caught: %v", verdict.RepairNotes())
		}
	})
}

func TestCadenceRules(t *testing.T) {
	e := testEngine(t)

	t.Run("robotic uniform sentences", func(t *testing.T) {
		d := validDeck()
		// Eight sentences of exactly eight words each: stddev 0.
		sentence := "The mug keeps your coffee warm today."
		s := d[deck.KindOverview]
		s.Text = "This ceramic mug keeps your coffee warm. " + strings.Repeat(sentence+" ", 7)
		d[deck.KindOverview] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleCadence] {
			t.Fatalf("flat cadence not caught: %v", verdict.RepairNotes())
		}
	})

	t.Run("non-imperative step", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindHowToUse]
		s.Items[0] = "The mug should be rinsed before first use."
		d[deck.KindHowToUse] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleCadence] {
			t.Fatalf("non-imperative step not caught: %v", verdict.RepairNotes())
		}
	})

	t.Run("monotone faq openers", func(t *testing.T) {
		d := validDeck()
		s := d[deck.KindFAQ]
		s.Entries = []deck.FAQEntry{
			{Question: "Is it dishwasher safe?", Answer: "Yes, on the top rack."},
			{Question: "Is it microwave safe?", Answer: "Yes, the glaze has no metal."},
			{Question: "Is it oven safe?", Answer: "No, keep it out of the oven."},
			{Question: "Is it stain resistant?", Answer: "Mostly; baking soda removes coffee marks."},
		}
		d[deck.KindFAQ] = s
		_, verdict := e.Validate(d, evidenceFor(d), nil)
		if !failedRules(verdict)[RuleCadence] {
			t.Fatalf("monotone openers not caught: %v", verdict.RepairNotes())
		}
	})
}

func TestAugmentSectionsExemptAndProtected(t *testing.T) {
	e := testEngine(t)
	d := validDeck()

	// The pre-existing details text would fail structure on its own
	// (too short), but augment sections are exempt from regeneration
	// rules as long as they survive byte-identically.
	existing := map[deck.SectionKind]string{
		deck.KindDetails: "Short legacy details text.",
	}
	d[deck.KindDetails] = deck.Section{Kind: deck.KindDetails, Text: "Short legacy details text."}
	_, verdict := e.Validate(d, evidenceFor(d), existing)
	if !verdict.Passed() {
		t.Fatalf("exempt existing section failed: %v", verdict.RepairNotes())
	}

	// Any drift in a pre-existing section fails the augment rule.
	d[deck.KindDetails] = deck.Section{Kind: deck.KindDetails, Text: "Short legacy details text, improved."}
	_, verdict = e.Validate(d, evidenceFor(d), existing)
	if !failedRules(verdict)[RuleAugment] {
		t.Fatalf("modified existing section not caught: %v", verdict.RepairNotes())
	}
}

func TestAugmentToleratesUnnormalizedExistingInput(t *testing.T) {
	e := testEngine(t)
	d := validDeck()

	// Upstream exports carry double spaces and trailing whitespace.
	// Sanitization normalizes the merged section; the comparison must
	// normalize the raw input the same way instead of failing forever.
	existing := map[deck.SectionKind]string{
		deck.KindDetails:  "Short legacy  details text. ",
		deck.KindBenefits: "Keep it clean. \nUse it  daily.",
	}
	for kind, raw := range existing {
		d[kind] = deck.SectionFromPlain(kind, raw)
	}

	_, verdict := e.Validate(d, evidenceFor(d), existing)
	if failedRules(verdict)[RuleAugment] {
		t.Fatalf("unnormalized existing input failed augment: %v", verdict.RepairNotes())
	}
}

func TestRelaxedThresholdsWiden(t *testing.T) {
	cfg := config.DefaultValidationConfig()
	cfg.PrimaryKeyword = "ceramic mug"
	base := ThresholdsFromConfig(cfg)
	relaxed := base.Relaxed(1.5, 0.67)

	if relaxed.Bounds[deck.KindOverview].MaxWords <= base.Bounds[deck.KindOverview].MaxWords {
		t.Fatal("max words did not widen")
	}
	if relaxed.Bounds[deck.KindBenefits].MinUnits >= base.Bounds[deck.KindBenefits].MinUnits {
		t.Fatal("min units did not shrink")
	}
	if relaxed.MinGroundingOverlap >= base.MinGroundingOverlap {
		t.Fatal("grounding requirement did not shrink")
	}
	// Keyword policy never relaxes.
	if relaxed.PrimaryKeyword != base.PrimaryKeyword {
		t.Fatal("primary keyword changed")
	}

	// A deck that oversteps the strict word cap passes relaxed.
	d := validDeck()
	s := d[deck.KindDetails]
	filler := " The maker notes that each kiln batch is checked for glaze depth, foot finish and handle alignment before packing."
	for i := 0; i < 10; i++ {
		s.Text += filler
	}
	d[deck.KindDetails] = s
	ev := evidenceFor(d)

	strict := NewEngine(base, zap.NewNop())
	if _, verdict := strict.Validate(d, ev, nil); !failedRules(verdict)[RuleStructure] {
		t.Fatalf("oversized details passed strict validation: %v", verdict.RepairNotes())
	}
	loose := strict.WithThresholds(relaxed)
	if _, verdict := loose.Validate(d, ev, nil); failedRules(verdict)[RuleStructure] {
		t.Fatalf("relaxed validation still failed structure: %v", verdict.RepairNotes())
	}
}

func TestSanitizeStripsMarkupAndControls(t *testing.T) {
	d := deck.Deck{
		deck.KindOverview: {Kind: deck.KindOverview,
			Text: "Clean <script>alert(1)</script> text with <strong class=\"x\">kept</strong> emphasis​ and a <div>stripped</div> wrapper."},
	}
	clean := Sanitize(d)
	got := clean[deck.KindOverview].Text
	if strings.Contains(got, "script") || strings.Contains(got, "alert") {
		t.Fatalf("script survived: %q", got)
	}
	if !strings.Contains(got, "<strong>kept</strong>") {
		t.Fatalf("allowed emphasis lost: %q", got)
	}
	if strings.Contains(got, "​") || strings.Contains(got, "<div>") {
		t.Fatalf("invisible char or tag survived: %q", got)
	}
}

package validation

import (
	"strings"

	"go.uber.org/zap"

	"copyforge/internal/deck"
	"copyforge/internal/evidence"
)

// Engine runs the guardrail rule set. It is immutable after construction
// and safe for concurrent use by all workers.
type Engine struct {
	thresholds Thresholds
	log        *zap.Logger
}

// NewEngine builds a rule engine over the given thresholds.
func NewEngine(thresholds Thresholds, log *zap.Logger) *Engine {
	return &Engine{thresholds: thresholds, log: log}
}

// Thresholds returns the engine's active thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// WithThresholds returns a new engine sharing the logger but using
// different thresholds (used by relaxed recovery passes).
func (e *Engine) WithThresholds(t Thresholds) *Engine {
	return &Engine{thresholds: t, log: e.log}
}

// Validate sanitizes the candidate deck and evaluates every rule against
// it, relative to the evidence and the item's pre-existing sections.
// Pre-existing sections are exempt from regeneration rules but must be
// untouched. The sanitized deck is returned so acceptance persists the
// normalized form.
//
// The verdict collects every violation; only a shape failure stops rule
// evaluation early, because later rules cannot interpret mis-typed
// sections.
func (e *Engine) Validate(candidate deck.Deck, ev *evidence.Record, existing map[deck.SectionKind]string) (deck.Deck, Verdict) {
	clean := Sanitize(candidate)

	var generated []deck.SectionKind
	for _, kind := range deck.AllKinds() {
		if v, ok := existing[kind]; ok && v != "" {
			continue
		}
		generated = append(generated, kind)
	}

	var verdict Verdict
	add := func(o RuleOutcome) { verdict.Outcomes = append(verdict.Outcomes, o) }

	add(checkAugment(clean, existing))

	shape := checkShape(clean, generated)
	add(shape)
	if !shape.Passed {
		e.log.Debug("validation aborted on shape failure", zap.String("detail", shape.Detail))
		return clean, verdict
	}

	evidenceText := ""
	if ev != nil {
		evidenceText = strings.Join(ev.Blocks, "\n")
	}

	add(e.checkStructure(clean, generated))
	add(e.checkKeywords(clean, generated))
	add(e.checkGrounding(clean, generated, evidenceText))
	add(e.checkSafety(clean, generated))
	add(e.checkCadence(clean, generated))

	e.log.Debug("validation complete", zap.String("verdict", verdict.Summary()))
	return clean, verdict
}

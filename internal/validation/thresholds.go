package validation

import (
	"math"

	"copyforge/internal/config"
	"copyforge/internal/deck"
)

// Bounds is the structural range for one section kind.
type Bounds struct {
	MinUnits int
	MaxUnits int
	MinWords int
	MaxWords int
}

// Thresholds holds every tunable the rule set consults. Recovery passes
// derive a relaxed copy instead of mutating the engine.
type Thresholds struct {
	PrimaryKeyword         string
	SecondaryKeywords      []string
	SecondaryCapPerSection int

	Bounds map[deck.SectionKind]Bounds

	MinGroundingOverlap float64
	GroundingWhitelist  map[string]bool

	MaxEmphasisPerSection int

	MinSentences      int
	MeanSentenceMin   float64
	MeanSentenceMax   float64
	SentenceStddevMin float64
	SentenceStddevMax float64

	MinFAQOpeners      int
	FAQOpenerThreshold int

	ImperativeVerbs map[string]bool
}

// ThresholdsFromConfig converts the YAML config into engine thresholds.
func ThresholdsFromConfig(cfg config.ValidationConfig) Thresholds {
	bounds := make(map[deck.SectionKind]Bounds, len(cfg.Bounds))
	for name, b := range cfg.Bounds {
		kind := deck.SectionKind(name)
		if !deck.Valid(kind) {
			continue
		}
		bounds[kind] = Bounds{
			MinUnits: b.MinUnits, MaxUnits: b.MaxUnits,
			MinWords: b.MinWords, MaxWords: b.MaxWords,
		}
	}

	whitelist := make(map[string]bool, len(cfg.GroundingWhitelist))
	for _, w := range cfg.GroundingWhitelist {
		whitelist[normalizeToken(w)] = true
	}
	verbs := make(map[string]bool, len(cfg.ImperativeVerbs))
	for _, v := range cfg.ImperativeVerbs {
		verbs[normalizeToken(v)] = true
	}

	return Thresholds{
		PrimaryKeyword:         cfg.PrimaryKeyword,
		SecondaryKeywords:      append([]string(nil), cfg.SecondaryKeywords...),
		SecondaryCapPerSection: cfg.SecondaryCapPerSection,
		Bounds:                 bounds,
		MinGroundingOverlap:    cfg.MinGroundingOverlap,
		GroundingWhitelist:     whitelist,
		MaxEmphasisPerSection:  cfg.MaxEmphasisPerSection,
		MinSentences:           cfg.MinSentences,
		MeanSentenceMin:        cfg.MeanSentenceMin,
		MeanSentenceMax:        cfg.MeanSentenceMax,
		SentenceStddevMin:      cfg.SentenceStddevMin,
		SentenceStddevMax:      cfg.SentenceStddevMax,
		MinFAQOpeners:          cfg.MinFAQOpeners,
		FAQOpenerThreshold:     cfg.FAQOpenerThreshold,
		ImperativeVerbs:        verbs,
	}
}

// Relaxed returns a widened copy of the thresholds for recovery passes:
// unit/word bounds stretch by countFactor and the grounding requirement
// shrinks by overlapFactor. Keyword and safety rules never relax.
func (t Thresholds) Relaxed(countFactor, overlapFactor float64) Thresholds {
	out := t
	out.Bounds = make(map[deck.SectionKind]Bounds, len(t.Bounds))
	for kind, b := range t.Bounds {
		out.Bounds[kind] = Bounds{
			MinUnits: int(math.Floor(float64(b.MinUnits) / countFactor)),
			MaxUnits: int(math.Ceil(float64(b.MaxUnits) * countFactor)),
			MinWords: int(math.Floor(float64(b.MinWords) / countFactor)),
			MaxWords: int(math.Ceil(float64(b.MaxWords) * countFactor)),
		}
	}
	out.MinGroundingOverlap = t.MinGroundingOverlap * overlapFactor
	// Cadence bands widen with the same factor.
	out.MeanSentenceMin = t.MeanSentenceMin / countFactor
	out.MeanSentenceMax = t.MeanSentenceMax * countFactor
	out.SentenceStddevMin = t.SentenceStddevMin / countFactor
	out.SentenceStddevMax = t.SentenceStddevMax * countFactor
	return out
}

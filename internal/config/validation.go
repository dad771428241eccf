package config

import "fmt"

// SectionBounds holds the structural ranges for one section kind.
type SectionBounds struct {
	MinUnits int `yaml:"min_units"` // paragraphs, list items or FAQ entries
	MaxUnits int `yaml:"max_units"`
	MinWords int `yaml:"min_words"`
	MaxWords int `yaml:"max_words"`
}

// ValidationConfig configures the rule engine.
type ValidationConfig struct {
	// PrimaryKeyword must appear exactly once in the overview's first
	// paragraph and nowhere outside the overview.
	PrimaryKeyword string `yaml:"primary_keyword"`
	// SecondaryKeywords are capped at SecondaryCapPerSection combined
	// occurrences per section.
	SecondaryKeywords      []string `yaml:"secondary_keywords"`
	SecondaryCapPerSection int      `yaml:"secondary_cap_per_section"`

	// Bounds per section kind; keys are the section kind names.
	Bounds map[string]SectionBounds `yaml:"bounds"`

	// MinGroundingOverlap is the required fraction of output tokens
	// that must also appear in the evidence (whitelist excluded).
	MinGroundingOverlap float64 `yaml:"min_grounding_overlap"`
	// GroundingWhitelist tokens never count against grounding.
	GroundingWhitelist []string `yaml:"grounding_whitelist"`

	// MaxEmphasisPerSection caps bold/italic spans per section.
	MaxEmphasisPerSection int `yaml:"max_emphasis_per_section"`

	// Cadence bands for the overview section.
	MinSentences       int     `yaml:"min_sentences"`
	MeanSentenceMin    float64 `yaml:"mean_sentence_min"`
	MeanSentenceMax    float64 `yaml:"mean_sentence_max"`
	SentenceStddevMin  float64 `yaml:"sentence_stddev_min"`
	SentenceStddevMax  float64 `yaml:"sentence_stddev_max"`
	MinFAQOpeners      int     `yaml:"min_faq_openers"`
	FAQOpenerThreshold int     `yaml:"faq_opener_threshold"`

	// ImperativeVerbs list items must open with.
	ImperativeVerbs []string `yaml:"imperative_verbs"`
}

// DefaultValidationConfig returns the rule-engine defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		SecondaryCapPerSection: 3,
		Bounds: map[string]SectionBounds{
			"overview":   {MinUnits: 1, MaxUnits: 3, MinWords: 60, MaxWords: 220},
			"benefits":   {MinUnits: 3, MaxUnits: 7, MinWords: 20, MaxWords: 140},
			"how_to_use": {MinUnits: 3, MaxUnits: 8, MinWords: 20, MaxWords: 160},
			"details":    {MinUnits: 1, MaxUnits: 3, MinWords: 40, MaxWords: 200},
			"faq":        {MinUnits: 3, MaxUnits: 8, MinWords: 30, MaxWords: 320},
		},
		MinGroundingOverlap: 0.30,
		GroundingWhitelist: []string{
			"the", "a", "an", "and", "or", "of", "to", "for", "with", "in",
			"on", "your", "you", "is", "are", "it", "this", "that",
			"quality", "premium", "shop", "buy", "online", "free", "shipping",
		},
		MaxEmphasisPerSection: 2,
		MinSentences:          3,
		MeanSentenceMin:       8,
		MeanSentenceMax:       28,
		SentenceStddevMin:     2,
		SentenceStddevMax:     12,
		MinFAQOpeners:         3,
		FAQOpenerThreshold:    4,
		ImperativeVerbs: []string{
			"add", "apply", "attach", "check", "choose", "clean", "connect",
			"insert", "install", "keep", "measure", "mix", "place", "plug",
			"press", "remove", "rinse", "select", "set", "store", "turn",
			"use", "wash", "wipe",
		},
	}
}

func (c *ValidationConfig) validate() error {
	if c.MinGroundingOverlap < 0 || c.MinGroundingOverlap > 1 {
		return fmt.Errorf("validation.min_grounding_overlap must be in [0,1]")
	}
	for kind, b := range c.Bounds {
		if b.MinUnits > b.MaxUnits || b.MinWords > b.MaxWords {
			return fmt.Errorf("validation.bounds[%s]: min exceeds max", kind)
		}
	}
	if c.MeanSentenceMin > c.MeanSentenceMax {
		return fmt.Errorf("validation: mean sentence band inverted")
	}
	if c.SentenceStddevMin > c.SentenceStddevMax {
		return fmt.Errorf("validation: sentence stddev band inverted")
	}
	return nil
}

// Package validation runs the full guardrail rule set over a candidate
// copy deck. Rules are evaluated in order and every violation is
// collected — the repair controller needs the complete list to issue one
// comprehensive fix instruction instead of discovering failures one at a
// time.
package validation

import "strings"

// RuleID identifies one guardrail rule family.
type RuleID string

const (
	RuleAugment   RuleID = "augment"   // pre-existing sections untouched
	RuleShape     RuleID = "shape"     // sections present with expected primitive types
	RuleStructure RuleID = "structure" // paragraph/item and word-count ranges
	RuleKeywords  RuleID = "keywords"  // primary/secondary keyword placement policy
	RuleGrounding RuleID = "grounding" // evidence-token overlap
	RuleSafety    RuleID = "safety"    // anti-spam and brand-safety bans
	RuleCadence   RuleID = "cadence"   // sentence rhythm and list/FAQ style
)

// RuleOutcome is one rule's result.
type RuleOutcome struct {
	RuleID RuleID `json:"rule_id"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Verdict is the ordered list of rule outcomes for one candidate.
type Verdict struct {
	Outcomes []RuleOutcome `json:"outcomes"`
}

// Passed reports whether every rule passed.
func (v Verdict) Passed() bool {
	for _, o := range v.Outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}

// Violations returns the failed outcomes.
func (v Verdict) Violations() []RuleOutcome {
	var out []RuleOutcome
	for _, o := range v.Outcomes {
		if !o.Passed {
			out = append(out, o)
		}
	}
	return out
}

// RepairNotes renders the violations as repair-prompt instructions.
func (v Verdict) RepairNotes() []string {
	var out []string
	for _, o := range v.Violations() {
		out = append(out, string(o.RuleID)+": "+o.Detail)
	}
	return out
}

// Summary renders a compact one-line description for logs.
func (v Verdict) Summary() string {
	violations := v.Violations()
	if len(violations) == 0 {
		return "pass"
	}
	ids := make([]string, len(violations))
	for i, o := range violations {
		ids[i] = string(o.RuleID)
	}
	return "fail[" + strings.Join(ids, ",") + "]"
}

func pass(id RuleID) RuleOutcome {
	return RuleOutcome{RuleID: id, Passed: true}
}

func fail(id RuleID, detail string) RuleOutcome {
	return RuleOutcome{RuleID: id, Passed: false, Detail: detail}
}

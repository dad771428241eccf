package journal

// Code buckets a terminal failure so recovery passes can target one class
// of rejection without re-reading free-form messages.
type Code string

const (
	CodeEvidenceUnavailable Code = "evidence_unavailable" // fetch failed, 404, timeout
	CodeThinEvidence        Code = "thin_evidence"        // too few blocks or characters
	CodeBlockedEvidence     Code = "blocked_evidence"     // cookie wall or CAPTCHA
	CodeGenerationFailure   Code = "generation_failure"   // provider error or rate limit
	CodeGuardrailFailure    Code = "guardrail_failure"    // validation failed after repair+escalation
	CodeOriginalityFailure  Code = "originality_failure"  // never converged below similarity threshold
	CodeBudgetExceeded      Code = "budget_exceeded"      // run-level abort, reported once
	CodeAbandoned           Code = "abandoned"            // retry ceiling reached across recovery passes
)

// Recoverable reports whether a targeted recovery pass may retry items
// rejected with this code. Abandoned is permanent and BudgetExceeded is a
// run-level condition, not an item property.
func (c Code) Recoverable() bool {
	switch c {
	case CodeAbandoned, CodeBudgetExceeded:
		return false
	}
	return true
}

// ProbeOnly reports whether the code can be cheaply re-tested by running
// evidence fetch and classification alone, without any generation spend.
func (c Code) ProbeOnly() bool {
	switch c {
	case CodeEvidenceUnavailable, CodeThinEvidence, CodeBlockedEvidence:
		return true
	}
	return false
}

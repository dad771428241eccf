// Package repair drives a candidate through generation, validation and
// bounded repair, escalating once to the stronger tier before giving up.
// The transition logic is a pure state machine so every path can be
// tested without network I/O.
package repair

import "copyforge/internal/generation"

// Action is what the controller must do next.
type Action int

const (
	// ActionAccept commits the current candidate.
	ActionAccept Action = iota
	// ActionRepair re-invokes generation at the same tier with a
	// targeted fix instruction.
	ActionRepair
	// ActionEscalate switches to the stronger tier and restarts the
	// repair budget.
	ActionEscalate
	// ActionReject terminates the item.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRepair:
		return "repair"
	case ActionEscalate:
		return "escalate"
	default:
		return "reject"
	}
}

// Machine holds the repair/escalation position for one item.
type Machine struct {
	Tier        generation.Tier
	RepairsUsed int
	MaxRepairs  int
	Escalated   bool
}

// NewMachine starts at the primary tier with the given per-tier repair
// budget.
func NewMachine(maxRepairs int) *Machine {
	return &Machine{Tier: generation.TierPrimary, MaxRepairs: maxRepairs}
}

// Next consumes one validation outcome and advances the machine. It is
// the only place the repair/escalation policy lives.
func (m *Machine) Next(passed bool) Action {
	if passed {
		return ActionAccept
	}
	if m.RepairsUsed < m.MaxRepairs {
		m.RepairsUsed++
		return ActionRepair
	}
	if !m.Escalated {
		m.Escalated = true
		m.Tier = generation.TierEscalated
		m.RepairsUsed = 0
		return ActionEscalate
	}
	return ActionReject
}

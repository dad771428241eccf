package repair

import (
	"testing"

	"copyforge/internal/generation"
)

func TestMachinePassAccepts(t *testing.T) {
	m := NewMachine(2)
	if got := m.Next(true); got != ActionAccept {
		t.Fatalf("Next(pass)=%v", got)
	}
	if m.Tier != generation.TierPrimary {
		t.Fatalf("tier=%v", m.Tier)
	}
}

func TestMachineFullFailurePath(t *testing.T) {
	m := NewMachine(2)
	want := []Action{
		ActionRepair,   // primary repair 1
		ActionRepair,   // primary repair 2
		ActionEscalate, // switch tier, reset repairs
		ActionRepair,   // escalated repair 1
		ActionRepair,   // escalated repair 2
		ActionReject,   // out of moves
	}
	for i, w := range want {
		got := m.Next(false)
		if got != w {
			t.Fatalf("step %d: got %v, want %v", i, got, w)
		}
	}
	if m.Tier != generation.TierEscalated {
		t.Fatalf("final tier=%v", m.Tier)
	}
	// Rejection is sticky.
	if got := m.Next(false); got != ActionReject {
		t.Fatalf("after reject: %v", got)
	}
}

func TestMachineEscalatedPassAccepts(t *testing.T) {
	m := NewMachine(1)
	m.Next(false) // repair
	m.Next(false) // escalate
	if got := m.Next(true); got != ActionAccept {
		t.Fatalf("pass after escalation=%v", got)
	}
	if m.Tier != generation.TierEscalated {
		t.Fatalf("tier=%v", m.Tier)
	}
}

func TestActionString(t *testing.T) {
	for a, want := range map[Action]string{
		ActionAccept:   "accept",
		ActionRepair:   "repair",
		ActionEscalate: "escalate",
		ActionReject:   "reject",
	} {
		if a.String() != want {
			t.Fatalf("%d.String()=%q", a, a.String())
		}
	}
}

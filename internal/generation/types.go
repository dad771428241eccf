// Package generation defines the boundary to the external text-generation
// service. The core depends only on the Client contract: a bounded prompt
// plus a tier goes in, the fixed section set or an error comes out.
package generation

import (
	"context"
	"errors"

	"copyforge/internal/deck"
	"copyforge/internal/evidence"
)

// Tier selects the quality/cost level of a generation call.
type Tier string

const (
	// TierPrimary is the default, cheaper tier.
	TierPrimary Tier = "primary"
	// TierEscalated is the stronger tier used after repeated repair
	// failures.
	TierEscalated Tier = "escalated"
)

// ErrRateLimited marks a provider rate-limit signal.
var ErrRateLimited = errors.New("generation provider rate limited")

// Usage captures token counts and cost of one generation call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add accumulates another call's usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Cost += other.Cost
}

// Request describes one generation (or repair) call.
type Request struct {
	ItemID      string
	DisplayName string
	// Missing lists the sections to generate; sections already
	// populated upstream are never regenerated (augment semantics).
	Missing  []deck.SectionKind
	Existing map[deck.SectionKind]string
	Evidence *evidence.Record
	Tier     Tier
	// PrimaryKeyword and SecondaryKeywords feed the keyword-policy
	// instructions in the prompt.
	PrimaryKeyword    string
	SecondaryKeywords []string
	// RepairNotes carries the violated-rule details of a failed
	// validation so the repair call fixes only what is broken.
	RepairNotes []string
	// AvoidEcho asks for a rewrite that diverges from recently
	// accepted copy; set when the originality guard trips.
	AvoidEcho bool
}

// Result is a candidate copy deck plus the usage it cost.
type Result struct {
	Sections deck.Deck
	TierUsed Tier
	Usage    Usage
}

// Client is the external generation service boundary.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}

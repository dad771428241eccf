package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"copyforge/internal/budget"
	"copyforge/internal/catalog"
	"copyforge/internal/deck"
	"copyforge/internal/evidence"
	"copyforge/internal/generation"
	"copyforge/internal/journal"
	"copyforge/internal/originality"
	"copyforge/internal/validation"
)

// Config bounds the controller.
type Config struct {
	// MaxRepairs is the repair budget per tier.
	MaxRepairs int
	// PrimaryKeyword and SecondaryKeywords are passed through to the
	// generation prompt.
	PrimaryKeyword    string
	SecondaryKeywords []string
}

// Outcome is the terminal result for one item.
type Outcome struct {
	// Accepted is the sanitized final deck, nil when rejected.
	Accepted deck.Deck
	Code     journal.Code
	Message  string
	TierUsed generation.Tier
	Usage    generation.Usage
	Calls    int
	Rewrites int
}

// Controller wraps generation and validation in the bounded
// repair/escalation loop, with the originality guard gating acceptance.
type Controller struct {
	client generation.Client
	engine *validation.Engine
	guard  *originality.Guard
	budget *budget.Tracker
	cfg    Config
	log    *zap.Logger
}

// NewController wires the controller's collaborators.
func NewController(client generation.Client, engine *validation.Engine, guard *originality.Guard, tracker *budget.Tracker, cfg Config, log *zap.Logger) *Controller {
	if cfg.MaxRepairs <= 0 {
		cfg.MaxRepairs = 2
	}
	return &Controller{
		client: client,
		engine: engine,
		guard:  guard,
		budget: tracker,
		cfg:    cfg,
		log:    log,
	}
}

// Run drives one item to acceptance or a terminal rejection. Every
// generation call's usage is recorded against the budget ledger as it
// happens, so a cap abort never loses spend accounting.
func (c *Controller) Run(ctx context.Context, item catalog.WorkItem, ev *evidence.Record) (*Outcome, error) {
	machine := NewMachine(c.cfg.MaxRepairs)
	outcome := &Outcome{TierUsed: machine.Tier}

	req := &generation.Request{
		ItemID:            item.ID,
		DisplayName:       item.DisplayName,
		Missing:           item.MissingSections(),
		Existing:          item.ExistingFields,
		Evidence:          ev,
		Tier:              machine.Tier,
		PrimaryKeyword:    c.cfg.PrimaryKeyword,
		SecondaryKeywords: c.cfg.SecondaryKeywords,
	}

	lastFailure := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Never spend once the cap is breached, even mid-repair.
		if c.budget.OverCap() {
			return nil, budget.ErrCapExceeded
		}

		req.Tier = machine.Tier
		result, err := c.generate(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			outcome.Code = journal.CodeGenerationFailure
			outcome.Message = err.Error()
			outcome.TierUsed = machine.Tier
			return outcome, nil
		}
		outcome.Calls++
		outcome.Usage.Add(result.Usage)
		c.budget.Add(result.Usage)

		candidate := mergeExisting(result.Sections, item.ExistingFields)
		clean, verdict := c.engine.Validate(candidate, ev, item.ExistingFields)

		passed := verdict.Passed()
		echo := false
		// A pre-existing overview is restored verbatim on every attempt;
		// the guard only gates overviews the generator can rewrite.
		if passed && c.guard != nil && item.ExistingFields[deck.KindOverview] == "" {
			if sim, tooSimilar := c.guard.Check(clean.Overview()); tooSimilar {
				c.log.Info("originality guard forced rewrite",
					zap.String("item", item.ID),
					zap.Float64("similarity", sim))
				passed = false
				echo = true
				outcome.Rewrites++
			}
		}

		action := machine.Next(passed)
		c.log.Debug("repair transition",
			zap.String("item", item.ID),
			zap.String("verdict", verdict.Summary()),
			zap.Bool("echo", echo),
			zap.String("action", action.String()),
			zap.String("tier", string(machine.Tier)))

		switch action {
		case ActionAccept:
			outcome.Accepted = clean
			outcome.TierUsed = result.TierUsed
			return outcome, nil

		case ActionRepair, ActionEscalate:
			req.AvoidEcho = echo
			if echo {
				req.RepairNotes = nil
				lastFailure = "echoes recently accepted copy"
			} else {
				req.RepairNotes = verdict.RepairNotes()
				lastFailure = strings.Join(verdict.RepairNotes(), "; ")
			}

		case ActionReject:
			if echo {
				outcome.Code = journal.CodeOriginalityFailure
				outcome.Message = "candidate never diverged below the similarity threshold"
			} else {
				outcome.Code = journal.CodeGuardrailFailure
				outcome.Message = lastFailureOr(verdict, lastFailure)
			}
			outcome.TierUsed = machine.Tier
			return outcome, nil
		}
	}
}

// generate calls the client, retrying a single time on a rate-limit
// signal before treating it as a provider failure.
func (c *Controller) generate(ctx context.Context, req *generation.Request) (*generation.Result, error) {
	result, err := c.client.Generate(ctx, req)
	if err != nil && errors.Is(err, generation.ErrRateLimited) {
		c.log.Warn("generation rate limited, retrying once", zap.String("item", req.ItemID))
		result, err = c.client.Generate(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	return result, nil
}

// mergeExisting overlays the item's pre-populated sections verbatim, so
// augment-mode output always carries them unmodified.
func mergeExisting(generated deck.Deck, existing map[deck.SectionKind]string) deck.Deck {
	out := generated.Clone()
	for kind, raw := range existing {
		if raw == "" {
			continue
		}
		out[kind] = deck.SectionFromPlain(kind, raw)
	}
	return out
}

func lastFailureOr(verdict validation.Verdict, fallback string) string {
	if notes := verdict.RepairNotes(); len(notes) > 0 {
		return strings.Join(notes, "; ")
	}
	if fallback != "" {
		return fallback
	}
	return "validation failed after repair and escalation"
}

// Package budget keeps the run's spend ledger and enforces the hard
// cost cap. The ledger is a single lock-guarded service injected into
// the pipeline; there is exactly one per run.
package budget

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"copyforge/internal/config"
	"copyforge/internal/generation"
)

// ErrCapExceeded stops work before further spend once the cap is
// breached. Callers treat it as a run-level stop, never an item failure.
var ErrCapExceeded = errors.New("budget cap exceeded")

// Ledger is a snapshot of cumulative spend.
type Ledger struct {
	InputUnits  int     `json:"input_units"`
	OutputUnits int     `json:"output_units"`
	CostSoFar   float64 `json:"cost_so_far"`
	Cap         float64 `json:"cap"`
	ItemsDone   int     `json:"items_done"`
}

// Tracker accumulates usage and decides when the cap is breached.
type Tracker struct {
	mu        sync.Mutex
	ledger    Ledger
	minSample int
	planned   int
	log       *zap.Logger
}

// NewTracker builds a tracker with the configured cap.
func NewTracker(cfg config.BudgetConfig, log *zap.Logger) *Tracker {
	return &Tracker{
		ledger:    Ledger{Cap: cfg.Cap},
		minSample: cfg.MinProjectionSample,
		log:       log,
	}
}

// Add records one generation call's usage.
func (t *Tracker) Add(u generation.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ledger.InputUnits += u.InputTokens
	t.ledger.OutputUnits += u.OutputTokens
	t.ledger.CostSoFar += u.Cost
}

// ItemDone bumps the completed-item count the projection divides by.
func (t *Tracker) ItemDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ledger.ItemsDone++
}

// Snapshot returns a copy of the ledger.
func (t *Tracker) Snapshot() Ledger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger
}

// ProjectedTotal estimates the full-run cost as
// (costSoFar / itemsDone) * totalPlanned. Below the minimum sample the
// projection is not trusted and actual spend is returned instead —
// never a division by a tiny or zero denominator.
func (t *Tracker) ProjectedTotal(totalPlanned int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.projectedLocked(totalPlanned)
}

func (t *Tracker) projectedLocked(totalPlanned int) float64 {
	if t.ledger.ItemsDone < t.minSample || totalPlanned <= 0 {
		return t.ledger.CostSoFar
	}
	perItem := t.ledger.CostSoFar / float64(t.ledger.ItemsDone)
	return perItem * float64(totalPlanned)
}

// BeginRun records the run's planned item count, the total the
// projection scales to. OverCap uses it so spend gates deep in the
// per-item loop need no plumbing of the run size.
func (t *Tracker) BeginRun(planned int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.planned = planned
}

// OverCap reports whether the current run's actual or projected spend
// has crossed the cap.
func (t *Tracker) OverCap() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exceededLocked(t.planned)
}

// Exceeded reports whether either actual spend or the projected total
// has crossed the cap. A zero cap disables the check.
func (t *Tracker) Exceeded(totalPlanned int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exceededLocked(totalPlanned)
}

func (t *Tracker) exceededLocked(totalPlanned int) bool {
	if t.ledger.Cap <= 0 {
		return false
	}
	if t.ledger.CostSoFar >= t.ledger.Cap {
		t.log.Warn("budget cap reached by actual spend",
			zap.Float64("cost", t.ledger.CostSoFar),
			zap.Float64("cap", t.ledger.Cap))
		return true
	}
	if projected := t.projectedLocked(totalPlanned); projected > t.ledger.Cap {
		t.log.Warn("budget cap exceeded by projection",
			zap.Float64("projected", projected),
			zap.Float64("cap", t.ledger.Cap),
			zap.Int("items_done", t.ledger.ItemsDone))
		return true
	}
	return false
}

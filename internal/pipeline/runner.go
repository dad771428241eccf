// Package pipeline owns the run loop: it leases items from the
// checkpoint store, feeds them through a bounded worker pool, and
// commits each terminal outcome to the journals in write-ahead order.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"copyforge/internal/budget"
	"copyforge/internal/catalog"
	"copyforge/internal/checkpoint"
	"copyforge/internal/config"
	"copyforge/internal/evidence"
	"copyforge/internal/journal"
	"copyforge/internal/logging"
	"copyforge/internal/originality"
	"copyforge/internal/repair"
)

// errBudgetStop cancels the pool when the spend cap is breached. It is
// internal to the runner; the summary carries the user-visible outcome.
var errBudgetStop = errors.New("budget cap reached")

// Fetcher retrieves classified evidence for a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*evidence.Record, error)
}

// Summary is the run's final tally.
type Summary struct {
	Planned      int                  `json:"planned"`
	Accepted     int                  `json:"accepted"`
	Rejected     int                  `json:"rejected"`
	Skipped      int                  `json:"skipped"`
	BudgetAbort  bool                 `json:"budget_abort"`
	Ledger       budget.Ledger        `json:"ledger"`
	Elapsed      time.Duration        `json:"elapsed"`
	RejectCounts map[journal.Code]int `json:"reject_counts,omitempty"`
}

// Runner wires the fetcher, controller, journals, checkpoint store and
// originality guard into one run.
type Runner struct {
	cfg        *config.Config
	fetcher    Fetcher
	controller *repair.Controller
	store      *checkpoint.Store
	accepted   *journal.AcceptedLog
	rejects    *journal.RejectLog
	guard      *originality.Guard
	budget     *budget.Tracker
	log        *zap.Logger

	mu      sync.Mutex
	summary Summary
}

// NewRunner assembles a runner from its already-opened collaborators.
func NewRunner(
	cfg *config.Config,
	fetcher Fetcher,
	controller *repair.Controller,
	store *checkpoint.Store,
	accepted *journal.AcceptedLog,
	rejects *journal.RejectLog,
	guard *originality.Guard,
	tracker *budget.Tracker,
	log *zap.Logger,
) *Runner {
	return &Runner{
		cfg:        cfg,
		fetcher:    fetcher,
		controller: controller,
		store:      store,
		accepted:   accepted,
		rejects:    rejects,
		guard:      guard,
		budget:     tracker,
		log:        log.Named(logging.CategoryPool),
	}
}

// Run processes items until the queue drains, the context is cancelled
// or the budget cap trips. A cancelled context releases in-flight leases
// so a follow-up run picks the items straight back up; a budget abort is
// reported once at run level, never per item.
func (r *Runner) Run(ctx context.Context, items []catalog.WorkItem) (*Summary, error) {
	started := time.Now()
	r.summary = Summary{Planned: len(items), RejectCounts: make(map[journal.Code]int)}
	r.budget.BeginRun(len(items))

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if err := r.store.Seed(ids); err != nil {
		return nil, err
	}

	// Repair the crash window between an accepted append and its
	// checkpoint mark before leasing anything.
	priorAccepted, err := r.accepted.ReadAll()
	if err != nil {
		return nil, err
	}
	if err := r.store.Reconcile(priorAccepted); err != nil {
		return nil, err
	}

	// Fingerprints commit after the checkpoint mark, so a crash between
	// the two loses at most the newest ones. Replay the accepted tail;
	// resident items are skipped.
	replay := priorAccepted
	if max := r.cfg.Originality.WindowSize; len(replay) > max {
		replay = replay[len(replay)-max:]
	}
	for _, rec := range replay {
		if err := r.guard.EnsureCommitted(rec.ItemID, rec.Sections.Overview()); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Pool.Concurrency)

	dispatched := 0
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		if r.cfg.Pool.MaxItems > 0 && dispatched >= r.cfg.Pool.MaxItems {
			break
		}
		if r.budget.OverCap() {
			r.bump(func(s *Summary) { s.BudgetAbort = true })
			break
		}

		claimed, err := r.store.Claim(item.ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			r.bump(func(s *Summary) { s.Skipped++ })
			continue
		}
		dispatched++

		item := item
		g.Go(func() error {
			err := r.processOne(gctx, item)
			if err == nil {
				return nil
			}
			// A cancelled worker returns its lease so the item is
			// retried cleanly next run.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if relErr := r.store.Release(item.ID); relErr != nil {
					r.log.Error("release lease failed",
						zap.String("item", item.ID), zap.Error(relErr))
				}
			}
			return err
		})
	}

	err = g.Wait()
	if errors.Is(err, errBudgetStop) {
		r.bump(func(s *Summary) { s.BudgetAbort = true })
		err = nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// External shutdown: leases were released, not an error.
		err = nil
	}

	r.mu.Lock()
	summary := r.summary
	r.mu.Unlock()
	summary.Ledger = r.budget.Snapshot()
	summary.Elapsed = time.Since(started)

	r.log.Info("run complete",
		zap.Int("planned", summary.Planned),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("budget_abort", summary.BudgetAbort),
		zap.Float64("cost", summary.Ledger.CostSoFar),
		zap.Duration("elapsed", summary.Elapsed))
	return &summary, err
}

// processOne takes a claimed item to a terminal state.
func (r *Runner) processOne(ctx context.Context, item catalog.WorkItem) error {
	log := r.log.With(zap.String("item", item.ID))

	rec, err := r.fetcher.Fetch(ctx, item.SourceURL)
	if err != nil {
		var fe *evidence.FetchError
		if errors.As(err, &fe) {
			log.Info("evidence unavailable", zap.Error(fe))
			return r.reject(item.ID, fe.Code, fe.Error())
		}
		return err
	}
	if code, bad := rec.Code(); bad {
		log.Info("evidence unusable",
			zap.String("code", string(code)),
			zap.Int("blocks", rec.BlockCount),
			zap.Int("chars", rec.CharCount))
		return r.reject(item.ID, code, "evidence failed usability checks")
	}

	outcome, err := r.controller.Run(ctx, item, rec)
	if err != nil {
		if errors.Is(err, budget.ErrCapExceeded) {
			// The item spent nothing; return its lease and stop the run.
			if relErr := r.store.Release(item.ID); relErr != nil {
				log.Error("release lease failed", zap.Error(relErr))
			}
			return errBudgetStop
		}
		return err
	}
	r.budget.ItemDone()

	if outcome.Accepted == nil {
		log.Info("item rejected",
			zap.String("code", string(outcome.Code)),
			zap.Int("calls", outcome.Calls))
		if err := r.reject(item.ID, outcome.Code, outcome.Message); err != nil {
			return err
		}
		return r.budgetGate()
	}

	// Commit order matters: journal append first, then the checkpoint
	// mark against its sequence, then the fingerprint. Reconcile covers
	// a crash between the first two.
	seq, err := r.accepted.Append(journal.AcceptedRecord{
		ItemID:    item.ID,
		Sections:  outcome.Accepted,
		TierUsed:  string(outcome.TierUsed),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := r.store.MarkDone(item.ID, seq); err != nil {
		return err
	}
	if err := r.guard.Commit(item.ID, outcome.Accepted.Overview()); err != nil {
		return err
	}

	r.bump(func(s *Summary) { s.Accepted++ })
	log.Info("item accepted",
		zap.String("tier", string(outcome.TierUsed)),
		zap.Int("calls", outcome.Calls),
		zap.Float64("cost", outcome.Usage.Cost))
	return r.budgetGate()
}

// reject appends the reject record and finalizes the checkpoint entry.
func (r *Runner) reject(id string, code journal.Code, msg string) error {
	if _, err := r.rejects.Append(journal.RejectRecord{ItemID: id, Code: code, Message: msg}); err != nil {
		return err
	}
	if err := r.store.MarkRejected(id, code); err != nil {
		return err
	}
	r.bump(func(s *Summary) {
		s.Rejected++
		s.RejectCounts[code]++
	})
	return nil
}

// budgetGate stops the pool once actual or projected spend crosses the
// cap. The item that tripped it has already been committed; with the
// pre-spend checks in the dispatch loop and the controller, overshoot is
// bounded by the calls already in flight.
func (r *Runner) budgetGate() error {
	if r.budget.OverCap() {
		return errBudgetStop
	}
	return nil
}

func (r *Runner) bump(f func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.summary)
}

package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"copyforge/internal/budget"
	"copyforge/internal/checkpoint"
	"copyforge/internal/config"
	"copyforge/internal/evidence"
	"copyforge/internal/generation"
	"copyforge/internal/journal"
	"copyforge/internal/logging"
	"copyforge/internal/originality"
	"copyforge/internal/pipeline"
	"copyforge/internal/repair"
	"copyforge/internal/validation"
)

// app holds every opened pipeline component for one command invocation.
type app struct {
	runID    string
	lock     *checkpoint.Lock
	store    *checkpoint.Store
	accepted *journal.AcceptedLog
	rejects  *journal.RejectLog
	guard    *originality.Guard
	cache    *evidence.Cache
	fetcher  *evidence.Fetcher
	budget   *budget.Tracker
	runner   *pipeline.Runner
}

type appOptions struct {
	// override lets terminal items be claimed again (recovery passes).
	override bool
	// relaxed widens the validation thresholds per the recovery config.
	relaxed bool
	// generate opens the generation client; probe and stats leave it off.
	generate bool
}

// openApp acquires the run lock and opens every component in dependency
// order. Callers must defer a.close().
func openApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	a := &app{runID: uuid.NewString()}

	lock, err := checkpoint.AcquireLock(cfg.LockPath(), a.runID)
	if err != nil {
		return nil, err
	}
	a.lock = lock

	ok := false
	defer func() {
		if !ok {
			a.close(log)
		}
	}()

	a.store, err = checkpoint.Open(cfg.CheckpointPath(), checkpoint.Options{
		LeaseTimeout: cfg.Checkpoint.LeaseTimeoutDuration(),
		Override:     opts.override || cfg.Checkpoint.Override,
		RunID:        a.runID,
	}, log.Named(logging.CategoryCheckpoint))
	if err != nil {
		return nil, err
	}

	a.accepted, err = journal.OpenAccepted(cfg.AcceptedPath())
	if err != nil {
		return nil, err
	}
	a.rejects, err = journal.OpenRejects(cfg.RejectsPath())
	if err != nil {
		return nil, err
	}
	a.guard, err = originality.Open(cfg.FingerprintPath(), cfg.Originality,
		log.Named(logging.CategoryOriginality))
	if err != nil {
		return nil, err
	}

	a.cache, err = evidence.NewCache(cfg.EvidenceCachePath())
	if err != nil {
		return nil, err
	}
	a.fetcher = evidence.NewFetcher(cfg.Fetch, a.cache, log.Named(logging.CategoryFetch))

	a.budget = budget.NewTracker(cfg.Budget, log.Named(logging.CategoryBudget))

	if opts.generate {
		client, err := newClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}

		thresholds := validation.ThresholdsFromConfig(cfg.Validation)
		if opts.relaxed {
			thresholds = thresholds.Relaxed(
				cfg.Recovery.RelaxCountFactor, cfg.Recovery.RelaxOverlapFactor)
		}
		engine := validation.NewEngine(thresholds, log.Named(logging.CategoryValidate))

		controller := repair.NewController(client, engine, a.guard, a.budget, repair.Config{
			MaxRepairs:        2,
			PrimaryKeyword:    cfg.Validation.PrimaryKeyword,
			SecondaryKeywords: cfg.Validation.SecondaryKeywords,
		}, log.Named(logging.CategoryRepair))

		a.runner = pipeline.NewRunner(cfg, a.fetcher, controller,
			a.store, a.accepted, a.rejects, a.guard, a.budget, log)
	}

	ok = true
	return a, nil
}

func newClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (generation.Client, error) {
	switch cfg.Generation.Provider {
	case "gemini":
		return generation.NewGeminiClient(ctx, cfg.Generation, log.Named(logging.CategoryGenerate))
	case "mock":
		return nil, fmt.Errorf("the mock provider is only available to tests")
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}

// close releases everything openApp acquired, in reverse order.
func (a *app) close(log *zap.Logger) {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn("close evidence cache", zap.Error(err))
		}
	}
	if a.guard != nil {
		if err := a.guard.Close(); err != nil {
			log.Warn("close originality guard", zap.Error(err))
		}
	}
	if a.rejects != nil {
		if err := a.rejects.Close(); err != nil {
			log.Warn("close reject log", zap.Error(err))
		}
	}
	if a.accepted != nil {
		if err := a.accepted.Close(); err != nil {
			log.Warn("close accepted log", zap.Error(err))
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			log.Warn("release run lock", zap.Error(err))
		}
	}
}

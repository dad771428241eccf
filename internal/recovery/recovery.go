// Package recovery drives targeted passes over the reject log: grouping
// rejections by their bucketed code, probing evidence failures without
// spending generation budget, and re-running items with the retry
// ceiling enforced.
package recovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"copyforge/internal/catalog"
	"copyforge/internal/checkpoint"
	"copyforge/internal/config"
	"copyforge/internal/journal"
	"copyforge/internal/logging"
	"copyforge/internal/pipeline"
)

// Bucket is one error code's slice of the reject log.
type Bucket struct {
	Code  journal.Code `json:"code"`
	Count int          `json:"count"`
	Items []string     `json:"items"`
}

// Report groups reject records by code, newest record per item winning.
type Report struct {
	Buckets []Bucket `json:"buckets"`
	Total   int      `json:"total"`
}

// BuildReport classifies the reject log. Records are read in append
// order, so the last code seen for an item is its current one; items
// later marked done by a recovery pass are filtered by the caller via
// the checkpoint store.
func BuildReport(records []journal.RejectRecord) Report {
	latest := make(map[string]journal.Code, len(records))
	for _, rec := range records {
		latest[rec.ItemID] = rec.Code
	}

	byCode := make(map[journal.Code][]string)
	for id, code := range latest {
		byCode[code] = append(byCode[code], id)
	}

	var report Report
	for code, ids := range byCode {
		sort.Strings(ids)
		report.Buckets = append(report.Buckets, Bucket{Code: code, Count: len(ids), Items: ids})
		report.Total += len(ids)
	}
	sort.Slice(report.Buckets, func(i, j int) bool {
		return report.Buckets[i].Code < report.Buckets[j].Code
	})
	return report
}

// SelectItems resolves the rejected items in the requested buckets back
// to their catalog entries, skipping any already recovered to Done. An
// empty code set selects every recoverable bucket.
func SelectItems(report Report, codes []journal.Code, index map[string]catalog.WorkItem, store *checkpoint.Store) ([]catalog.WorkItem, error) {
	wanted := make(map[journal.Code]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}

	var out []catalog.WorkItem
	for _, bucket := range report.Buckets {
		if len(codes) > 0 && !wanted[bucket.Code] {
			continue
		}
		if len(codes) == 0 && !bucket.Code.Recoverable() {
			continue
		}
		for _, id := range bucket.Items {
			if e, ok := store.Get(id); ok && e.State == checkpoint.StateDone {
				continue
			}
			item, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("rejected item %s is not in the items file", id)
			}
			out = append(out, item)
		}
	}
	return out, nil
}

// ProbeResult is one item's evidence re-check.
type ProbeResult struct {
	ItemID    string       `json:"item_id"`
	Usable    bool         `json:"usable"`
	Code      journal.Code `json:"code,omitempty"`
	Blocks    int          `json:"blocks"`
	Chars     int          `json:"chars"`
	FetchFail bool         `json:"fetch_fail,omitempty"`
}

// Prober re-fetches and re-classifies evidence without any generation
// calls, so blocked and thin sources can be re-checked at zero spend.
type Prober struct {
	fetcher pipeline.Fetcher
	log     *zap.Logger
}

// NewProber builds a prober over the shared fetcher.
func NewProber(fetcher pipeline.Fetcher, log *zap.Logger) *Prober {
	return &Prober{fetcher: fetcher, log: log.Named(logging.CategoryRecovery)}
}

// Probe checks every item's source sequentially. Probe traffic is
// deliberately unpooled: it exists to answer "is the source usable now",
// not to race the sources.
func (p *Prober) Probe(ctx context.Context, items []catalog.WorkItem) ([]ProbeResult, error) {
	out := make([]ProbeResult, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res := ProbeResult{ItemID: item.ID}
		rec, err := p.fetcher.Fetch(ctx, item.SourceURL)
		if err != nil {
			res.FetchFail = true
			res.Code = journal.CodeEvidenceUnavailable
			p.log.Info("probe: fetch failed", zap.String("item", item.ID), zap.Error(err))
		} else {
			res.Blocks = rec.BlockCount
			res.Chars = rec.CharCount
			if code, bad := rec.Code(); bad {
				res.Code = code
			} else {
				res.Usable = true
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// Pass re-runs selected rejected items through the normal pipeline,
// enforcing the per-item retry ceiling. Items over the ceiling are
// parked as abandoned instead of being attempted.
type Pass struct {
	store   *checkpoint.Store
	rejects *journal.RejectLog
	runner  *pipeline.Runner
	cfg     config.RecoveryConfig
	log     *zap.Logger
}

// NewPass builds a recovery pass. The runner must be assembled by the
// caller with Override claims enabled (and relaxed thresholds when the
// pass asks for them).
func NewPass(store *checkpoint.Store, rejects *journal.RejectLog, runner *pipeline.Runner, cfg config.RecoveryConfig, log *zap.Logger) *Pass {
	return &Pass{
		store:   store,
		rejects: rejects,
		runner:  runner,
		cfg:     cfg,
		log:     log.Named(logging.CategoryRecovery),
	}
}

// Run bumps each candidate's retry count, parks those over the ceiling,
// and pushes the rest through the pipeline.
func (p *Pass) Run(ctx context.Context, items []catalog.WorkItem) (*pipeline.Summary, int, error) {
	var eligible []catalog.WorkItem
	parked := 0
	for _, item := range items {
		retries, err := p.store.IncRetry(item.ID)
		if err != nil {
			return nil, parked, err
		}
		if retries > p.cfg.RetryCeiling {
			parked++
			p.log.Warn("retry ceiling reached, parking item",
				zap.String("item", item.ID), zap.Int("retries", retries))
			if _, err := p.rejects.Append(journal.RejectRecord{
				ItemID:  item.ID,
				Code:    journal.CodeAbandoned,
				Message: fmt.Sprintf("parked after %d recovery attempts", retries),
			}); err != nil {
				return nil, parked, err
			}
			if err := p.store.MarkRejected(item.ID, journal.CodeAbandoned); err != nil {
				return nil, parked, err
			}
			continue
		}
		eligible = append(eligible, item)
	}

	if len(eligible) == 0 {
		p.log.Info("nothing eligible for recovery", zap.Int("parked", parked))
		return &pipeline.Summary{}, parked, nil
	}

	summary, err := p.runner.Run(ctx, eligible)
	return summary, parked, err
}

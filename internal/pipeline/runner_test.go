package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"copyforge/internal/budget"
	"copyforge/internal/catalog"
	"copyforge/internal/checkpoint"
	"copyforge/internal/config"
	"copyforge/internal/deck"
	"copyforge/internal/evidence"
	"copyforge/internal/generation"
	"copyforge/internal/journal"
	"copyforge/internal/originality"
	"copyforge/internal/repair"
	"copyforge/internal/validation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubFetcher serves canned records keyed by URL, no network involved.
type stubFetcher struct {
	records map[string]*evidence.Record
	errs    map[string]error
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (*evidence.Record, error) {
	if err, ok := s.errs[rawURL]; ok {
		return nil, err
	}
	if rec, ok := s.records[rawURL]; ok {
		return rec, nil
	}
	return nil, &evidence.FetchError{URL: rawURL, Code: journal.CodeEvidenceUnavailable}
}

func usableRecord() *evidence.Record {
	return &evidence.Record{
		Blocks:     []string{"A solid mug for daily coffee, holding twelve ounces of hot drink."},
		BlockCount: 6,
		CharCount:  900,
	}
}

func thinRecord() *evidence.Record {
	return &evidence.Record{BlockCount: 1, CharCount: 40, Flags: evidence.Flags{Thin: true}}
}

func passingResult() *generation.Result {
	return &generation.Result{Sections: deck.Deck{
		deck.KindOverview: {Kind: deck.KindOverview, Text: "A solid mug for daily coffee. It holds twelve ounces of hot drink. The glaze stays smooth for years of washing."},
		deck.KindDetails:  {Kind: deck.KindDetails, Text: "Stoneware body with a clear glaze and a comfortable handle for daily use at home."},
	}}
}

func failingResult() *generation.Result {
	r := passingResult()
	s := r.Sections[deck.KindOverview]
	s.Text = "This mug is guaranteed to keep coffee hot. It holds twelve ounces. The glaze stays smooth."
	r.Sections[deck.KindOverview] = s
	return r
}

func testItems(n int) []catalog.WorkItem {
	items := make([]catalog.WorkItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, catalog.WorkItem{
			ID:          string(rune('a' + i)),
			DisplayName: "Item",
			SourceURL:   "https://example.com/" + string(rune('a'+i)),
			ExistingFields: map[deck.SectionKind]string{
				deck.KindBenefits: "Keep it clean.\nUse it daily.",
				deck.KindHowToUse: "Rinse first.\nWash gently.",
				deck.KindFAQ:      "How big is it?\nAbout twelve ounces.",
			},
		})
	}
	return items
}

type harness struct {
	cfg      *config.Config
	runner   *Runner
	store    *checkpoint.Store
	accepted *journal.AcceptedLog
	rejects  *journal.RejectLog
	guard    *originality.Guard
	tracker  *budget.Tracker
	client   *generation.MockClient
}

func newHarness(t *testing.T, fetcher Fetcher, script ...generation.MockResponse) *harness {
	t.Helper()
	log := zap.NewNop()

	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.Pool.Concurrency = 2
	cfg.Originality.WindowSize = 10
	cfg.Originality.ReloadTail = 10
	cfg.Originality.RotateAbove = 100

	store, err := checkpoint.Open(cfg.CheckpointPath(), checkpoint.Options{
		LeaseTimeout: time.Hour, RunID: "test",
	}, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	accepted, err := journal.OpenAccepted(cfg.AcceptedPath())
	if err != nil {
		t.Fatalf("open accepted: %v", err)
	}
	t.Cleanup(func() { accepted.Close() })
	rejects, err := journal.OpenRejects(cfg.RejectsPath())
	if err != nil {
		t.Fatalf("open rejects: %v", err)
	}
	t.Cleanup(func() { rejects.Close() })
	guard, err := originality.Open(cfg.FingerprintPath(), cfg.Originality, log)
	if err != nil {
		t.Fatalf("open guard: %v", err)
	}
	t.Cleanup(func() { guard.Close() })

	tracker := budget.NewTracker(cfg.Budget, log)
	client := generation.NewMockClient(script...)

	engine := validation.NewEngine(validation.Thresholds{
		MeanSentenceMax:       100,
		SentenceStddevMax:     100,
		FAQOpenerThreshold:    100,
		MaxEmphasisPerSection: 5,
	}, log)
	controller := repair.NewController(client, engine, guard, tracker, repair.Config{MaxRepairs: 2}, log)
	runner := NewRunner(cfg, fetcher, controller, store, accepted, rejects, guard, tracker, log)

	return &harness{
		cfg: cfg, runner: runner, store: store, accepted: accepted,
		rejects: rejects, guard: guard, tracker: tracker, client: client,
	}
}

func TestRunnerAcceptsAndCheckpoints(t *testing.T) {
	items := testItems(3)
	fetcher := &stubFetcher{records: map[string]*evidence.Record{}}
	for _, item := range items {
		fetcher.records[item.SourceURL] = usableRecord()
	}
	h := newHarness(t, fetcher, generation.MockResponse{Result: passingResult()})

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Accepted != 3 || summary.Rejected != 0 {
		t.Fatalf("summary=%+v", summary)
	}

	recs, err := h.accepted.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("accepted records=%d", len(recs))
	}
	for _, rec := range recs {
		e, ok := h.store.Get(rec.ItemID)
		if !ok || e.State != checkpoint.StateDone || e.AcceptedSeq == nil {
			t.Fatalf("checkpoint for %s: %+v", rec.ItemID, e)
		}
		// Existing sections survive into the journal verbatim.
		if rec.Sections[deck.KindBenefits].PlainText() != "Keep it clean.\nUse it daily." {
			t.Fatalf("benefits lost in journal: %+v", rec.Sections[deck.KindBenefits])
		}
	}
	if h.guard.WindowSize() != 3 {
		t.Fatalf("guard window=%d", h.guard.WindowSize())
	}
}

func TestRunnerSecondRunSkipsDoneItems(t *testing.T) {
	items := testItems(2)
	fetcher := &stubFetcher{records: map[string]*evidence.Record{}}
	for _, item := range items {
		fetcher.records[item.SourceURL] = usableRecord()
	}
	h := newHarness(t, fetcher, generation.MockResponse{Result: passingResult()})

	if _, err := h.runner.Run(context.Background(), items); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := h.client.CallCount()

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Skipped != 2 || summary.Accepted != 0 {
		t.Fatalf("second run summary=%+v", summary)
	}
	if h.client.CallCount() != callsAfterFirst {
		t.Fatal("second run spent generation calls on done items")
	}
	if got := h.accepted.Len(); got != 2 {
		t.Fatalf("accepted log grew to %d", got)
	}
}

func TestRunnerRejectsUnusableEvidenceWithoutGenerating(t *testing.T) {
	items := testItems(2)
	fetcher := &stubFetcher{
		records: map[string]*evidence.Record{items[0].SourceURL: thinRecord()},
		errs:    map[string]error{items[1].SourceURL: &evidence.FetchError{URL: items[1].SourceURL, Code: journal.CodeEvidenceUnavailable}},
	}
	h := newHarness(t, fetcher, generation.MockResponse{Result: passingResult()})

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Rejected != 2 || summary.Accepted != 0 {
		t.Fatalf("summary=%+v", summary)
	}
	if summary.RejectCounts[journal.CodeThinEvidence] != 1 ||
		summary.RejectCounts[journal.CodeEvidenceUnavailable] != 1 {
		t.Fatalf("reject counts=%v", summary.RejectCounts)
	}
	if h.client.CallCount() != 0 {
		t.Fatalf("generation ran %d times on unusable evidence", h.client.CallCount())
	}
	if cost := h.tracker.Snapshot().CostSoFar; cost != 0 {
		t.Fatalf("cost=%v, want 0", cost)
	}

	recs, err := h.rejects.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll rejects: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("reject records=%d", len(recs))
	}
}

func TestRunnerGuardrailRejection(t *testing.T) {
	items := testItems(1)
	fetcher := &stubFetcher{records: map[string]*evidence.Record{items[0].SourceURL: usableRecord()}}
	h := newHarness(t, fetcher, generation.MockResponse{Result: failingResult()})

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Rejected != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	if summary.RejectCounts[journal.CodeGuardrailFailure] != 1 {
		t.Fatalf("reject counts=%v", summary.RejectCounts)
	}
	e, _ := h.store.Get(items[0].ID)
	if e.State != checkpoint.StateRejected || e.LastErrorCode != journal.CodeGuardrailFailure {
		t.Fatalf("checkpoint=%+v", e)
	}
}

func TestRunnerBudgetAbortStopsDispatch(t *testing.T) {
	items := testItems(8)
	fetcher := &stubFetcher{records: map[string]*evidence.Record{}}
	for _, item := range items {
		fetcher.records[item.SourceURL] = usableRecord()
	}
	h := newHarness(t, fetcher, generation.MockResponse{Result: passingResult()})
	h.client.PerCall = generation.Usage{InputTokens: 100, OutputTokens: 200, Cost: 1}

	// Cap below one call's cost: the first completed item trips it.
	h.cfg.Budget.Cap = 0.5
	tracker := budget.NewTracker(h.cfg.Budget, zap.NewNop())
	h.tracker = tracker
	// Rebuild the runner against the capped tracker.
	engine := validation.NewEngine(validation.Thresholds{
		MeanSentenceMax: 100, SentenceStddevMax: 100, FAQOpenerThreshold: 100, MaxEmphasisPerSection: 5,
	}, zap.NewNop())
	controller := repair.NewController(h.client, engine, h.guard, tracker, repair.Config{MaxRepairs: 2}, zap.NewNop())
	h.runner = NewRunner(h.cfg, fetcher, controller, h.store, h.accepted, h.rejects, h.guard, tracker, zap.NewNop())

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.BudgetAbort {
		t.Fatalf("budget abort not reported: %+v", summary)
	}
	// Pre-spend checks gate every generation call, so overshoot is at
	// most one call per in-flight worker (concurrency 2).
	if summary.Accepted > 2 {
		t.Fatalf("accepted=%d, overspend not contained", summary.Accepted)
	}
	if h.client.CallCount() > 2 {
		t.Fatalf("generation ran %d times past the cap", h.client.CallCount())
	}
	// Unprocessed items stay pending for the next run.
	counts := h.store.Counts()
	if counts[checkpoint.StatePending] == 0 {
		t.Fatalf("no items left pending: %v", counts)
	}
}

func TestRunnerMaxItemsBoundsDispatch(t *testing.T) {
	items := testItems(5)
	fetcher := &stubFetcher{records: map[string]*evidence.Record{}}
	for _, item := range items {
		fetcher.records[item.SourceURL] = usableRecord()
	}
	h := newHarness(t, fetcher, generation.MockResponse{Result: passingResult()})
	h.cfg.Pool.MaxItems = 2

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Accepted != 2 {
		t.Fatalf("accepted=%d, want 2", summary.Accepted)
	}
}

func TestRunnerReconcilesOrphanedAcceptedRecord(t *testing.T) {
	items := testItems(1)
	fetcher := &stubFetcher{records: map[string]*evidence.Record{items[0].SourceURL: usableRecord()}}
	h := newHarness(t, fetcher, generation.MockResponse{Result: passingResult()})

	// Simulate the crash window: record appended, checkpoint not marked.
	if _, err := h.accepted.Append(journal.AcceptedRecord{
		ItemID:   items[0].ID,
		Sections: passingResult().Sections,
		TierUsed: "primary",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The item was healed to done, never re-generated, never re-appended.
	if summary.Accepted != 0 || summary.Skipped != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	if h.client.CallCount() != 0 {
		t.Fatal("reconciled item was regenerated")
	}
	if got := h.accepted.Len(); got != 1 {
		t.Fatalf("accepted log has %d records, want 1", got)
	}
	e, _ := h.store.Get(items[0].ID)
	if e.State != checkpoint.StateDone {
		t.Fatalf("state=%s", e.State)
	}
}

func TestRunnerReplaysFingerprintLostAfterMarkDone(t *testing.T) {
	items := testItems(1)
	fetcher := &stubFetcher{records: map[string]*evidence.Record{items[0].SourceURL: usableRecord()}}
	h := newHarness(t, fetcher, generation.MockResponse{Result: passingResult()})

	// Simulate the other crash window: record appended and checkpoint
	// marked, fingerprint never committed.
	if err := h.store.Seed([]string{items[0].ID}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	seq, err := h.accepted.Append(journal.AcceptedRecord{
		ItemID:   items[0].ID,
		Sections: passingResult().Sections,
		TierUsed: "primary",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.store.MarkDone(items[0].ID, seq); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	summary, err := h.runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || h.client.CallCount() != 0 {
		t.Fatalf("summary=%+v calls=%d", summary, h.client.CallCount())
	}
	if h.guard.WindowSize() != 1 {
		t.Fatalf("guard window=%d, fingerprint not replayed", h.guard.WindowSize())
	}
	if _, tooSimilar := h.guard.Check(passingResult().Sections.Overview()); !tooSimilar {
		t.Fatal("replayed fingerprint does not gate identical copy")
	}

	// A second run must not duplicate the resident fingerprint.
	if _, err := h.runner.Run(context.Background(), items); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if h.guard.WindowSize() != 1 {
		t.Fatalf("guard window grew to %d on replayed run", h.guard.WindowSize())
	}
}

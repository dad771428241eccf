package recovery

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"copyforge/internal/catalog"
	"copyforge/internal/checkpoint"
	"copyforge/internal/config"
	"copyforge/internal/evidence"
	"copyforge/internal/journal"
)

func TestBuildReportGroupsByLatestCode(t *testing.T) {
	records := []journal.RejectRecord{
		{ItemID: "a", Code: journal.CodeThinEvidence},
		{ItemID: "b", Code: journal.CodeGuardrailFailure},
		{ItemID: "c", Code: journal.CodeThinEvidence},
		// Item a was retried later and failed differently; the newest
		// code wins.
		{ItemID: "a", Code: journal.CodeGuardrailFailure},
	}
	report := BuildReport(records)
	if report.Total != 3 {
		t.Fatalf("total=%d, want 3", report.Total)
	}

	byCode := make(map[journal.Code]Bucket)
	for _, b := range report.Buckets {
		byCode[b.Code] = b
	}
	if got := byCode[journal.CodeGuardrailFailure]; got.Count != 2 {
		t.Fatalf("guardrail bucket=%+v", got)
	}
	if got := byCode[journal.CodeThinEvidence]; got.Count != 1 || got.Items[0] != "c" {
		t.Fatalf("thin bucket=%+v", got)
	}
}

func testStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	s, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoint.json"),
		checkpoint.Options{RunID: "test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestSelectItemsFiltersBucketsAndDoneItems(t *testing.T) {
	store := testStore(t)
	if err := store.Seed([]string{"a", "b", "c", "d"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Item b was recovered by an earlier pass.
	if err := store.MarkDone("b", 0); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	report := BuildReport([]journal.RejectRecord{
		{ItemID: "a", Code: journal.CodeThinEvidence},
		{ItemID: "b", Code: journal.CodeThinEvidence},
		{ItemID: "c", Code: journal.CodeGuardrailFailure},
		{ItemID: "d", Code: journal.CodeAbandoned},
	})
	index := map[string]catalog.WorkItem{
		"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}, "d": {ID: "d"},
	}

	// Explicit bucket selection.
	items, err := SelectItems(report, []journal.Code{journal.CodeThinEvidence}, index, store)
	if err != nil {
		t.Fatalf("SelectItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Fatalf("items=%+v, want just a", items)
	}

	// Default selection takes every recoverable bucket, never abandoned.
	items, err = SelectItems(report, nil, index, store)
	if err != nil {
		t.Fatalf("SelectItems default: %v", err)
	}
	ids := make(map[string]bool)
	for _, it := range items {
		ids[it.ID] = true
	}
	if !ids["a"] || !ids["c"] || ids["b"] || ids["d"] {
		t.Fatalf("default selection=%v", ids)
	}
}

func TestSelectItemsUnknownItemErrors(t *testing.T) {
	store := testStore(t)
	if err := store.Seed([]string{"ghost"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	report := BuildReport([]journal.RejectRecord{{ItemID: "ghost", Code: journal.CodeThinEvidence}})
	if _, err := SelectItems(report, nil, map[string]catalog.WorkItem{}, store); err == nil {
		t.Fatal("missing catalog entry accepted")
	}
}

type scriptedFetcher struct {
	rec *evidence.Record
	err error
}

func (s *scriptedFetcher) Fetch(context.Context, string) (*evidence.Record, error) {
	return s.rec, s.err
}

func TestProbeClassifiesWithoutGeneration(t *testing.T) {
	items := []catalog.WorkItem{
		{ID: "ok", SourceURL: "https://example.com/ok"},
		{ID: "thin", SourceURL: "https://example.com/thin"},
	}

	okRec := &evidence.Record{BlockCount: 8, CharCount: 1200}
	p := NewProber(&scriptedFetcher{rec: okRec}, zap.NewNop())
	results, err := p.Probe(context.Background(), items[:1])
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !results[0].Usable || results[0].Blocks != 8 {
		t.Fatalf("probe result=%+v", results[0])
	}

	thinRec := &evidence.Record{BlockCount: 1, CharCount: 40, Flags: evidence.Flags{Thin: true}}
	p = NewProber(&scriptedFetcher{rec: thinRec}, zap.NewNop())
	results, err = p.Probe(context.Background(), items[1:])
	if err != nil {
		t.Fatalf("Probe thin: %v", err)
	}
	if results[0].Usable || results[0].Code != journal.CodeThinEvidence {
		t.Fatalf("thin probe result=%+v", results[0])
	}

	p = NewProber(&scriptedFetcher{err: &evidence.FetchError{URL: "x", Code: journal.CodeEvidenceUnavailable}}, zap.NewNop())
	results, err = p.Probe(context.Background(), items[:1])
	if err != nil {
		t.Fatalf("Probe fail: %v", err)
	}
	if !results[0].FetchFail || results[0].Code != journal.CodeEvidenceUnavailable {
		t.Fatalf("failed probe result=%+v", results[0])
	}
}

func TestPassParksItemsOverRetryCeiling(t *testing.T) {
	store := testStore(t)
	if err := store.Seed([]string{"worn", "fresh"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// "worn" has already burned the whole ceiling.
	for i := 0; i < 2; i++ {
		if _, err := store.IncRetry("worn"); err != nil {
			t.Fatalf("IncRetry: %v", err)
		}
	}

	rejects, err := journal.OpenRejects(filepath.Join(t.TempDir(), "rejects.jsonl"))
	if err != nil {
		t.Fatalf("OpenRejects: %v", err)
	}
	defer rejects.Close()

	cfg := config.RecoveryConfig{RetryCeiling: 2, RelaxCountFactor: 1.5, RelaxOverlapFactor: 0.67}
	// No runner needed: every eligible item is parked before dispatch.
	pass := NewPass(store, rejects, nil, cfg, zap.NewNop())

	summary, parked, err := pass.Run(context.Background(),
		[]catalog.WorkItem{{ID: "worn", SourceURL: "https://example.com/worn"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if parked != 1 || summary.Accepted != 0 {
		t.Fatalf("parked=%d summary=%+v", parked, summary)
	}

	e, _ := store.Get("worn")
	if e.State != checkpoint.StateRejected || e.LastErrorCode != journal.CodeAbandoned {
		t.Fatalf("worn entry=%+v", e)
	}
	recs, err := rejects.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 1 || recs[0].Code != journal.CodeAbandoned {
		t.Fatalf("reject records=%+v", recs)
	}
}

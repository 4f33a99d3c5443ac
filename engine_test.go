package searchcore

import (
	"testing"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/feed"
	"github.com/kartikbazzad/bunbase/searchcore/internal/match"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
	"github.com/kartikbazzad/bunbase/searchcore/rules"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New()
	var err error
	s, err = s.AddAttributeField(schema.AttributeField{
		Name: "price", DataType: schema.DataTypeDouble, CollectionType: schema.CollectionSingle,
	})
	if err != nil {
		t.Fatalf("AddAttributeField: %v", err)
	}
	s, err = s.AddAttributeField(schema.AttributeField{
		Name: "title", DataType: schema.DataTypeString, CollectionType: schema.CollectionSingle,
	})
	if err != nil {
		t.Fatalf("AddAttributeField: %v", err)
	}
	return s
}

func openTestEngine(t *testing.T, dir string, mutate func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions(dir)
	opts.Schema = testSchema(t)
	opts.StartMaintenance = false
	opts.Match.NumThreads = 2
	if mutate != nil {
		mutate(&opts)
	}
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func mustPut(t *testing.T, e *Engine, id string, fields map[string]any, ts int64) {
	t.Helper()
	if r := e.Put(id, fields, ts); r.Result != feed.ResultNone {
		t.Fatalf("Put %s: %v", id, r.Result)
	}
}

func TestPutSearchRoundTrip(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), nil)
	defer e.Close()

	mustPut(t, e, "doc::1", map[string]any{"title": "red bicycle", "price": 10.0}, 100)
	mustPut(t, e, "doc::2", map[string]any{"title": "blue bicycle", "price": 20.0}, 100)
	mustPut(t, e, "doc::3", map[string]any{"title": "red wagon", "price": 30.0}, 100)

	if err := e.RegisterRankProfile("byprice", "doc.price", "", 0); err != nil {
		t.Fatalf("RegisterRankProfile: %v", err)
	}

	res, err := e.Search(match.Request{
		Query:       map[string]any{"term": map[string]any{"field": "title", "value": "bicycle"}},
		RankProfile: "byprice",
		Hits:        10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalHits != 2 {
		t.Fatalf("expected 2 bicycles, got %d", res.TotalHits)
	}
	// Ranked by price, strongest first: the blue bicycle at 20.0 wins.
	docs := e.Docsums(res.SessionID, []attribute.LID{res.Hits[0].LID})
	if len(docs) != 1 || docs[0]["title"] != "blue bicycle" {
		t.Fatalf("expected blue bicycle first, got %v", docs)
	}
}

func TestSearchPhraseAndBoolean(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), nil)
	defer e.Close()

	mustPut(t, e, "a", map[string]any{"title": "quick brown fox", "price": 1.0}, 1)
	mustPut(t, e, "b", map[string]any{"title": "brown quick fox", "price": 1.0}, 1)

	res, err := e.Search(match.Request{
		Query: map[string]any{"phrase": map[string]any{
			"field": "title", "terms": []any{"quick", "brown"},
		}},
		Hits: 10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalHits != 1 {
		t.Fatalf("phrase should match exactly one doc, got %d", res.TotalHits)
	}

	res, err = e.Search(match.Request{
		Query: map[string]any{"andnot": []any{
			map[string]any{"title": "fox"},
			map[string]any{"title": "quick"},
		}},
		Hits: 10,
	})
	if err != nil {
		t.Fatalf("Search andnot: %v", err)
	}
	if res.TotalHits != 0 {
		t.Fatalf("andnot should exclude both docs, got %d", res.TotalHits)
	}
}

func TestWriteFilterRejectsPutNotRemove(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), func(o *Options) {
		o.WriteFilterExpr = "disk_usage_ratio < 0.9"
		o.ResourceState = func() rules.ResourceState {
			return rules.ResourceState{DiskUsageRatio: 0.95}
		}
	})
	defer e.Close()

	if r := e.Put("doc::full", map[string]any{"price": 1.0}, 1); r.Result != feed.ResultResourceExhausted {
		t.Fatalf("expected RESOURCE_EXHAUSTED, got %v", r.Result)
	}
	if r := e.Remove("doc::full", 2); r.Result != feed.ResultNone {
		t.Fatalf("removes must never be rejected, got %v", r.Result)
	}
}

func TestReplayRestoresStateAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	e := openTestEngine(t, dir, nil)
	mustPut(t, e, "doc::1", map[string]any{"title": "persistent fox", "price": 5.0}, 1)
	mustPut(t, e, "doc::2", map[string]any{"title": "fleeting crow", "price": 6.0}, 1)
	if r := e.Remove("doc::2", 2); r.Result != feed.ResultNone {
		t.Fatalf("Remove: %v", r.Result)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestEngine(t, dir, nil)
	defer reopened.Close()

	res, err := reopened.Search(match.Request{
		Query: map[string]any{"title": "fox"},
		Hits:  10,
	})
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if res.TotalHits != 1 {
		t.Fatalf("expected the fox to survive reopen, got %d hits", res.TotalHits)
	}

	res, err = reopened.Search(match.Request{
		Query: map[string]any{"title": "crow"},
		Hits:  10,
	})
	if err != nil {
		t.Fatalf("Search crow: %v", err)
	}
	if res.TotalHits != 0 {
		t.Fatalf("removed doc must stay removed after replay, got %d hits", res.TotalHits)
	}
}

func TestRemoveWhereSelection(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), nil)
	defer e.Close()

	mustPut(t, e, "cheap", map[string]any{"title": "thing", "price": 5.0}, 1)
	mustPut(t, e, "costly", map[string]any{"title": "thing", "price": 500.0}, 1)

	if r := e.RemoveWhere("doc.price > 100.0"); r.Result != feed.ResultNone {
		t.Fatalf("RemoveWhere: %v", r.Result)
	}

	res, err := e.Search(match.Request{Query: map[string]any{"title": "thing"}, Hits: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalHits != 1 {
		t.Fatalf("expected 1 survivor, got %d", res.TotalHits)
	}
}

func TestRangeSearchUsesDictionaryOrder(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), nil)
	defer e.Close()

	mustPut(t, e, "d1", map[string]any{"title": "alpha", "price": 1.0}, 1)
	mustPut(t, e, "d2", map[string]any{"title": "beta", "price": 1.0}, 1)
	mustPut(t, e, "d3", map[string]any{"title": "delta", "price": 1.0}, 1)
	mustPut(t, e, "d4", map[string]any{"title": "omega", "price": 1.0}, 1)

	hits := e.RangeSearch("title", "alpha", "delta", 2)
	if len(hits) != 2 {
		t.Fatalf("rangeLimit=+2 should cap at 2 hits, got %d", len(hits))
	}
	all := e.RangeSearch("title", "alpha", "omega", 0)
	if len(all) != 4 {
		t.Fatalf("unlimited range should find all 4, got %d", len(all))
	}
	if n := e.ApproximateHits("title", "alpha"); n != 1 {
		t.Fatalf("ApproximateHits(alpha) = %d", n)
	}
}

func TestReconfigureRecordsRemovedFields(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), nil)
	defer e.Close()

	mustPut(t, e, "doc::1", map[string]any{"title": "keeper", "price": 1.0}, 1)

	// New schema drops "price"; the engine must keep serving and record the
	// dropped field for later wiping.
	next, err := schema.New().AddAttributeField(schema.AttributeField{
		Name: "title", DataType: schema.DataTypeString, CollectionType: schema.CollectionSingle,
	})
	if err != nil {
		t.Fatalf("AddAttributeField: %v", err)
	}
	if err := e.Reconfigure(next); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	if _, ok := e.triad.Ready.Attrs.Get("price"); ok {
		t.Fatal("price attribute should be gone after reconfigure")
	}
	if _, ok := e.triad.Ready.Attrs.Get("title"); !ok {
		t.Fatal("title attribute should survive reconfigure")
	}

	res, err := e.Search(match.Request{Query: map[string]any{"title": "keeper"}, Hits: 10})
	if err != nil {
		t.Fatalf("Search after reconfigure: %v", err)
	}
	if res.TotalHits != 1 {
		t.Fatalf("expected the doc to stay searchable, got %d", res.TotalHits)
	}
}

func TestFlushRecordsWatermark(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), nil)
	defer e.Close()

	mustPut(t, e, "doc::1", map[string]any{"title": "x", "price": 1.0}, 1)
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Flushing twice at the same serial is idempotent.
	if err := e.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), nil)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err == nil {
		t.Fatal("second Close should report the engine closed")
	}
}

func TestBoltBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, func(o *Options) { o.TLSBackend = TLSBackendBolt })
	mustPut(t, e, "doc::1", map[string]any{"title": "bolted", "price": 1.0}, 1)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestEngine(t, dir, func(o *Options) { o.TLSBackend = TLSBackendBolt })
	defer reopened.Close()
	res, err := reopened.Search(match.Request{Query: map[string]any{"title": "bolted"}, Hits: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalHits != 1 {
		t.Fatalf("expected doc to replay from bolt, got %d", res.TotalHits)
	}
}

package match

import (
	"math"
	"testing"
	"time"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/grouping"
	"github.com/kartikbazzad/bunbase/searchcore/internal/query"
	"github.com/kartikbazzad/bunbase/searchcore/rules"
)

type fakeSearchView struct {
	docs  map[attribute.LID]map[string]any
	hits  map[string]query.HitList
	limit uint32
}

func (v *fakeSearchView) TermHits(field, term string) query.HitList {
	return v.hits[field+":"+term]
}

func (v *fakeSearchView) DocFields(lid attribute.LID) map[string]any {
	if d, ok := v.docs[lid]; ok {
		return d
	}
	return map[string]any{}
}

func (v *fakeSearchView) CommittedDocIdLimit() uint32 { return v.limit }

// fiveDocView holds docs at lids 1..5 where "lid" mirrors the doc id and
// every doc carries the term hit the queries below look up.
func fiveDocView() *fakeSearchView {
	v := &fakeSearchView{
		docs:  make(map[attribute.LID]map[string]any),
		hits:  make(map[string]query.HitList),
		limit: 6,
	}
	var hl query.HitList
	for lid := uint32(1); lid <= 5; lid++ {
		v.docs[attribute.LID(lid)] = map[string]any{"lid": float64(lid)}
		hl = append(hl, query.Hit{DocID: lid})
	}
	v.hits["body:match"] = hl
	return v
}

func profiles(t *testing.T) *rules.ProfileRegistry {
	t.Helper()
	reg := rules.NewProfileRegistry()
	if err := reg.Register("default", "doc.lid", "", math.Inf(-1)); err != nil {
		t.Fatalf("Register default: %v", err)
	}
	if err := reg.Register("twophase", "doc.lid", "0.0 - doc.lid", math.Inf(-1)); err != nil {
		t.Fatalf("Register twophase: %v", err)
	}
	return reg
}

func termQuery() map[string]any {
	return map[string]any{"term": map[string]any{"field": "body", "value": "match"}}
}

func TestSecondPhaseReordersHeap(t *testing.T) {
	// First-phase identity, second-phase score = -lid, heap size 3 over 5
	// matching docs: merged drain order is ascending by final score, so the
	// re-ranked top 3 reads [5 4 3].
	view := fiveDocView()
	prof, _ := profiles(t).Get("twophase")

	candidates := []attribute.LID{1, 2, 3, 4, 5}
	scheduler := NewDocidRangeScheduler(attribute.LID(len(candidates)), 2)
	doom := NewDoom(time.Now(), time.Minute, time.Minute)

	threads := []*MatchThread{
		NewMatchThread(0, candidates, scheduler, view.DocFields, prof, 3, doom),
		NewMatchThread(1, candidates, scheduler, view.DocFields, prof, 3, doom),
	}
	merged := RunQuery(threads, 3, NewDualMergeDirector(0, 3))

	if len(merged) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(merged))
	}
	want := []attribute.LID{5, 4, 3}
	for i, h := range merged {
		if h.LID != want[i] {
			t.Fatalf("position %d: expected lid %d, got %d (hits: %v)", i, want[i], h.LID, merged)
		}
	}
}

func TestSearchReturnsStrongestFirst(t *testing.T) {
	m := NewMatcher(fiveDocView(), profiles(t), DefaultConfig())

	res, err := m.Search(Request{Query: termQuery(), Hits: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalHits != 5 {
		t.Fatalf("expected 5 total hits, got %d", res.TotalHits)
	}
	want := []attribute.LID{5, 4, 3}
	for i, h := range res.Hits {
		if h.LID != want[i] {
			t.Fatalf("position %d: expected lid %d, got %d", i, want[i], h.LID)
		}
	}
	if res.SessionID == "" {
		t.Fatal("expected a session id")
	}
}

func TestSearchPagingWindow(t *testing.T) {
	m := NewMatcher(fiveDocView(), profiles(t), DefaultConfig())

	res, err := m.Search(Request{Query: termQuery(), Offset: 2, Hits: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []attribute.LID{3, 2}
	if len(res.Hits) != 2 || res.Hits[0].LID != want[0] || res.Hits[1].LID != want[1] {
		t.Fatalf("expected lids %v, got %v", want, res.Hits)
	}
}

func TestSearchSessionContinuation(t *testing.T) {
	m := NewMatcher(fiveDocView(), profiles(t), DefaultConfig())

	first, err := m.Search(Request{Query: termQuery(), Hits: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Second page served from the cached session, no re-match.
	second, err := m.Search(Request{SessionID: first.SessionID, Offset: 2, Hits: 2})
	if err != nil {
		t.Fatalf("Search session: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected same session id")
	}
	if len(second.Hits) != 2 || second.Hits[0].LID != 3 || second.Hits[1].LID != 2 {
		t.Fatalf("unexpected second page: %v", second.Hits)
	}
}

func TestSearchSortSpecOverridesScoreOrder(t *testing.T) {
	view := fiveDocView()
	for lid, doc := range view.docs {
		doc["inverse"] = float64(100 - lid)
	}
	m := NewMatcher(view, profiles(t), DefaultConfig())

	res, err := m.Search(Request{Query: termQuery(), SortSpec: "+inverse", Hits: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []attribute.LID{5, 4, 3, 2, 1}
	for i, h := range res.Hits {
		if h.LID != want[i] {
			t.Fatalf("position %d: expected lid %d, got %d", i, want[i], h.LID)
		}
	}
}

func TestMatchPhaseLimiterTruncates(t *testing.T) {
	m := NewMatcher(fiveDocView(), profiles(t), DefaultConfig())

	res, err := m.Search(Request{Query: termQuery(), Hits: 5, MatchPhaseLimit: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Limited {
		t.Fatal("expected the match-phase limiter to trip")
	}
	if res.TotalHits != 5 {
		t.Fatalf("TotalHits must count pre-limit matches, got %d", res.TotalHits)
	}
	if len(res.Hits) != 3 {
		t.Fatalf("expected 3 ranked hits after limiting, got %d", len(res.Hits))
	}
}

func TestSearchUnknownProfileFails(t *testing.T) {
	m := NewMatcher(fiveDocView(), profiles(t), DefaultConfig())
	if _, err := m.Search(Request{Query: termQuery(), RankProfile: "nope"}); err == nil {
		t.Fatal("expected error for unknown rank profile")
	}
}

func TestDocsumsVisitSortedOrder(t *testing.T) {
	m := NewMatcher(fiveDocView(), profiles(t), DefaultConfig())
	out := m.Docsums("", []attribute.LID{4, 1, 3})
	if len(out) != 3 {
		t.Fatalf("expected 3 docsums, got %d", len(out))
	}
	if out[0]["lid"] != float64(1) || out[1]["lid"] != float64(3) || out[2]["lid"] != float64(4) {
		t.Fatalf("docsums not in ascending lid order: %v", out)
	}
}

func TestRankDropLimitDropsWeakHits(t *testing.T) {
	reg := rules.NewProfileRegistry()
	if err := reg.Register("default", "doc.lid", "", 3.0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m := NewMatcher(fiveDocView(), reg, DefaultConfig())

	res, err := m.Search(Request{Query: termQuery(), Hits: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Scores 1..5 with drop limit 3.0: only 4 and 5 clear it.
	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits above the drop limit, got %d: %v", len(res.Hits), res.Hits)
	}
}

func TestSearchCollectsGroups(t *testing.T) {
	view := fiveDocView()
	for lid, doc := range view.docs {
		parity := "even"
		if lid%2 == 1 {
			parity = "odd"
		}
		doc["parity"] = parity
	}
	m := NewMatcher(view, profiles(t), DefaultConfig())

	sel, err := grouping.NewSelector("doc.parity")
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	spec := &grouping.Spec{Levels: []grouping.Level{{
		Selector:  sel,
		Template:  []grouping.Aggregator{grouping.NewCountAggregator()},
		Precision: 10,
	}}}

	res, err := m.Search(Request{Query: termQuery(), Hits: 5, Grouping: spec})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("expected odd/even groups, got %d", len(res.Groups))
	}
}

func TestHitCollectorKeepsTopK(t *testing.T) {
	c := NewHitCollector(3)
	for lid := uint32(1); lid <= 5; lid++ {
		c.Add(Hit{LID: attribute.LID(lid), Score: float64(lid)})
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 kept hits, got %d", c.Len())
	}
	if weakest, ok := c.Peek(); !ok || weakest != 3 {
		t.Fatalf("expected weakest kept score 3, got %v", weakest)
	}
	drained := c.Results()
	if len(drained) != 3 || drained[0].Score != 3 || drained[2].Score != 5 {
		t.Fatalf("expected ascending drain [3 4 5], got %v", drained)
	}
}

func TestSchedulerShareRangeSplitsTail(t *testing.T) {
	s := NewDocidRangeScheduler(100, 40)
	r, ok := s.Take()
	if !ok || r.Low != 0 || r.High != 40 {
		t.Fatalf("unexpected first range %+v", r)
	}
	keep, stolen := ShareRange(r)
	if keep.High != stolen.Low || stolen.High != 40 {
		t.Fatalf("bad split: keep=%+v stolen=%+v", keep, stolen)
	}
	if _, ok := s.Take(); !ok {
		t.Fatal("scheduler should still have ranges")
	}
}

func TestCommunicatorRendezvousReduces(t *testing.T) {
	c := NewCommunicator(3)
	results := make(chan any, 3)
	for i := 1; i <= 3; i++ {
		go func() {
			results <- c.Rendezvous(i, func(values []any) any {
				sum := 0
				for _, v := range values {
					sum += v.(int)
				}
				return sum
			})
		}()
	}
	for i := 0; i < 3; i++ {
		if got := <-results; got.(int) != 6 {
			t.Fatalf("expected every thread to see 6, got %v", got)
		}
	}
}

func TestSessionCacheExpiry(t *testing.T) {
	cache := NewSessionCache(time.Minute)
	now := time.Now()
	id := cache.Put(now, []Hit{{LID: 1, Score: 1}})

	if _, ok := cache.Get(now.Add(30*time.Second), id); !ok {
		t.Fatal("session should still be live")
	}
	if _, ok := cache.Get(now.Add(2*time.Minute), id); ok {
		t.Fatal("session should have expired")
	}
	if n := cache.PruneExpired(now.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 pruned session, got %d", n)
	}
}

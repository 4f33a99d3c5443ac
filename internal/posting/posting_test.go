package posting

import (
	"reflect"
	"testing"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
)

func lids(vs ...int) []attribute.LID {
	out := make([]attribute.LID, len(vs))
	for i, v := range vs {
		out[i] = attribute.LID(v)
	}
	return out
}

func TestChooseStrategySmallListStaysArray(t *testing.T) {
	if s := ChooseStrategy(5, 1000); s != StrategyArray {
		t.Fatalf("expected array strategy, got %v", s)
	}
}

func TestChooseStrategyDenseListUsesBitvector(t *testing.T) {
	if s := ChooseStrategy(200, 1000); s != StrategyBitvector {
		t.Fatalf("expected bitvector strategy, got %v", s)
	}
}

func TestListContainsWorksForArrayAndBitvector(t *testing.T) {
	small := newList(lids(3, 1, 2), 1000)
	if !small.Contains(2) || small.Contains(9) {
		t.Fatalf("array-backed Contains wrong")
	}

	denseDocs := make([]attribute.LID, 40)
	for i := range denseDocs {
		denseDocs[i] = attribute.LID(i + 1)
	}
	dense := newList(denseDocs, 50)
	if dense.Strategy != StrategyBitvector {
		t.Fatalf("expected bitvector for dense list, got %v", dense.Strategy)
	}
	if !dense.Contains(5) || dense.Contains(99) {
		t.Fatalf("bitvector-backed Contains wrong")
	}
}

func TestIteratorWalksAscending(t *testing.T) {
	l := newList(lids(5, 1, 3), 1000)
	it := l.Iterator()
	var got []attribute.LID
	for {
		d, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, d)
	}
	if !reflect.DeepEqual(got, lids(1, 3, 5)) {
		t.Fatalf("got %v", got)
	}
}

// TestRangeQueryWithPositiveRangeLimit is Scenario S6: dictionary has
// {7:[d1], 17:[d2,d3], 27:[d4,d5,d6], 37:[d7]}; range [7,37] with
// rangeLimit=+3 returns the first 3 hits from the low side: d1,d2,d3.
func TestRangeQueryWithPositiveRangeLimit(t *testing.T) {
	d := NewDictionary(10)
	d.Index("07", lids(1))
	d.Index("17", lids(2, 3))
	d.Index("27", lids(4, 5, 6))
	d.Index("37", lids(7))

	got := d.RangeQuery("07", "37", 3, nil)
	want := lids(1, 2, 3)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRangeQueryWithNegativeRangeLimitTakesHighSide(t *testing.T) {
	d := NewDictionary(10)
	d.Index("07", lids(1))
	d.Index("17", lids(2, 3))
	d.Index("27", lids(4, 5, 6))
	d.Index("37", lids(7))

	got := d.RangeQuery("07", "37", -2, nil)
	want := lids(6, 7)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRangeQueryAppliesDiversityCap(t *testing.T) {
	d := NewDictionary(10)
	d.Index("a", lids(1, 2, 3))
	d.Index("b", lids(4, 5))

	groups := map[attribute.LID]string{1: "x", 2: "x", 3: "y", 4: "x", 5: "y"}
	div := &Diversity{GroupOf: func(l attribute.LID) string { return groups[l] }, MaxPerGroup: 1}

	got := d.RangeQuery("a", "b", 0, div)
	if len(got) != 2 {
		t.Fatalf("expected one hit per group, got %v", got)
	}
}

func TestApproximateHitsReturnsListLength(t *testing.T) {
	d := NewDictionary(10)
	d.Index("term", lids(1, 2, 3))
	if d.ApproximateHits("term") != 3 {
		t.Fatalf("expected 3 approximate hits")
	}
	if d.ApproximateHits("missing") != 0 {
		t.Fatalf("expected 0 for unknown term")
	}
}

func TestCostModelPrefersPostingListWhenCheaper(t *testing.T) {
	c := CostModel{FilterUnitCost: 1, PostingUnitCost: 1}
	if !c.UsePostingList(1000, 5) {
		t.Fatalf("expected posting list to win for a small approxHits against a large numValues")
	}
	if c.UsePostingList(5, 1000) {
		t.Fatalf("expected filter to win when approxHits dwarfs numValues")
	}
}

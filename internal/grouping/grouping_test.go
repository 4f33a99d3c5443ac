package grouping

import "testing"

func mustSelector(t *testing.T, expr string) *Selector {
	t.Helper()
	s, err := NewSelector(expr)
	if err != nil {
		t.Fatalf("compile selector %q: %v", expr, err)
	}
	return s
}

func TestCollectSingleLevel(t *testing.T) {
	spec := &Spec{
		Levels: []Level{
			{
				Selector: mustSelector(t, `doc["category"]`),
				Template: []Aggregator{NewCountAggregator(), NewSumAggregator("price")},
			},
		},
	}
	result := NewResult(spec)
	docs := []map[string]any{
		{"category": "books", "price": 10.0},
		{"category": "books", "price": 20.0},
		{"category": "toys", "price": 5.0},
	}
	for _, d := range docs {
		if err := result.Collect(d, 0); err != nil {
			t.Fatalf("collect: %v", err)
		}
	}

	groups := result.PostMerge()
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	byKey := map[any]*Group{}
	for _, g := range groups {
		byKey[g.Key] = g
	}
	books := byKey["books"]
	if books.Aggregates[0].Result().(int64) != 2 {
		t.Errorf("expected books count 2, got %v", books.Aggregates[0].Result())
	}
	if books.Aggregates[1].Result().(float64) != 30.0 {
		t.Errorf("expected books sum 30, got %v", books.Aggregates[1].Result())
	}
}

func TestCollectTwoLevelsAndOrderBy(t *testing.T) {
	spec := &Spec{
		Levels: []Level{
			{
				Selector: mustSelector(t, `doc["category"]`),
				Template: []Aggregator{NewCountAggregator()},
			},
			{
				Selector:  mustSelector(t, `doc["brand"]`),
				Template:  []Aggregator{NewCountAggregator()},
				OrderBy:   []OrderTerm{{Index: 0, Descending: true}},
				Precision: 1,
			},
		},
	}
	result := NewResult(spec)
	docs := []map[string]any{
		{"category": "books", "brand": "A"},
		{"category": "books", "brand": "A"},
		{"category": "books", "brand": "B"},
	}
	for _, d := range docs {
		if err := result.Collect(d, 0); err != nil {
			t.Fatalf("collect: %v", err)
		}
	}

	groups := result.PostMerge()
	books := groups[0]
	if len(books.Children) != 1 {
		t.Fatalf("expected precision truncation to 1 child, got %d", len(books.Children))
	}
	if _, ok := books.Children["A"]; !ok {
		t.Errorf("expected brand A (count 2) to survive precision=1 over brand B (count 1)")
	}
}

func TestMergeAcrossShards(t *testing.T) {
	spec := &Spec{
		Levels: []Level{
			{Selector: mustSelector(t, `doc["category"]`), Template: []Aggregator{NewCountAggregator()}},
		},
	}

	shard1 := NewResult(spec)
	shard1.Collect(map[string]any{"category": "books"}, 0)
	shard2 := NewResult(spec)
	shard2.Collect(map[string]any{"category": "books"}, 0)
	shard2.Collect(map[string]any{"category": "toys"}, 0)

	shard1.Merge(shard2)
	groups := shard1.PostMerge()
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups after merge, got %d", len(groups))
	}
	for _, g := range groups {
		if g.Key == "books" && g.Aggregates[0].Result().(int64) != 2 {
			t.Errorf("expected merged books count 2, got %v", g.Aggregates[0].Result())
		}
	}
}

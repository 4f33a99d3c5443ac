package query

import (
	"testing"
)

func resolver(hits map[string]HitList) TermResolver {
	return func(field, term string) HitList {
		return hits[field+":"+term]
	}
}

func TestParseImplicitTerm(t *testing.T) {
	node, err := ParseRequest(map[string]interface{}{"title": "engine"})
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if node.Kind != KindTerm || node.Field != "title" || node.Term != "engine" {
		t.Fatalf("unexpected node: %+v", node)
	}
}

func TestParseAndOfTerms(t *testing.T) {
	node, err := ParseRequest(map[string]interface{}{
		"and": []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"field": "title", "value": "engine"}},
			map[string]interface{}{"term": map[string]interface{}{"field": "body", "value": "search"}},
		},
	})
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if node.Kind != KindAnd || len(node.Children) != 2 {
		t.Fatalf("expected AND with 2 children, got %+v", node)
	}
	fields := node.Fields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 distinct fields, got %v", fields)
	}
}

func TestParsePhrase(t *testing.T) {
	node, err := ParseRequest(map[string]interface{}{
		"phrase": map[string]interface{}{"field": "title", "terms": []interface{}{"search", "engine"}},
	})
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if node.Kind != KindPhrase || len(node.Children) != 2 {
		t.Fatalf("expected PHRASE with 2 children, got %+v", node)
	}
}

func TestParseWeightedSetResolvesIntoOrAbsorption(t *testing.T) {
	req, err := ParseRequest(map[string]interface{}{
		"or": []interface{}{
			map[string]interface{}{"weightedset": map[string]interface{}{
				"field": "tags", "terms": []interface{}{"a", "b"},
			}},
			map[string]interface{}{"title": "x"},
		},
	})
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	tree := Resolve(req, resolver(map[string]HitList{
		"tags:a":  {{DocID: 1}},
		"tags:b":  {{DocID: 2}},
		"title:x": {{DocID: 3}},
	}))
	// The weighted set's terms are hoisted straight into the OR.
	if tree.Kind != KindOr || len(tree.Children) != 3 {
		t.Fatalf("expected OR with 3 absorbed children, got kind=%v children=%d", tree.Kind, len(tree.Children))
	}
	got := Evaluate(tree, []uint32{1, 2, 3})
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %v", got)
	}
}

func TestParseNearRequiresDistance(t *testing.T) {
	_, err := ParseRequest(map[string]interface{}{
		"near": map[string]interface{}{"field": "title", "terms": []interface{}{"a", "b"}},
	})
	if err == nil {
		t.Fatal("expected error for near without distance")
	}
}

func TestParseRejectsUnknownShape(t *testing.T) {
	if _, err := ParseRequest(map[string]interface{}{"and": "not-a-list"}); err == nil {
		t.Fatal("expected error for and with non-list value")
	}
	if _, err := ParseRequest(map[string]interface{}{"term": map[string]interface{}{"value": 1}}); err == nil {
		t.Fatal("expected error for term without field")
	}
	if _, err := ParseRequest(map[string]interface{}{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestResolveEvaluates(t *testing.T) {
	req, err := ParseRequest(map[string]interface{}{
		"andnot": []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"field": "a", "value": "x"}},
			map[string]interface{}{"term": map[string]interface{}{"field": "b", "value": "y"}},
		},
	})
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}

	tree := Resolve(req, resolver(map[string]HitList{
		"a:x": {{DocID: 1}, {DocID: 2}, {DocID: 3}},
		"b:y": {{DocID: 2}},
	}))
	got := Evaluate(tree, []uint32{1, 2, 3, 4})
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("expected [1 3], got %v", got)
	}
}

func TestResolveFlattensNestedAnd(t *testing.T) {
	req, err := ParseRequest(map[string]interface{}{
		"and": []interface{}{
			map[string]interface{}{"and": []interface{}{
				map[string]interface{}{"a": "x"},
				map[string]interface{}{"b": "y"},
			}},
			map[string]interface{}{"c": "z"},
		},
	})
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	tree := Resolve(req, resolver(map[string]HitList{
		"a:x": {{DocID: 1}},
		"b:y": {{DocID: 1}},
		"c:z": {{DocID: 1}},
	}))
	if tree.Kind != KindAnd || len(tree.Children) != 3 {
		t.Fatalf("expected flattened AND with 3 children, got kind=%v children=%d", tree.Kind, len(tree.Children))
	}
}

func TestParseSortSpec(t *testing.T) {
	keys, err := ParseSortSpec("+price -rating name")
	if err != nil {
		t.Fatalf("ParseSortSpec: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	if keys[0].Field != "price" || keys[0].Descending {
		t.Errorf("key 0: %+v", keys[0])
	}
	if keys[1].Field != "rating" || !keys[1].Descending {
		t.Errorf("key 1: %+v", keys[1])
	}
	if keys[2].Field != "name" || keys[2].Descending {
		t.Errorf("key 2: %+v", keys[2])
	}

	if _, err := ParseSortSpec("price -"); err == nil {
		t.Fatal("expected error for empty field name")
	}
}

func TestCompareByKeys(t *testing.T) {
	a := map[string]interface{}{"price": 10.0, "name": "alpha"}
	b := map[string]interface{}{"price": 10.0, "name": "beta"}

	keys, _ := ParseSortSpec("price name")
	if c := CompareByKeys(a, b, keys); c >= 0 {
		t.Fatalf("expected a < b on tiebreak name, got %d", c)
	}

	desc, _ := ParseSortSpec("-name")
	if c := CompareByKeys(a, b, desc); c <= 0 {
		t.Fatalf("expected a > b on descending name, got %d", c)
	}

	if c := CompareByKeys(a, a, keys); c != 0 {
		t.Fatalf("expected equal, got %d", c)
	}
}

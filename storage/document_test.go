package storage

import "testing"

func TestDocumentRoundTrip(t *testing.T) {
	doc := Document{
		"title": "search engine",
		"price": 30,
		"tags":  []interface{}{"a", "b"},
	}

	data, err := doc.Serialize()
	if err != nil {
		t.Fatalf("Failed to serialize document: %v", err)
	}

	doc2, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Failed to deserialize document: %v", err)
	}

	if doc2["title"] != "search engine" {
		t.Errorf("Expected title 'search engine', got %v", doc2["title"])
	}
	if doc2["price"].(float64) != 30 {
		t.Errorf("Expected price 30, got %v", doc2["price"])
	}
}

func TestDocumentTypedAccess(t *testing.T) {
	doc := Document{"title": "x", "price": int32(42), "ratio": 0.5}

	if s, ok := doc.GetString("title"); !ok || s != "x" {
		t.Errorf("GetString(title) = %q, %v", s, ok)
	}
	if _, ok := doc.GetString("price"); ok {
		t.Error("GetString(price) should fail for a number")
	}
	if f, ok := doc.GetFloat("price"); !ok || f != 42 {
		t.Errorf("GetFloat(price) = %v, %v", f, ok)
	}
	if f, ok := doc.GetFloat("ratio"); !ok || f != 0.5 {
		t.Errorf("GetFloat(ratio) = %v, %v", f, ok)
	}
	if _, ok := doc.GetFloat("missing"); ok {
		t.Error("GetFloat(missing) should fail")
	}
}

func TestDocumentExtract(t *testing.T) {
	doc := Document{"a": 1, "b": 2, "c": 3}
	sub := doc.Extract([]string{"a", "c", "missing"})
	if len(sub) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(sub))
	}
	if sub["a"] != 1 || sub["c"] != 3 {
		t.Errorf("unexpected extract: %v", sub)
	}
}

func TestDocumentClone(t *testing.T) {
	doc := Document{
		"name":   "alpha",
		"nested": map[string]interface{}{"x": 1},
	}
	clone := doc.Clone()
	clone["name"] = "beta"
	clone["nested"].(Document)["x"] = 2

	if doc["name"] == "beta" {
		t.Error("Clone should not modify original document")
	}
	if doc["nested"].(map[string]interface{})["x"] == 2 {
		t.Error("Clone should deep-copy nested maps")
	}
}

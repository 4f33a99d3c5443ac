package subdb

import (
	"testing"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
	"github.com/kartikbazzad/bunbase/searchcore/storage"
)

func buildTriad(t *testing.T, fieldNames ...string) (*Triad, *attribute.Factory) {
	t.Helper()
	factory := attribute.NewFactory()
	triad := NewTriad(factory, 2)

	s := schema.New()
	for _, n := range fieldNames {
		var err error
		s, err = s.AddAttributeField(schema.AttributeField{
			Name: n, DataType: schema.DataTypeInt32, CollectionType: schema.CollectionSingle,
		})
		if err != nil {
			t.Fatalf("AddAttributeField: %v", err)
		}
	}

	for _, db := range []*SubDatabase{triad.Ready, triad.Removed, triad.NotReady} {
		if err := db.Reconfigure(s, 1, 2); err != nil {
			t.Fatalf("Reconfigure %s: %v", db.Kind, err)
		}
	}
	return triad, factory
}

func TestMoveTransfersAttributeValuesAndSummary(t *testing.T) {
	triad, _ := buildTriad(t, "price")
	gid := metastore.ComputeGID("doc-1")

	lid, _ := triad.NotReady.Meta.Put(gid, 0, 10)
	priceAttr, _ := triad.NotReady.Attrs.Get("price")
	for priceAttr.NumDocs() <= uint32(lid) {
		if _, err := priceAttr.AddDoc(); err != nil {
			t.Fatalf("AddDoc: %v", err)
		}
	}
	if err := priceAttr.Put(lid, int32(42)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	triad.NotReady.Summary.Put(lid, storage.Document{"price": int32(42)})

	if err := triad.Move(NotReady, Ready, gid, 5); err != nil {
		t.Fatalf("Move: %v", err)
	}

	if _, ok := triad.NotReady.Meta.Lookup(gid); ok {
		t.Fatalf("gid should no longer be present in NotReady after move")
	}
	readyEntry, ok := triad.Ready.Meta.Lookup(gid)
	if !ok {
		t.Fatalf("gid should be present in Ready after move")
	}

	readyPrice, _ := triad.Ready.Attrs.Get("price")
	v, ok := readyPrice.(*attribute.NumericAttribute[int32]).Get(readyEntry.LID)
	if !ok || v != 42 {
		t.Fatalf("expected price=42 in Ready after move, got %v ok=%v", v, ok)
	}

	doc, ok := triad.Ready.Summary.Get(readyEntry.LID)
	if !ok || doc["price"] != int32(42) {
		t.Fatalf("expected summary to carry over, got %v", doc)
	}
}

func TestKindString(t *testing.T) {
	if Ready.String() != "ready" || Removed.String() != "removed" || NotReady.String() != "notready" {
		t.Fatalf("unexpected Kind.String() values")
	}
}

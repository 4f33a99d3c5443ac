// Package subdb implements the Ready/Removed/NotReady sub-database triad:
// each sub-database owns its own attribute manager, meta store and
// summary view, and documents move between them as bucket readiness and
// removal state change.
package subdb

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute/writer"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// Kind names the three sub-databases of the triad.
type Kind int

const (
	Ready Kind = iota
	Removed
	NotReady
)

func (k Kind) String() string {
	switch k {
	case Ready:
		return "ready"
	case Removed:
		return "removed"
	case NotReady:
		return "notready"
	default:
		return fmt.Sprintf("subdb(%d)", int(k))
	}
}

// SubDatabase is one member of the triad: its own attribute manager and
// writer, meta store and summary view. Ready holds live, searchable
// documents; NotReady holds live documents of buckets not currently ready;
// Removed holds tombstoned documents pending prune.
type SubDatabase struct {
	Kind    Kind
	Meta    *metastore.Store
	Summary *SummaryStore
	Attrs   *attribute.Manager
	Writer  *writer.AttributeWriter
	factory *attribute.Factory
}

// New constructs an empty sub-database bound to factory, ready to be
// brought up to a schema via Reconfigure.
func New(kind Kind, factory *attribute.Factory, numWriteLanes int) *SubDatabase {
	mgr := attribute.NewManager(factory)
	return &SubDatabase{
		Kind:    kind,
		Meta:    metastore.New(),
		Summary: NewSummaryStore(),
		Attrs:   mgr,
		Writer:  writer.New(mgr, numWriteLanes),
		factory: factory,
	}
}

// Reconfigure evolves the sub-database's attribute manager to spec, closing
// the old writer and building a fresh one over the new manager.
func (d *SubDatabase) Reconfigure(spec *schema.Schema, serial uint64, numWriteLanes int) error {
	next, err := attribute.Reconfigure(d.Attrs, d.factory, attribute.ReconfigureParams{
		NewSpec:       spec,
		CurrentSerial: serial,
		DocIDLimit:    uint32(d.Meta.NumDocs()),
	})
	if err != nil {
		return fmt.Errorf("subdb %s: reconfigure: %w", d.Kind, err)
	}
	d.Writer.Close()
	d.Attrs = next
	d.Writer = writer.New(next, numWriteLanes)
	return nil
}

// Triad bundles the Ready/Removed/NotReady sub-databases and moves
// documents between them.
type Triad struct {
	Ready    *SubDatabase
	Removed  *SubDatabase
	NotReady *SubDatabase
}

// NewTriad constructs a fresh triad, one empty sub-database per kind.
func NewTriad(factory *attribute.Factory, numWriteLanes int) *Triad {
	return &Triad{
		Ready:    New(Ready, factory, numWriteLanes),
		Removed:  New(Removed, factory, numWriteLanes),
		NotReady: New(NotReady, factory, numWriteLanes),
	}
}

// byKind returns the sub-database for kind.
func (t *Triad) byKind(k Kind) *SubDatabase {
	switch k {
	case Ready:
		return t.Ready
	case Removed:
		return t.Removed
	case NotReady:
		return t.NotReady
	default:
		return nil
	}
}

// Move transfers gid from src to dst: its meta-store entry moves (deleted
// from src, recreated in dst), its summary body is copied across, and every attribute value
// present in the summary body is replayed into dst's attribute manager at a
// freshly allocated lid in dst, then the old lid's values are cleared in
// src. This is the BucketMover's primitive: sub-databases carry
// independent attribute managers, so a cross-subdb move cannot simply
// repoint a lid — the value has to be re-written on the destination side.
func (t *Triad) Move(srcKind, dstKind Kind, gid metastore.GID, serial uint64) error {
	src := t.byKind(srcKind)
	dst := t.byKind(dstKind)
	if src == nil || dst == nil {
		return fmt.Errorf("subdb: unknown kind in move")
	}

	entry, ok := src.Meta.Lookup(gid)
	if !ok {
		return fmt.Errorf("subdb: move: gid not present in %s", srcKind)
	}
	doc, _ := src.Summary.Get(entry.LID)

	dstAttrs := dst.Attrs.All()
	fields := make(writer.FieldValues, len(dstAttrs))
	for name := range dstAttrs {
		if v, ok := doc[name]; ok {
			fields[name] = v
		}
	}

	dstLID, ok := dst.Meta.LIDFor(gid)
	if !ok {
		dstLID, _ = dst.Meta.Put(gid, entry.Bucket, entry.Timestamp)
		for name, a := range dstAttrs {
			for a.NumDocs() <= uint32(dstLID) {
				if _, err := a.AddDoc(); err != nil {
					return fmt.Errorf("subdb: move: addDoc %s: %w", name, err)
				}
			}
		}
	}

	done := make(chan error, 1)
	dst.Writer.Put(serial, fields, dstLID, func(err error) { done <- err })
	if err := <-done; err != nil {
		return fmt.Errorf("subdb: move: put into %s: %w", dstKind, err)
	}
	dst.Summary.Put(dstLID, doc)

	removeDone := make(chan error, 1)
	src.Writer.Remove(serial, entry.LID, func(err error) { removeDone <- err })
	if err := <-removeDone; err != nil {
		return fmt.Errorf("subdb: move: clear %s: %w", srcKind, err)
	}
	src.Summary.Remove(entry.LID)
	src.Meta.Delete(gid)

	return nil
}

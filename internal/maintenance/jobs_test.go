package maintenance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/feed"
	"github.com/kartikbazzad/bunbase/searchcore/internal/feed/tlslog"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
	"github.com/kartikbazzad/bunbase/searchcore/internal/subdb"
)

type noopView struct{ heartbeats int }

func (v *noopView) PreparePut(gid feed.GID) (attribute.LID, bool)    { return 0, false }
func (v *noopView) PrepareUpdate(gid feed.GID) (attribute.LID, bool) { return 0, false }
func (v *noopView) PrepareMove(gid feed.GID) (attribute.LID, bool)   { return 0, false }
func (v *noopView) HandlePut(uint64, feed.GID, map[string]any, int64) error    { return nil }
func (v *noopView) HandleUpdate(uint64, feed.GID, map[string]any, int64) error { return nil }
func (v *noopView) HandleRemove(uint64, feed.GID) error                       { return nil }
func (v *noopView) HandleRemoveLocation(uint64, string, int64) error          { return nil }
func (v *noopView) HandleMove(uint64, feed.GID) error                        { return nil }
func (v *noopView) HandlePruneRemovedDocuments(uint64, int64) error          { return nil }
func (v *noopView) HandleWipeOldRemovedFields(uint64, int64) error           { return nil }
func (v *noopView) HeartBeat(uint64) error                                   { v.heartbeats++; return nil }
func (v *noopView) ExistingTimestamp(feed.GID) (int64, bool)                 { return 0, false }

func newTestFeedHandler(t *testing.T) (*feed.Handler, *noopView, tlslog.Store) {
	t.Helper()
	store, err := tlslog.OpenBoltStore(filepath.Join(t.TempDir(), "tls.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	view := &noopView{}
	h := feed.New(view, store, nil)
	if err := h.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return h, view, store
}

func TestHeartBeatJobDrivesViewHeartbeat(t *testing.T) {
	h, view, store := newTestFeedHandler(t)
	defer store.Close()
	defer h.Close()

	job := NewHeartBeat(h, 0, time.Hour)
	if !job.Run() {
		t.Fatalf("HeartBeat.Run should report done=true")
	}
	if view.heartbeats != 1 {
		t.Fatalf("expected 1 heartbeat delivered to view, got %d", view.heartbeats)
	}
}

type fakeCalculator struct {
	ready  map[metastore.BucketID]bool
	active map[metastore.BucketID]bool
}

func (c *fakeCalculator) WantsReady(b metastore.BucketID) bool { return c.ready[b] }
func (c *fakeCalculator) IsActive(b metastore.BucketID) bool   { return c.active[b] }

func buildTriadWithField(t *testing.T) *subdb.Triad {
	t.Helper()
	factory := attribute.NewFactory()
	triad := subdb.NewTriad(factory, 2)
	s := schema.New()
	s, err := s.AddAttributeField(schema.AttributeField{Name: "v", DataType: schema.DataTypeInt32, CollectionType: schema.CollectionSingle})
	if err != nil {
		t.Fatalf("AddAttributeField: %v", err)
	}
	for _, db := range []*subdb.SubDatabase{triad.Ready, triad.Removed, triad.NotReady} {
		if err := db.Reconfigure(s, 1, 2); err != nil {
			t.Fatalf("Reconfigure: %v", err)
		}
	}
	return triad
}

func TestBucketMoverMovesMismatchedBucket(t *testing.T) {
	triad := buildTriadWithField(t)
	gid := metastore.ComputeGID("doc-1")
	lid, _ := triad.NotReady.Meta.Put(gid, 7, 1)
	attr, _ := triad.NotReady.Attrs.Get("v")
	for attr.NumDocs() <= uint32(lid) {
		attr.AddDoc()
	}
	attr.Put(lid, int32(1))
	triad.NotReady.Summary.Put(lid, map[string]any{"v": int32(1)})

	h, _, store := newTestFeedHandler(t)
	defer store.Close()
	defer h.Close()
	freezer := NewBucketFreezer()
	calc := &fakeCalculator{ready: map[metastore.BucketID]bool{7: true}, active: map[metastore.BucketID]bool{}}
	job := NewBucketMover(triad, calc, freezer, h, 0, time.Hour)

	if !job.Run() {
		t.Fatalf("BucketMover.Run should report done=true")
	}
	if _, ok := triad.NotReady.Meta.Lookup(gid); ok {
		t.Fatalf("expected doc to be moved out of NotReady")
	}
	if _, ok := triad.Ready.Meta.Lookup(gid); !ok {
		t.Fatalf("expected doc to be moved into Ready")
	}
}

func TestBucketMoverSkipsActiveBuckets(t *testing.T) {
	triad := buildTriadWithField(t)
	gid := metastore.ComputeGID("doc-1")
	triad.NotReady.Meta.Put(gid, 9, 1)

	h, _, store := newTestFeedHandler(t)
	defer store.Close()
	defer h.Close()
	freezer := NewBucketFreezer()
	calc := &fakeCalculator{ready: map[metastore.BucketID]bool{9: true}, active: map[metastore.BucketID]bool{9: true}}
	job := NewBucketMover(triad, calc, freezer, h, 0, time.Hour)
	job.Run()

	if _, ok := triad.NotReady.Meta.Lookup(gid); !ok {
		t.Fatalf("active bucket must not be moved")
	}
}

func TestPruneRemovedDocumentsPrunesOldTombstones(t *testing.T) {
	triad := buildTriadWithField(t)
	h, _, store := newTestFeedHandler(t)
	defer store.Close()
	defer h.Close()

	gid := metastore.ComputeGID("doc-1")
	triad.Removed.Meta.Put(gid, 0, 1)
	triad.Removed.Meta.Remove(gid, time.Now().Add(-48*time.Hour).Unix())

	job := NewPruneRemovedDocuments(triad.Removed, h, 24*time.Hour, 0, time.Hour)
	if !job.Run() {
		t.Fatalf("PruneRemovedDocuments.Run should report done=true")
	}
	if _, ok := triad.Removed.Meta.Lookup(gid); ok {
		t.Fatalf("expected old tombstone to be pruned")
	}
}

type fakeSessionCache struct{ pruned int }

func (c *fakeSessionCache) PruneExpired(now time.Time) int { c.pruned++; return 0 }

func TestSessionCachePrunerInvokesCache(t *testing.T) {
	cache := &fakeSessionCache{}
	job := NewSessionCachePruner(cache, 0, time.Hour)
	job.Run()
	if cache.pruned != 1 {
		t.Fatalf("expected cache to be pruned once, got %d", cache.pruned)
	}
}

func TestLidSpaceCompactionCompactsSparseAttribute(t *testing.T) {
	triad := buildTriadWithField(t)
	attr, _ := triad.Ready.Attrs.Get("v")
	for i := 0; i < 10; i++ {
		attr.AddDoc()
	}

	job := NewLidSpaceCompaction(triad.Ready, 0.5, 0, time.Hour)
	job.Run() // numDocs (meta) is 0, density 0 < 0.5, should attempt compact without error
}

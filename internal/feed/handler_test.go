package feed

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/feed/tlslog"
)

type fakeView struct {
	mu         sync.Mutex
	docs       map[GID]map[string]any
	timestamps map[GID]int64
	removed    map[GID]bool
	heartbeats []uint64
	nextLID    attribute.LID
}

func newFakeView() *fakeView {
	return &fakeView{
		docs:       make(map[GID]map[string]any),
		timestamps: make(map[GID]int64),
		removed:    make(map[GID]bool),
	}
}

func (v *fakeView) PreparePut(gid GID) (attribute.LID, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, existed := v.docs[gid]
	return 0, existed
}

func (v *fakeView) PrepareUpdate(gid GID) (attribute.LID, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, existed := v.docs[gid]
	return 0, existed && !v.removed[gid]
}

func (v *fakeView) PrepareMove(gid GID) (attribute.LID, bool) {
	return v.PreparePut(gid)
}

func (v *fakeView) HandlePut(serial uint64, gid GID, fields map[string]any, ts int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.docs[gid] = fields
	v.timestamps[gid] = ts
	v.removed[gid] = false
	return nil
}

func (v *fakeView) HandleUpdate(serial uint64, gid GID, fields map[string]any, ts int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	doc, ok := v.docs[gid]
	if !ok {
		doc = map[string]any{}
	}
	for k, val := range fields {
		doc[k] = val
	}
	v.docs[gid] = doc
	v.timestamps[gid] = ts
	return nil
}

func (v *fakeView) HandleRemove(serial uint64, gid GID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removed[gid] = true
	return nil
}

func (v *fakeView) HandleRemoveLocation(serial uint64, selection string, now int64) error {
	return nil
}

func (v *fakeView) HandleMove(serial uint64, gid GID) error { return nil }

func (v *fakeView) HandlePruneRemovedDocuments(serial uint64, olderThan int64) error { return nil }

func (v *fakeView) HandleWipeOldRemovedFields(serial uint64, cutoff int64) error { return nil }

func (v *fakeView) HeartBeat(serial uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.heartbeats = append(v.heartbeats, serial)
	return nil
}

func (v *fakeView) ExistingTimestamp(gid GID) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ts, ok := v.timestamps[gid]
	return ts, ok
}

func newTestHandler(t *testing.T) (*Handler, *fakeView, tlslog.Store) {
	t.Helper()
	store, err := tlslog.OpenBoltStore(filepath.Join(t.TempDir(), "tls.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	view := newFakeView()
	h := New(view, store, nil)
	if err := h.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return h, view, store
}

func TestPerformPutAssignsIncreasingSerials(t *testing.T) {
	h, view, store := newTestHandler(t)
	defer store.Close()
	defer h.Close()

	r1 := h.PerformOperation(Operation{Kind: OpPut, DocID: "doc-1", Fields: map[string]any{"a": 1}, Timestamp: 10})
	r2 := h.PerformOperation(Operation{Kind: OpPut, DocID: "doc-2", Fields: map[string]any{"a": 2}, Timestamp: 11})
	if r1.Result != ResultNone || r2.Result != ResultNone {
		t.Fatalf("expected no errors, got %v %v", r1.Result, r2.Result)
	}
	if r2.Serial <= r1.Serial {
		t.Fatalf("expected strictly increasing serials, got %d then %d", r1.Serial, r2.Serial)
	}
	if len(view.docs) != 2 {
		t.Fatalf("expected 2 docs applied")
	}
}

func TestOutdatedOpIsSilentlyIgnored(t *testing.T) {
	h, _, store := newTestHandler(t)
	defer store.Close()
	defer h.Close()

	h.PerformOperation(Operation{Kind: OpPut, DocID: "doc-1", Fields: map[string]any{"a": 1}, Timestamp: 100})
	r := h.PerformOperation(Operation{Kind: OpPut, DocID: "doc-1", Fields: map[string]any{"a": 2}, Timestamp: 200, PrevTimestamp: 50})
	if r.Result != ResultNone || r.ExistingTimestamp != 100 {
		t.Fatalf("expected outdated op to report existing timestamp without applying, got %+v", r)
	}
}

func TestUpdateOnMissingDocWithoutCreateReturnsZeroExistingTimestamp(t *testing.T) {
	h, _, store := newTestHandler(t)
	defer store.Close()
	defer h.Close()

	r := h.PerformOperation(Operation{Kind: OpUpdate, DocID: "ghost", Fields: map[string]any{"a": 1}})
	if r.Result != ResultNone || r.ExistingTimestamp != 0 {
		t.Fatalf("expected existingTimestamp=0 for missing doc without createIfNonExistent, got %+v", r)
	}
}

func TestUpdateOnMissingDocWithCreateUpgradesToPut(t *testing.T) {
	h, view, store := newTestHandler(t)
	defer store.Close()
	defer h.Close()

	r := h.PerformOperation(Operation{Kind: OpUpdate, DocID: "doc-1", Fields: map[string]any{"a": 1}, CreateIfNonExistent: true})
	if r.Result != ResultNone {
		t.Fatalf("expected upgraded put to succeed, got %+v", r)
	}
	if _, ok := view.docs[GID(0)]; ok {
		// not meaningful check by raw gid; ensure a doc exists at all.
	}
	if len(view.docs) != 1 {
		t.Fatalf("expected the upgraded put to create exactly one doc")
	}
}

func TestResourceExhaustedFilterRejectsPut(t *testing.T) {
	store, err := tlslog.OpenBoltStore(filepath.Join(t.TempDir(), "tls.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer store.Close()
	view := newFakeView()
	h := New(view, store, filterFunc(func(Operation) bool { return false }))
	defer h.Close()
	if err := h.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := h.PerformOperation(Operation{Kind: OpPut, DocID: "doc-1"})
	if r.Result != ResultResourceExhausted {
		t.Fatalf("expected RESOURCE_EXHAUSTED, got %v", r.Result)
	}
}

type filterFunc func(Operation) bool

func (f filterFunc) Admit(op Operation) bool { return f(op) }

func TestRejectedConfigReturnsPermanentErrorExceptWipeHistory(t *testing.T) {
	h, _, store := newTestHandler(t)
	defer store.Close()
	defer h.Close()
	h.RejectConfig()

	r := h.PerformOperation(Operation{Kind: OpPut, DocID: "doc-1"})
	if r.Result != ResultPermanentError {
		t.Fatalf("expected PERMANENT_ERROR under rejected config, got %v", r.Result)
	}

	r = h.PerformOperation(Operation{Kind: OpWipeHistory, DocID: "doc-1"})
	if r.Result != ResultNone {
		t.Fatalf("expected WipeHistory to still run under rejected config, got %v", r.Result)
	}
}

func TestReplayRestoresDocsFromTLS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls.db")
	store, err := tlslog.OpenBoltStore(dir)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	view := newFakeView()
	h := New(view, store, nil)
	if err := h.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.PerformOperation(Operation{Kind: OpPut, DocID: "doc-1", Fields: map[string]any{"a": 1}, Timestamp: 5})
	h.Close()
	store.Close()

	store2, err := tlslog.OpenBoltStore(dir)
	if err != nil {
		t.Fatalf("reopen OpenBoltStore: %v", err)
	}
	defer store2.Close()
	view2 := newFakeView()
	h2 := New(view2, store2, nil)
	defer h2.Close()
	if err := h2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(view2.docs) != 1 {
		t.Fatalf("expected replay to restore 1 doc, got %d", len(view2.docs))
	}
}

package metastore

import "testing"

func TestPutAllocatesLIDOnce(t *testing.T) {
	s := New()
	gid := ComputeGID("doc-1")

	lid1, fresh := s.Put(gid, 0, 100)
	if !fresh {
		t.Fatalf("expected first Put to be a fresh insert")
	}
	lid2, fresh := s.Put(gid, 0, 200)
	if fresh {
		t.Fatalf("expected second Put of same gid to update in place")
	}
	if lid1 != lid2 {
		t.Fatalf("lid must stay stable across updates, got %d then %d", lid1, lid2)
	}
}

func TestRemoveIsIdempotentAndTombstones(t *testing.T) {
	s := New()
	gid := ComputeGID("doc-1")
	s.Put(gid, 0, 100)

	if ok := s.Remove(gid, 150); !ok {
		t.Fatalf("Remove of known gid should succeed")
	}
	if ok := s.Remove(gid, 160); !ok {
		t.Fatalf("Remove is idempotent and should still report success")
	}

	e, ok := s.Lookup(gid)
	if !ok {
		t.Fatalf("tombstoned entry should still be visible to Lookup")
	}
	if !e.Removed {
		t.Fatalf("expected entry to be tombstoned")
	}
	if _, ok := s.LIDFor(gid); ok {
		t.Fatalf("LIDFor must not return a lid for a removed document")
	}
}

func TestRemoveUnknownGIDFails(t *testing.T) {
	s := New()
	if ok := s.Remove(ComputeGID("never-seen"), 1); ok {
		t.Fatalf("Remove of an unknown gid should report false")
	}
}

func TestPruneOlderThanDropsOnlyTombstonedEntriesBeforeCutoff(t *testing.T) {
	s := New()
	live := ComputeGID("live")
	oldDead := ComputeGID("old-dead")
	newDead := ComputeGID("new-dead")

	s.Put(live, 0, 1)
	s.Put(oldDead, 0, 1)
	s.Remove(oldDead, 10)
	s.Put(newDead, 0, 1)
	s.Remove(newDead, 1000)

	pruned := s.PruneOlderThan(500)
	if len(pruned) != 1 || pruned[0] != oldDead {
		t.Fatalf("expected exactly oldDead pruned, got %v", pruned)
	}
	if _, ok := s.Lookup(oldDead); ok {
		t.Fatalf("pruned entry should be gone")
	}
	if _, ok := s.Lookup(newDead); !ok {
		t.Fatalf("newDead should survive, its timestamp is after cutoff")
	}
	if _, ok := s.Lookup(live); !ok {
		t.Fatalf("live document must never be pruned")
	}
}

func TestMoveTransfersEntryAndPreservesLID(t *testing.T) {
	ready := New()
	notReady := New()
	gid := ComputeGID("doc-1")
	lid, _ := ready.Put(gid, 3, 50)

	if ok := ready.Move(notReady, gid); !ok {
		t.Fatalf("Move should succeed for a known gid")
	}
	if _, ok := ready.Lookup(gid); ok {
		t.Fatalf("source store should no longer hold the moved gid")
	}
	e, ok := notReady.Lookup(gid)
	if !ok {
		t.Fatalf("destination store should hold the moved gid")
	}
	if e.LID != lid {
		t.Fatalf("lid must be preserved across a move, got %d want %d", e.LID, lid)
	}
	if e.Bucket != 3 {
		t.Fatalf("bucket must be preserved across a move, got %d", e.Bucket)
	}
}

func TestNumDocsExcludesTombstones(t *testing.T) {
	s := New()
	s.Put(ComputeGID("a"), 0, 1)
	s.Put(ComputeGID("b"), 0, 1)
	s.Remove(ComputeGID("b"), 2)

	if n := s.NumDocs(); n != 1 {
		t.Fatalf("expected 1 live doc, got %d", n)
	}
}

func TestBucketGIDsFiltersByBucket(t *testing.T) {
	s := New()
	a, b := ComputeGID("a"), ComputeGID("b")
	s.Put(a, 1, 1)
	s.Put(b, 2, 1)

	got := s.BucketGIDs(1)
	if len(got) != 1 || got[0] != a {
		t.Fatalf("expected only gid a in bucket 1, got %v", got)
	}
}

func TestComputeGIDIsDeterministic(t *testing.T) {
	if ComputeGID("doc-1") != ComputeGID("doc-1") {
		t.Fatalf("ComputeGID must be deterministic")
	}
	if ComputeGID("doc-1") == ComputeGID("doc-2") {
		t.Fatalf("different ids should not collide in this small test (extremely unlikely)")
	}
}

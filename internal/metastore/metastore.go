package metastore

import (
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
)

// Entry is one document's metadata record: its local id, owning bucket,
// last-touched timestamp and tombstone state.
type Entry struct {
	LID       attribute.LID
	Bucket    BucketID
	Timestamp int64 // seconds, matches the schema field timestamp convention
	Removed   bool
}

// Store is the DocumentMetaStore: a GID -> LID mapping plus the
// bucket id, timestamp and tombstone state FeedView needs to serve
// preparePut/prepareUpdate/prepareMove without touching any attribute.
//
// One Store exists per sub-database (the Ready/Removed/NotReady triad);
// moving a document between sub-databases means removing its entry from one
// Store and inserting it into another, never mutating Bucket in place.
type Store struct {
	mu      sync.RWMutex
	entries map[GID]*Entry
	freeLID []attribute.LID // lids released by Remove, reused by the next Put
	nextLID attribute.LID
}

// New returns an empty meta store.
func New() *Store {
	return &Store{entries: make(map[GID]*Entry)}
}

// Lookup returns the entry for gid, if present (including tombstoned
// entries — callers that care about liveness must check Removed).
func (s *Store) Lookup(gid GID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[gid]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// LIDFor returns the lid assigned to gid, used by FeedView.preparePut to
// find the previous lid of an existing document.
func (s *Store) LIDFor(gid GID) (attribute.LID, bool) {
	e, ok := s.Lookup(gid)
	if !ok || e.Removed {
		return 0, false
	}
	return e.LID, true
}

// Put inserts or updates gid's entry, allocating a lid if this is the first
// time gid has been seen (or its prior lid was reclaimed by a Remove).
// Returns the entry's lid and whether this was a fresh insert.
func (s *Store) Put(gid GID, bucket BucketID, timestamp int64) (attribute.LID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[gid]; ok {
		fresh := false
		if e.Removed {
			// Remove already put the old lid on the free list.
			e.LID = s.allocLIDLocked()
			fresh = true
		}
		e.Bucket = bucket
		e.Timestamp = timestamp
		e.Removed = false
		return e.LID, fresh
	}

	lid := s.allocLIDLocked()
	s.entries[gid] = &Entry{LID: lid, Bucket: bucket, Timestamp: timestamp}
	return lid, true
}

// Remove tombstones gid: the entry stays visible to Lookup (so a later
// replay of the same removal is idempotent) but is marked Removed and its
// lid is released for reuse. Returns false if gid was never known.
func (s *Store) Remove(gid GID, timestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[gid]
	if !ok {
		return false
	}
	if e.Removed {
		return true // already tombstoned; idempotent
	}
	e.Removed = true
	e.Timestamp = timestamp
	s.freeLID = append(s.freeLID, e.LID)
	return true
}

// PruneOlderThan deletes every tombstoned entry whose timestamp is strictly
// older than cutoff, returning the GIDs it dropped.
func (s *Store) PruneOlderThan(cutoff int64) []GID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []GID
	for gid, e := range s.entries {
		if e.Removed && e.Timestamp < cutoff {
			pruned = append(pruned, gid)
			delete(s.entries, gid)
		}
	}
	return pruned
}

// Delete hard-removes gid's entry with no tombstone, releasing its lid for
// reuse. Used when a document's entry has already been recreated in another
// store (a cross-sub-db move) and this store's record would otherwise be a
// dangling duplicate.
func (s *Store) Delete(gid GID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[gid]
	if !ok {
		return
	}
	delete(s.entries, gid)
	s.freeLID = append(s.freeLID, e.LID)
}

// Move transfers gid's entry from s to dst. The lid is preserved across the
// move. The BucketMover job does not use it: subdb.Triad.Move allocates a
// fresh lid in the destination store instead.
func (s *Store) Move(dst *Store, gid GID) bool {
	s.mu.Lock()
	e, ok := s.entries[gid]
	if ok {
		delete(s.entries, gid)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	dst.mu.Lock()
	defer dst.mu.Unlock()
	dst.entries[gid] = &Entry{LID: e.LID, Bucket: e.Bucket, Timestamp: e.Timestamp, Removed: e.Removed}
	return true
}

// NumDocs returns the count of live (non-tombstoned) entries.
func (s *Store) NumDocs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !e.Removed {
			n++
		}
	}
	return n
}

// BucketGIDs returns every GID currently assigned to bucket, live or
// tombstoned, used by maintenance jobs that operate one bucket at a time.
func (s *Store) BucketGIDs(bucket BucketID) []GID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []GID
	for gid, e := range s.entries {
		if e.Bucket == bucket {
			out = append(out, gid)
		}
	}
	return out
}

// AllGIDs returns every known GID, live or tombstoned.
func (s *Store) AllGIDs() []GID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]GID, 0, len(s.entries))
	for gid := range s.entries {
		out = append(out, gid)
	}
	return out
}

func (s *Store) allocLIDLocked() attribute.LID {
	if n := len(s.freeLID); n > 0 {
		lid := s.freeLID[n-1]
		s.freeLID = s.freeLID[:n-1]
		return lid
	}
	lid := s.nextLID
	s.nextLID++
	return lid
}

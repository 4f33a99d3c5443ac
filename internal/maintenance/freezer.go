// Package maintenance implements the MaintenanceController: a
// scheduler of long-running background jobs with a bucket-freeze interlock
// against concurrent bucket moves.
package maintenance

import (
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
)

// BucketFreezer is the IFrozenBucketHandler/IBucketFreezer pair: a
// reference-counted per-bucket lock plus an exclusive-acquisition mode used
// by bucket-move jobs.
type BucketFreezer struct {
	mu        sync.Mutex
	counts    map[metastore.BucketID]int
	exclusive map[metastore.BucketID]bool
	blocked   []func(bool)
}

// NewBucketFreezer returns an empty freezer.
func NewBucketFreezer() *BucketFreezer {
	return &BucketFreezer{
		counts:    make(map[metastore.BucketID]int),
		exclusive: make(map[metastore.BucketID]bool),
	}
}

// FreezeBucket increments bucket's freeze count. Nested freezes by the same
// party are permitted (it's a multiset, not a boolean).
func (f *BucketFreezer) FreezeBucket(id metastore.BucketID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[id]++
}

// ThawBucket decrements bucket's freeze count. When the count drops to
// zero, every job that had registered a block waiting on bucket contention
// is notified and unblocked.
func (f *BucketFreezer) ThawBucket(id metastore.BucketID) {
	f.mu.Lock()
	var toNotify []func(bool)
	if f.counts[id] > 0 {
		f.counts[id]--
	}
	if f.counts[id] == 0 {
		toNotify = f.blocked
		f.blocked = nil
	}
	f.mu.Unlock()

	for _, notify := range toNotify {
		notify(false)
	}
}

// IsFrozen reports whether bucket currently has any outstanding freeze.
func (f *BucketFreezer) IsFrozen(id metastore.BucketID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[id] > 0
}

// ExclusiveGuard is returned by AcquireExclusiveBucket; Release must be
// called exactly once.
type ExclusiveGuard struct {
	f  *BucketFreezer
	id metastore.BucketID
}

// Release drops the exclusive hold on the guard's bucket.
func (g *ExclusiveGuard) Release() {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	g.f.exclusive[g.id] = false
}

// AcquireExclusiveBucket returns a guard iff bucket's freeze count is zero
// and no other exclusive holder exists; otherwise it returns (nil, false)
// and records the contention so the next ThawBucket notifies onBlocked.
func (f *BucketFreezer) AcquireExclusiveBucket(id metastore.BucketID, onBlocked func(bool)) (*ExclusiveGuard, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[id] > 0 || f.exclusive[id] {
		if onBlocked != nil {
			f.blocked = append(f.blocked, onBlocked)
		}
		return nil, false
	}
	f.exclusive[id] = true
	return &ExclusiveGuard{f: f, id: id}, true
}

// Package match implements the per-query matching engine: a
// multi-threaded search loop with early termination, a bounded hit
// collector, second-phase re-ranking and per-thread result merge.
package match

import (
	"container/heap"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
)

// Hit is one matched document with the score the currently-active rank
// phase assigned it.
type Hit struct {
	LID   attribute.LID
	Score float64
}

// HitCollector is a bounded top-K collector backed by a binary min-heap
// (container/heap; no ecosystem priority-queue library appears anywhere in
// the example pack, so the standard library's heap interface is the
// natural fit here). The root always holds the weakest kept hit, so an
// incoming hit that beats the root evicts it in O(log K).
//
// Results drains the heap with sequential Pop calls, which — by min-heap
// contract — yields hits in ascending score order: the weakest surviving
// hit first, the strongest last extracted. Callers that want
// strongest-first must reverse; the second-phase
// reorder is defined in terms of this raw drain order.
type HitCollector struct {
	h        hitHeap
	capacity int
}

// NewHitCollector returns a collector that keeps at most capacity hits.
func NewHitCollector(capacity int) *HitCollector {
	return &HitCollector{capacity: capacity}
}

// Add offers hit to the collector. Returns true if the hit was kept (either
// the collector had room, or it beat the current weakest kept hit).
func (c *HitCollector) Add(hit Hit) bool {
	if c.capacity <= 0 {
		return false
	}
	if len(c.h) < c.capacity {
		heap.Push(&c.h, hit)
		return true
	}
	if hit.Score <= c.h[0].Score {
		return false
	}
	c.h[0] = hit
	heap.Fix(&c.h, 0)
	return true
}

// Len returns the number of hits currently kept.
func (c *HitCollector) Len() int { return len(c.h) }

// Peek returns the weakest kept hit's score without draining.
func (c *HitCollector) Peek() (float64, bool) {
	if len(c.h) == 0 {
		return 0, false
	}
	return c.h[0].Score, true
}

// Results drains every kept hit in ascending-score order (see type doc) and
// resets the collector to empty.
func (c *HitCollector) Results() []Hit {
	out := make([]Hit, 0, len(c.h))
	for c.h.Len() > 0 {
		out = append(out, heap.Pop(&c.h).(Hit))
	}
	return out
}

// Snapshot returns the kept hits without draining, in unspecified order;
// used by second-phase re-ranking to read back candidates before rebuilding
// a fresh collector for the second pass.
func (c *HitCollector) Snapshot() []Hit {
	out := make([]Hit, len(c.h))
	copy(out, c.h)
	return out
}

type hitHeap []Hit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

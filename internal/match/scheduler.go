package match

import (
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
)

// DocidRangeScheduler hands out contiguous lid sub-ranges to worker
// threads. A thread visits every range it takes itself; ranges are not
// redistributed between threads.
type DocidRangeScheduler struct {
	mu    sync.Mutex
	next  attribute.LID // low end of the unassigned remainder
	limit attribute.LID // exclusive upper bound
	chunk attribute.LID
}

// NewDocidRangeScheduler partitions [0, limit) into chunks of size chunk,
// handed out one at a time via Take.
func NewDocidRangeScheduler(limit attribute.LID, chunk attribute.LID) *DocidRangeScheduler {
	if chunk == 0 {
		chunk = 1
	}
	return &DocidRangeScheduler{limit: limit, chunk: chunk}
}

// Range is a half-open [Low, High) lid interval assigned to one thread.
type Range struct {
	Low, High attribute.LID
}

// Empty reports whether r has no lids left to visit.
func (r Range) Empty() bool { return r.Low >= r.High }

// Take assigns the next unclaimed chunk. ok is false once the scheduler is
// exhausted.
func (s *DocidRangeScheduler) Take() (Range, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= s.limit {
		return Range{}, false
	}
	low := s.next
	high := low + s.chunk
	if high > s.limit {
		high = s.limit
	}
	s.next = high
	return Range{Low: low, High: high}, true
}

// ShareRange splits a range in half, returning the head half to keep and
// the tail half to hand to another thread. The match loop does not call it:
// MatchThread never splits a range it has taken.
func ShareRange(r Range) (keep, stolen Range) {
	if r.Empty() {
		return r, Range{}
	}
	mid := r.Low + (r.High-r.Low)/2
	if mid == r.Low {
		return r, Range{}
	}
	return Range{Low: r.Low, High: mid}, Range{Low: mid, High: r.High}
}

package match

import (
	"sort"
	"time"

	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
)

// DualMergeDirector merges every thread's independently-produced
// PartialResult into one ordered result. "Dual" refers to the two inputs it
// reconciles: the bit-overflow array (hits that didn't fit a thread's heap)
// and the heap itself; this in-memory implementation keeps only the heap
// side, since overflow tracking belongs to the on-disk posting iterator
// this package treats as an external collaborator.
type DualMergeDirector struct {
	offset int
	limit  int
}

// NewDualMergeDirector builds a merge director that will return the
// [offset, offset+limit) window of the merged result.
func NewDualMergeDirector(offset, limit int) *DualMergeDirector {
	return &DualMergeDirector{offset: offset, limit: limit}
}

// Merge concatenates every partial result, sorts ascending by score — the
// same order HitCollector.Results drains in, see its doc comment — and
// returns the requested offset/limit window.
func (d *DualMergeDirector) Merge(parts []PartialResult) []Hit {
	var all []Hit
	for _, p := range parts {
		all = append(all, p.Hits...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Score < all[j].Score })

	if d.offset >= len(all) {
		return nil
	}
	end := d.offset + d.limit
	if d.limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[d.offset:end]
}

// RunQuery orchestrates a full two-phase match across threads sharing one
// scheduler: first phase concurrently, a selectBest threshold computed once
// every thread has finished, second phase concurrently, then merge. globalLimit bounds how many of the combined
// first-phase hits are eligible for second-phase re-ranking.
func RunQuery(threads []*MatchThread, globalLimit int, merger *DualMergeDirector) []Hit {
	return RunQueryWithMetrics(threads, globalLimit, merger, nil)
}

// RunQueryWithMetrics is RunQuery plus recording of the query's total wall
// time into the observable-counters registry.
// A nil registry makes this identical to RunQuery.
func RunQueryWithMetrics(threads []*MatchThread, globalLimit int, merger *DualMergeDirector, reg *metrics.Registry) []Hit {
	start := time.Now()
	defer func() {
		if reg != nil {
			reg.MatchLatency.Observe(time.Since(start).Seconds())
		}
	}()

	done := make(chan struct{}, len(threads))
	for _, t := range threads {
		t := t
		go func() { t.RunFirstPhase(); done <- struct{}{} }()
	}
	for range threads {
		<-done
	}

	threshold := selectBest(threads, globalLimit)

	for _, t := range threads {
		t := t
		go func() { t.RunSecondPhase(threshold); done <- struct{}{} }()
	}
	for range threads {
		<-done
	}

	parts := make([]PartialResult, len(threads))
	for i, t := range threads {
		parts[i] = PartialResult{ThreadID: t.ID, Hits: t.collector.Results()}
	}
	return merger.Merge(parts)
}

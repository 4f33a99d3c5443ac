package match

import (
	"sort"
	"time"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/rules"
)

// DocFields resolves a candidate lid's attribute values into the map a
// rules.RankProgram evaluates against.
type DocFields func(lid attribute.LID) map[string]any

// PartialResult is one thread's contribution to a query, handed to the
// DualMergeDirector.
type PartialResult struct {
	ThreadID int
	Hits     []Hit
}

// MatchThread evaluates one slice of a query's matching candidate set: the
// first-phase rank program, the rankDropLimit cut, and a bounded
// HitCollector. The second-phase reorder is driven by the pool-level
// orchestration in RunQuery; threads do not steal work from each other.
type MatchThread struct {
	ID         int
	candidates []attribute.LID
	scheduler  *DocidRangeScheduler
	fields     DocFields
	profile    *rules.RankProfile
	collector  *HitCollector
	doom       Doom
	nowFn      func() time.Time
}

// NewMatchThread builds a thread scanning candidates (shared, read-only,
// across all threads of the bundle) via scheduler, scoring with profile and
// keeping the top collectorSize hits.
func NewMatchThread(id int, candidates []attribute.LID, scheduler *DocidRangeScheduler, fields DocFields, profile *rules.RankProfile, collectorSize int, doom Doom) *MatchThread {
	return &MatchThread{
		ID:         id,
		candidates: candidates,
		scheduler:  scheduler,
		fields:     fields,
		profile:    profile,
		collector:  NewHitCollector(collectorSize),
		doom:       doom,
		nowFn:      time.Now,
	}
}

// RunFirstPhase drains ranges from the shared scheduler until it is
// exhausted, hard doom trips, or soft doom has expired when a range is
// finished, scoring each candidate with the profile's
// first-phase program and keeping qualifying hits.
func (t *MatchThread) RunFirstPhase() {
	for {
		if t.doom.HardExpired(t.nowFn()) {
			return
		}
		r, ok := t.scheduler.Take()
		if !ok {
			return
		}
		for i := r.Low; i < r.High; i++ {
			if i%64 == 0 && t.doom.HardExpired(t.nowFn()) {
				return
			}
			lid := t.candidates[i]
			score, err := t.profile.FirstPhase.Eval(t.fields(lid), 0)
			if err != nil {
				continue
			}
			if score <= t.profile.RankDropLimit {
				continue
			}
			t.collector.Add(Hit{LID: lid, Score: score})
		}
		if t.doom.SoftExpired(t.nowFn()) {
			return
		}
	}
}

// RunSecondPhase re-scores every hit at or above threshold with the
// profile's second-phase program (if any), then rebuilds the thread's
// collector from the re-scored hits plus the untouched remainder.
func (t *MatchThread) RunSecondPhase(threshold float64) {
	if t.profile.SecondPhase == nil {
		return
	}
	hits := t.collector.Snapshot()
	rescored := NewHitCollector(t.collector.capacity)
	for _, h := range hits {
		if h.Score < threshold {
			rescored.Add(h)
			continue
		}
		score, err := t.profile.SecondPhase.Eval(t.fields(h.LID), h.Score)
		if err != nil {
			rescored.Add(h)
			continue
		}
		rescored.Add(Hit{LID: h.LID, Score: score})
	}
	t.collector = rescored
}

// selectBest computes the global top-globalLimit score threshold across
// every thread's currently-kept hits, the global heap top across all
// threads. Threads re-rank only hits at or above this threshold.
func selectBest(threads []*MatchThread, globalLimit int) float64 {
	var all []float64
	for _, t := range threads {
		for _, h := range t.collector.Snapshot() {
			all = append(all, h.Score)
		}
	}
	if len(all) == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(all)))
	if globalLimit <= 0 || globalLimit > len(all) {
		globalLimit = len(all)
	}
	return all[globalLimit-1]
}

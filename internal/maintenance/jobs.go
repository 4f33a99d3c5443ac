package maintenance

import (
	"time"

	"github.com/kartikbazzad/bunbase/searchcore/internal/feed"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
	"github.com/kartikbazzad/bunbase/searchcore/internal/subdb"
)

// ClusterStateCalculator answers whether bucket should currently be served
// from the Ready sub-db (true) or NotReady (false), and whether it is
// exempt from moves because it is "active".
type ClusterStateCalculator interface {
	WantsReady(bucket metastore.BucketID) bool
	IsActive(bucket metastore.BucketID) bool
}

// BucketMover compares each bucket's configured readiness against which
// sub-db currently holds it and issues moves for mismatches.
type BucketMover struct {
	BaseJob
	triad    *subdb.Triad
	calc     ClusterStateCalculator
	freezer  *BucketFreezer
	handler  *feed.Handler
	delay    time.Duration
	interval time.Duration
	metrics  *metrics.Registry
}

// NewBucketMover builds the mover. handler supplies the fresh serial each
// batch of moves is stamped with, so the moved values clear the writers'
// replay guards.
func NewBucketMover(triad *subdb.Triad, calc ClusterStateCalculator, freezer *BucketFreezer, handler *feed.Handler, delay, interval time.Duration) *BucketMover {
	return &BucketMover{triad: triad, calc: calc, freezer: freezer, handler: handler, delay: delay, interval: interval}
}

// SetMetrics attaches the observable-counters registry; nil is a no-op.
func (j *BucketMover) SetMetrics(reg *metrics.Registry) { j.metrics = reg }

func (j *BucketMover) Name() string          { return "bucket_mover" }
func (j *BucketMover) Delay() time.Duration  { return j.delay }
func (j *BucketMover) Interval() time.Duration { return j.interval }

func (j *BucketMover) Run() bool {
	buckets := make(map[metastore.BucketID]struct{})
	for _, gid := range j.triad.Ready.Meta.AllGIDs() {
		e, _ := j.triad.Ready.Meta.Lookup(gid)
		buckets[e.Bucket] = struct{}{}
	}
	for _, gid := range j.triad.NotReady.Meta.AllGIDs() {
		e, _ := j.triad.NotReady.Meta.Lookup(gid)
		buckets[e.Bucket] = struct{}{}
	}

	for bucket := range buckets {
		if j.calc.IsActive(bucket) {
			continue // active buckets are exempt until deactivated
		}
		if j.freezer.IsFrozen(bucket) {
			j.freezer.AcquireExclusiveBucket(bucket, func(bool) { j.SetBlocked(false) })
			j.SetBlocked(true)
			continue
		}

		wantReady := j.calc.WantsReady(bucket)
		src := j.triad.NotReady
		srcKind, dstKind := subdb.NotReady, subdb.Ready
		if !wantReady {
			src = j.triad.Ready
			srcKind, dstKind = subdb.Ready, subdb.NotReady
		}
		gids := src.Meta.BucketGIDs(bucket)
		if len(gids) == 0 {
			continue
		}
		serial := j.handler.AllocSerial()
		for _, gid := range gids {
			if err := j.triad.Move(srcKind, dstKind, gid, serial); err == nil {
				j.metrics.BucketMoved(srcKind.String(), dstKind.String())
			}
		}
	}
	return true
}

// PruneRemovedDocuments removes tombstones older than AgeLimit from the
// Removed sub-db's meta store, then, when any were dropped, issues one
// PruneRemovedDocuments feed op per run carrying the cutoff.
type PruneRemovedDocuments struct {
	BaseJob
	removed  *subdb.SubDatabase
	handler  *feed.Handler
	ageLimit time.Duration
	delay    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewPruneRemovedDocuments(removed *subdb.SubDatabase, handler *feed.Handler, ageLimit, delay, interval time.Duration) *PruneRemovedDocuments {
	return &PruneRemovedDocuments{removed: removed, handler: handler, ageLimit: ageLimit, delay: delay, interval: interval, now: time.Now}
}

func (j *PruneRemovedDocuments) Name() string            { return "prune_removed_documents" }
func (j *PruneRemovedDocuments) Delay() time.Duration     { return j.delay }
func (j *PruneRemovedDocuments) Interval() time.Duration  { return j.interval }

func (j *PruneRemovedDocuments) Run() bool {
	cutoff := j.now().Add(-j.ageLimit).Unix()
	pruned := j.removed.Meta.PruneOlderThan(cutoff)
	if len(pruned) == 0 {
		return true
	}
	j.handler.PerformOperation(feed.Operation{Kind: feed.OpPruneRemovedDocuments, Timestamp: cutoff})
	return true
}

// HeartBeat periodically drives the feed handler's heartbeat, keeping
// lastSyncToken advancing during idle periods.
type HeartBeat struct {
	BaseJob
	handler  *feed.Handler
	delay    time.Duration
	interval time.Duration
}

func NewHeartBeat(handler *feed.Handler, delay, interval time.Duration) *HeartBeat {
	return &HeartBeat{handler: handler, delay: delay, interval: interval}
}

func (j *HeartBeat) Name() string           { return "heart_beat" }
func (j *HeartBeat) Delay() time.Duration    { return j.delay }
func (j *HeartBeat) Interval() time.Duration { return j.interval }
func (j *HeartBeat) Run() bool               { _ = j.handler.HeartBeat(); return true }

// WipeOldRemovedFields wipes schema fields whose creation timestamp is
// older than now - AgeLimit.
type WipeOldRemovedFields struct {
	BaseJob
	handler  *feed.Handler
	ageLimit time.Duration
	delay    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewWipeOldRemovedFields(handler *feed.Handler, ageLimit, delay, interval time.Duration) *WipeOldRemovedFields {
	return &WipeOldRemovedFields{handler: handler, ageLimit: ageLimit, delay: delay, interval: interval, now: time.Now}
}

func (j *WipeOldRemovedFields) Name() string           { return "wipe_old_removed_fields" }
func (j *WipeOldRemovedFields) Delay() time.Duration    { return j.delay }
func (j *WipeOldRemovedFields) Interval() time.Duration { return j.interval }

func (j *WipeOldRemovedFields) Run() bool {
	cutoff := j.now().Add(-j.ageLimit).Unix()
	j.handler.PerformOperation(feed.Operation{Kind: feed.OpWipeHistory, Timestamp: cutoff})
	return true
}

// SessionCache is the minimal surface SessionCachePruner needs from the
// match package's search/grouping session cache.
type SessionCache interface {
	PruneExpired(now time.Time) int
}

// SessionCachePruner drops expired grouping/search sessions.
type SessionCachePruner struct {
	BaseJob
	cache    SessionCache
	delay    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewSessionCachePruner(cache SessionCache, delay, interval time.Duration) *SessionCachePruner {
	return &SessionCachePruner{cache: cache, delay: delay, interval: interval, now: time.Now}
}

func (j *SessionCachePruner) Name() string           { return "session_cache_pruner" }
func (j *SessionCachePruner) Delay() time.Duration    { return j.delay }
func (j *SessionCachePruner) Interval() time.Duration { return j.interval }
func (j *SessionCachePruner) Run() bool               { j.cache.PruneExpired(j.now()); return true }

// LidSpaceCompaction issues compact+shrink against a sub-db's attributes
// when lid density falls below threshold.
type LidSpaceCompaction struct {
	BaseJob
	db        *subdb.SubDatabase
	threshold float64
	delay     time.Duration
	interval  time.Duration
}

func NewLidSpaceCompaction(db *subdb.SubDatabase, threshold float64, delay, interval time.Duration) *LidSpaceCompaction {
	return &LidSpaceCompaction{db: db, threshold: threshold, delay: delay, interval: interval}
}

func (j *LidSpaceCompaction) Name() string           { return "lid_space_compaction" }
func (j *LidSpaceCompaction) Delay() time.Duration    { return j.delay }
func (j *LidSpaceCompaction) Interval() time.Duration { return j.interval }

func (j *LidSpaceCompaction) Run() bool {
	numDocs := j.db.Meta.NumDocs()
	for _, a := range j.db.Attrs.All() {
		total := a.NumDocs()
		if total == 0 {
			continue
		}
		density := float64(numDocs) / float64(total)
		if density >= j.threshold {
			continue
		}
		if err := a.CompactLidSpace(uint32(numDocs)); err != nil {
			continue
		}
		_ = a.ShrinkLidSpace()
	}
	return true
}

package subdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute/writer"
	"github.com/kartikbazzad/bunbase/searchcore/internal/feed"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
	"github.com/kartikbazzad/bunbase/searchcore/rules"
	"github.com/kartikbazzad/bunbase/searchcore/storage"
)

// BucketReadiness answers whether a bucket's documents belong in the Ready
// sub-database. The cluster-state calculator the maintenance layer consults
// satisfies this; a nil readiness treats every bucket as ready.
type BucketReadiness interface {
	WantsReady(bucket metastore.BucketID) bool
}

// FeedView is the concrete feed.View over the sub-database triad: it routes
// puts to Ready or NotReady by bucket readiness, tombstones removals into
// Removed, and keeps summaries and attributes in step. Every method runs on
// the feed writer thread, so the view itself takes no locks beyond
// the field-history mutex.
type FeedView struct {
	triad      *Triad
	validators *schema.Validators
	selection  *rules.SelectionEngine
	readiness  BucketReadiness
	log        zerolog.Logger
	metrics    *metrics.Registry
	nowFn      func() time.Time

	// commitEachOp commits attributes immediately after every apply,
	// matching a zero visibility delay; with a positive delay the engine
	// drives commits through HeartBeat/ForceCommit instead.
	commitEachOp bool

	historyMu sync.Mutex
	history   *schema.Schema // fields removed by reconfigure, pending wipe
}

// NewFeedView builds a view over triad. validators, selection and readiness
// may each be nil: no shape validation, no selection support, all buckets
// ready.
func NewFeedView(triad *Triad, validators *schema.Validators, selection *rules.SelectionEngine, readiness BucketReadiness) *FeedView {
	return &FeedView{
		triad:        triad,
		validators:   validators,
		selection:    selection,
		readiness:    readiness,
		log:          zerolog.Nop(),
		nowFn:        time.Now,
		commitEachOp: true,
		history:      schema.New(),
	}
}

// SetLogger attaches structured logging for view-level events.
func (v *FeedView) SetLogger(log zerolog.Logger) { v.log = log }

// SetMetrics attaches the observable-counters registry. Nil is valid.
func (v *FeedView) SetMetrics(reg *metrics.Registry) { v.metrics = reg }

// SetValidators swaps the shape-hint validators, used when a reconfigure
// installs a new schema.
func (v *FeedView) SetValidators(validators *schema.Validators) { v.validators = validators }

// SetCommitEachOp switches between immediate per-op commits (visibility
// delay zero, the replay-state behavior) and deferred commits driven by
// heartbeats.
func (v *FeedView) SetCommitEachOp(on bool) { v.commitEachOp = on }

// RecordRemovedFields merges removed into the wipe history: fields dropped
// by a reconfigure wait there until WipeOldRemovedFields ages them out.
func (v *FeedView) RecordRemovedFields(removed *schema.Schema) {
	v.historyMu.Lock()
	defer v.historyMu.Unlock()
	v.history = schema.Union(v.history, removed)
}

// liveDB returns the sub-database currently holding gid, Ready first.
func (v *FeedView) liveDB(gid metastore.GID) (*SubDatabase, metastore.Entry, bool) {
	for _, db := range []*SubDatabase{v.triad.Ready, v.triad.NotReady} {
		if e, ok := db.Meta.Lookup(gid); ok && !e.Removed {
			return db, e, true
		}
	}
	return nil, metastore.Entry{}, false
}

func (v *FeedView) targetDB(gid metastore.GID) *SubDatabase {
	if v.readiness != nil && !v.readiness.WantsReady(gid.Bucket()) {
		return v.triad.NotReady
	}
	return v.triad.Ready
}

func (v *FeedView) PreparePut(gid feed.GID) (attribute.LID, bool) {
	_, e, ok := v.liveDB(gid)
	return e.LID, ok
}

func (v *FeedView) PrepareUpdate(gid feed.GID) (attribute.LID, bool) {
	return v.PreparePut(gid)
}

func (v *FeedView) PrepareMove(gid feed.GID) (attribute.LID, bool) {
	return v.PreparePut(gid)
}

func (v *FeedView) HandlePut(serial uint64, gid feed.GID, fields map[string]any, timestamp int64) error {
	if v.validators != nil {
		for name, value := range fields {
			if err := v.validators.Validate(name, value); err != nil {
				return fmt.Errorf("put: %w", err)
			}
		}
	}

	target := v.targetDB(gid)

	// A put of a relocated or tombstoned identity supersedes the old copy.
	if other, e, ok := v.liveDB(gid); ok && other != target {
		if err := v.clearFrom(other, gid, e.LID, serial); err != nil {
			return err
		}
	}
	v.triad.Removed.Meta.Delete(gid)

	lid, _ := target.Meta.Put(gid, gid.Bucket(), timestamp)
	if err := padAttributes(target, lid); err != nil {
		return err
	}

	if err := waitDone(func(done func(error)) {
		target.Writer.Put(serial, fields, lid, done)
	}); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	target.Summary.Put(lid, storage.Document(fields))

	if v.commitEachOp {
		if err := v.commitDB(target, serial); err != nil {
			return err
		}
	}
	v.metrics.DocCommitted(target.Kind.String())
	return nil
}

func (v *FeedView) HandleUpdate(serial uint64, gid feed.GID, fields map[string]any, timestamp int64) error {
	db, e, ok := v.liveDB(gid)
	if !ok {
		return fmt.Errorf("update: document not present")
	}
	if v.validators != nil {
		for name, value := range fields {
			if err := v.validators.Validate(name, value); err != nil {
				return fmt.Errorf("update: %w", err)
			}
		}
	}

	updates := make([]writer.FieldUpdate, 0, len(fields))
	for name, value := range fields {
		updates = append(updates, writer.FieldUpdate{Field: name, Value: value})
	}
	if err := waitDone(func(done func(error)) {
		db.Writer.Update(serial, updates, e.LID, done)
	}); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	doc, _ := db.Summary.Get(e.LID)
	if doc == nil {
		doc = storage.Document{}
	}
	for name, value := range fields {
		doc[name] = value
	}
	db.Summary.Put(e.LID, doc)
	db.Meta.Put(gid, e.Bucket, timestamp)

	if v.commitEachOp {
		return v.commitDB(db, serial)
	}
	return nil
}

func (v *FeedView) HandleRemove(serial uint64, gid feed.GID) error {
	db, e, ok := v.liveDB(gid)
	if !ok {
		// Already removed (or never present): replay-idempotent no-op.
		return nil
	}
	if err := v.clearFrom(db, gid, e.LID, serial); err != nil {
		return err
	}

	// Tombstone in the Removed sub-database, stamped with removal time so
	// PruneRemovedDocuments can age it out.
	now := v.nowFn().Unix()
	v.triad.Removed.Meta.Put(gid, e.Bucket, now)
	v.triad.Removed.Meta.Remove(gid, now)
	return nil
}

func (v *FeedView) HandleRemoveLocation(serial uint64, selection string, now int64) error {
	if v.selection == nil {
		return fmt.Errorf("remove location: no selection engine configured")
	}
	if now == 0 {
		now = v.nowFn().Unix()
	}
	for _, db := range []*SubDatabase{v.triad.Ready, v.triad.NotReady} {
		for _, gid := range db.Meta.AllGIDs() {
			e, ok := db.Meta.Lookup(gid)
			if !ok || e.Removed {
				continue
			}
			doc, _ := db.Summary.Get(e.LID)
			match, err := v.selection.Evaluate(selection, doc, now)
			if err != nil {
				return fmt.Errorf("remove location: %w", err)
			}
			if !match {
				continue
			}
			if err := v.HandleRemove(serial, gid); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *FeedView) HandleMove(serial uint64, gid feed.GID) error {
	db, _, ok := v.liveDB(gid)
	if !ok {
		return fmt.Errorf("move: document not present")
	}
	target := v.targetDB(gid)
	if db == target {
		return nil
	}
	return v.triad.Move(db.Kind, target.Kind, gid, serial)
}

func (v *FeedView) HandlePruneRemovedDocuments(serial uint64, olderThanSeconds int64) error {
	pruned := v.triad.Removed.Meta.PruneOlderThan(olderThanSeconds)
	if len(pruned) > 0 {
		v.log.Info().Int("count", len(pruned)).Uint64("serial", serial).Msg("pruned removed documents")
	}
	return nil
}

func (v *FeedView) HandleWipeOldRemovedFields(serial uint64, cutoffSeconds int64) error {
	v.historyMu.Lock()
	old := v.history.GetOldFields(cutoffSeconds)
	v.history = schema.SetDifference(v.history, old)
	v.historyMu.Unlock()

	names := make([]string, 0)
	for _, f := range old.AttributeFields() {
		names = append(names, f.Name)
	}
	for _, f := range old.SummaryFields() {
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		return nil
	}

	for _, db := range []*SubDatabase{v.triad.Ready, v.triad.Removed, v.triad.NotReady} {
		for _, name := range names {
			db.Summary.WipeField(name)
		}
	}
	v.log.Info().Strs("fields", names).Uint64("serial", serial).Msg("wiped old removed fields")
	return nil
}

// HeartBeat commits every attribute in every sub-database at serial,
// keeping lastSyncToken advancing through idle periods.
func (v *FeedView) HeartBeat(serial uint64) error {
	for _, db := range []*SubDatabase{v.triad.Ready, v.triad.Removed, v.triad.NotReady} {
		if err := v.commitDB(db, serial); err != nil {
			return err
		}
	}
	return nil
}

func (v *FeedView) ExistingTimestamp(gid feed.GID) (int64, bool) {
	if _, e, ok := v.liveDB(gid); ok {
		return e.Timestamp, true
	}
	if e, ok := v.triad.Removed.Meta.Lookup(gid); ok {
		return e.Timestamp, true
	}
	return 0, false
}

// clearFrom removes gid's presence from db: attribute values, summary body
// and meta entry.
func (v *FeedView) clearFrom(db *SubDatabase, gid metastore.GID, lid attribute.LID, serial uint64) error {
	if err := waitDone(func(done func(error)) {
		db.Writer.Remove(serial, lid, done)
	}); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	db.Summary.Remove(lid)
	db.Meta.Delete(gid)
	if v.commitEachOp {
		return v.commitDB(db, serial)
	}
	return nil
}

func (v *FeedView) commitDB(db *SubDatabase, serial uint64) error {
	return waitDone(func(done func(error)) {
		db.Writer.ForceCommit(serial, done)
	})
}

// padAttributes grows every attribute in db until lid is addressable.
func padAttributes(db *SubDatabase, lid attribute.LID) error {
	for name, a := range db.Attrs.All() {
		for a.NumDocs() <= uint32(lid) {
			if _, err := a.AddDoc(); err != nil {
				return fmt.Errorf("addDoc %s: %w", name, err)
			}
		}
	}
	return nil
}

// waitDone runs an async writer call and blocks until its completion
// callback fires.
func waitDone(start func(done func(error))) error {
	ch := make(chan error, 1)
	start(func(err error) { ch <- err })
	return <-ch
}

// Package searchcore implements a per-node search/indexing engine: a
// schema-driven attribute store, a serialized feed pipeline backed by a
// durable transaction log, a multi-threaded matcher with two-phase ranking,
// and a maintenance controller running the background jobs that keep the
// document databases healthy.
package searchcore

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/feed"
	"github.com/kartikbazzad/bunbase/searchcore/internal/feed/tlslog"
	"github.com/kartikbazzad/bunbase/searchcore/internal/maintenance"
	"github.com/kartikbazzad/bunbase/searchcore/internal/match"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
	"github.com/kartikbazzad/bunbase/searchcore/internal/posting"
	"github.com/kartikbazzad/bunbase/searchcore/internal/query"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
	"github.com/kartikbazzad/bunbase/searchcore/internal/subdb"
	"github.com/kartikbazzad/bunbase/searchcore/internal/util"
	"github.com/kartikbazzad/bunbase/searchcore/rules"
	"github.com/kartikbazzad/bunbase/searchcore/storage"
)

// TLSBackend selects the transaction-log implementation.
type TLSBackend string

const (
	// TLSBackendWAL uses the engine's own segmented write-ahead log.
	TLSBackendWAL TLSBackend = "wal"
	// TLSBackendBolt uses a bbolt database, one entry per serial.
	TLSBackendBolt TLSBackend = "bolt"
)

// Options configures an Engine.
type Options struct {
	DataDir string
	Schema  *schema.Schema

	TLSBackend    TLSBackend
	NumWriteLanes int

	// WriteFilterExpr is a CEL admission predicate over the node's resource
	// state ("disk_usage_ratio < 0.95"); empty admits every write.
	WriteFilterExpr string
	ResourceState   func() rules.ResourceState

	// ClusterState decides bucket readiness and activity; nil treats every
	// bucket as ready and inactive.
	ClusterState maintenance.ClusterStateCalculator

	// VisibilityDelay > 0 defers attribute commits to the heartbeat cadence
	// instead of committing after every operation.
	VisibilityDelay time.Duration

	Match match.Config

	StartMaintenance    bool
	MaintenanceInterval time.Duration
	PruneAgeLimit       time.Duration
	WipeAgeLimit        time.Duration
	LidDensityThreshold float64

	Logger zerolog.Logger
}

// DefaultOptions returns the standard engine configuration rooted at
// dataDir.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:             dataDir,
		Schema:              schema.New(),
		TLSBackend:          TLSBackendWAL,
		NumWriteLanes:       4,
		Match:               match.DefaultConfig(),
		StartMaintenance:    true,
		MaintenanceInterval: 10 * time.Second,
		PruneAgeLimit:       time.Hour,
		WipeAgeLimit:        24 * time.Hour,
		LidDensityThreshold: 0.5,
		Logger:              zerolog.Nop(),
	}
}

// Engine is one document database: the sub-database triad, the feed
// pipeline in front of it, the matcher over it and the maintenance
// controller beside it.
type Engine struct {
	opts       Options
	log        zerolog.Logger
	metrics    *metrics.Registry
	factory    *attribute.Factory
	triad      *subdb.Triad
	view       *subdb.FeedView
	tls        tlslog.Store
	handler    *feed.Handler
	freezer    *maintenance.BucketFreezer
	controller *maintenance.Controller
	selection  *rules.SelectionEngine
	profiles   *rules.ProfileRegistry
	matcher    *match.Matcher

	schemaMu sync.RWMutex
	schema   *schema.Schema

	idxMu          sync.RWMutex
	index          map[string]*fieldIndex
	docFields      map[attribute.LID]storage.Document
	committedLimit uint32
	indexedSerial  uint64
	indexedDocs    int

	closeMu sync.Mutex
	closed  bool
}

// fieldIndex is the in-memory inverted index for one field: the posting
// dictionary for lookup/range queries plus per-term token positions for
// phrase and proximity evaluation.
type fieldIndex struct {
	dict      *posting.Dictionary
	positions map[string]map[attribute.LID][]int
}

type allReady struct{}

func (allReady) WantsReady(metastore.BucketID) bool { return true }
func (allReady) IsActive(metastore.BucketID) bool   { return false }

// Open brings up an engine: builds the triad to opts.Schema, opens the
// transaction log, replays it, and (optionally) starts maintenance.
func Open(opts Options) (*Engine, error) {
	if opts.Schema == nil {
		opts.Schema = schema.New()
	}
	if opts.NumWriteLanes < 1 {
		opts.NumWriteLanes = 1
	}

	e := &Engine{
		opts:      opts,
		log:       opts.Logger,
		metrics:   metrics.New(),
		factory:   attribute.NewFactory(),
		schema:    opts.Schema,
		index:     make(map[string]*fieldIndex),
		docFields: make(map[attribute.LID]storage.Document),
	}

	e.triad = subdb.NewTriad(e.factory, opts.NumWriteLanes)
	for _, db := range []*subdb.SubDatabase{e.triad.Ready, e.triad.Removed, e.triad.NotReady} {
		if err := db.Reconfigure(opts.Schema, 1, opts.NumWriteLanes); err != nil {
			return nil, fmt.Errorf("searchcore: open: %w", err)
		}
	}

	validators, err := schema.NewValidators(opts.Schema)
	if err != nil {
		return nil, fmt.Errorf("searchcore: open: %w", err)
	}
	e.selection, err = rules.NewSelectionEngine()
	if err != nil {
		return nil, fmt.Errorf("searchcore: open: %w", err)
	}

	var readiness subdb.BucketReadiness = allReady{}
	calc := opts.ClusterState
	if calc == nil {
		calc = allReady{}
	} else {
		readiness = calc
	}

	e.view = subdb.NewFeedView(e.triad, validators, e.selection, readiness)
	e.view.SetLogger(e.log.With().Str("component", "feedview").Logger())
	e.view.SetMetrics(e.metrics)

	var filter feed.WriteFilter
	if opts.WriteFilterExpr != "" {
		state := opts.ResourceState
		if state == nil {
			state = func() rules.ResourceState { return rules.ResourceState{} }
		}
		filter, err = rules.NewCELWriteFilter(opts.WriteFilterExpr, state)
		if err != nil {
			return nil, fmt.Errorf("searchcore: open: write filter: %w", err)
		}
	}

	switch opts.TLSBackend {
	case TLSBackendBolt:
		e.tls, err = tlslog.OpenBoltStore(filepath.Join(opts.DataDir, "tls.db"))
	default:
		e.tls, err = tlslog.OpenWALStore(filepath.Join(opts.DataDir, "tls"))
	}
	if err != nil {
		return nil, fmt.Errorf("searchcore: open: %w", err)
	}

	e.handler = feed.New(e.view, e.tls, filter)
	e.handler.SetLogger(e.log.With().Str("component", "feed").Logger())
	e.handler.SetMetrics(e.metrics)

	// Replay runs with immediate commits (visibility delay 0); the
	// configured delay only applies once the handler is in normal state.
	if err := e.handler.Load(); err != nil {
		e.tls.Close()
		return nil, fmt.Errorf("searchcore: open: %w", err)
	}
	for _, db := range []*subdb.SubDatabase{e.triad.Ready, e.triad.Removed, e.triad.NotReady} {
		limit := uint32(0)
		for _, a := range db.Attrs.All() {
			if n := a.NumDocs(); n > limit {
				limit = n
			}
		}
		if err := db.Writer.OnReplayDone(limit); err != nil {
			e.tls.Close()
			return nil, fmt.Errorf("searchcore: open: replay done: %w", err)
		}
	}
	if opts.VisibilityDelay > 0 {
		e.view.SetCommitEachOp(false)
	}

	e.profiles = rules.NewProfileRegistry()
	if err := e.profiles.Register("default", "1.0", "", math.Inf(-1)); err != nil {
		e.tls.Close()
		return nil, fmt.Errorf("searchcore: open: %w", err)
	}
	e.matcher = match.NewMatcher(engineSearchView{e}, e.profiles, opts.Match)
	e.matcher.SetMetrics(e.metrics)

	e.freezer = maintenance.NewBucketFreezer()
	e.controller = maintenance.New()
	e.controller.SetLogger(e.log.With().Str("component", "maintenance").Logger())
	e.controller.SetMetrics(e.metrics)
	e.registerDefaultJobs(calc)
	if opts.StartMaintenance {
		e.controller.Start()
	}

	e.log.Info().Str("data_dir", opts.DataDir).Uint64("serial", e.handler.CurrentSerial()).Msg("engine open")
	return e, nil
}

func (e *Engine) registerDefaultJobs(calc maintenance.ClusterStateCalculator) {
	interval := e.opts.MaintenanceInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	delay := interval

	mover := maintenance.NewBucketMover(e.triad, calc, e.freezer, e.handler, delay, interval)
	mover.SetMetrics(e.metrics)
	e.controller.RegisterJob(mover)
	e.controller.RegisterJob(maintenance.NewPruneRemovedDocuments(e.triad.Removed, e.handler, e.opts.PruneAgeLimit, delay, interval))
	e.controller.RegisterJob(maintenance.NewHeartBeat(e.handler, delay, interval))
	e.controller.RegisterJob(maintenance.NewWipeOldRemovedFields(e.handler, e.opts.WipeAgeLimit, delay, interval))
	e.controller.RegisterJob(maintenance.NewSessionCachePruner(e.matcher.Sessions(), delay, interval))
	e.controller.RegisterJob(maintenance.NewLidSpaceCompaction(e.triad.Ready, e.opts.LidDensityThreshold, delay, interval))
}

// Put feeds a full-document put.
func (e *Engine) Put(docID string, fields map[string]any, timestamp int64) feed.Reply {
	return e.handler.PerformOperation(feed.Operation{
		Kind: feed.OpPut, DocID: docID, Fields: fields, Timestamp: timestamp,
	})
}

// Update feeds a partial update. With createIfNonExistent the update is
// upgraded to a put when the document is missing.
func (e *Engine) Update(docID string, fields map[string]any, timestamp int64, createIfNonExistent bool) feed.Reply {
	return e.handler.PerformOperation(feed.Operation{
		Kind: feed.OpUpdate, DocID: docID, Fields: fields, Timestamp: timestamp,
		CreateIfNonExistent: createIfNonExistent,
	})
}

// Remove feeds a removal. Removals are never rejected by the write filter.
func (e *Engine) Remove(docID string, timestamp int64) feed.Reply {
	return e.handler.PerformOperation(feed.Operation{
		Kind: feed.OpRemove, DocID: docID, Timestamp: timestamp,
	})
}

// RemoveWhere feeds a selection-based removal (RemoveLocation): every
// document matching the CEL selection is removed under one serial.
func (e *Engine) RemoveWhere(selection string) feed.Reply {
	return e.handler.PerformOperation(feed.Operation{
		Kind: feed.OpRemoveLocation, Selection: selection,
	})
}

// RegisterRankProfile compiles and registers a rank profile for Search.
// secondPhase may be empty.
func (e *Engine) RegisterRankProfile(name, firstPhase, secondPhase string, rankDropLimit float64) error {
	return e.profiles.Register(name, firstPhase, secondPhase, rankDropLimit)
}

// Search serves a query against the Ready sub-database.
func (e *Engine) Search(req match.Request) (*match.Result, error) {
	return e.matcher.Search(req)
}

// Docsums returns field values for lids in ascending lid order, preferring
// an active session.
func (e *Engine) Docsums(sessionID string, lids []attribute.LID) []map[string]any {
	return e.matcher.Docsums(sessionID, lids)
}

// RangeSearch walks field's posting dictionary between low and high,
// honoring rangeLimit semantics (positive takes the first N hits from
// the low side, negative the last N from the high side, 0 unlimited).
func (e *Engine) RangeSearch(field, low, high string, rangeLimit int) []attribute.LID {
	e.refreshIndex()
	e.idxMu.RLock()
	defer e.idxMu.RUnlock()
	fi, ok := e.index[field]
	if !ok {
		return nil
	}
	return fi.dict.RangeQuery(low, high, rangeLimit, nil)
}

// ApproximateHits returns an upper bound on the documents matching term in
// field, the input to the filter-vs-posting cost model.
func (e *Engine) ApproximateHits(field, term string) int {
	e.refreshIndex()
	e.idxMu.RLock()
	defer e.idxMu.RUnlock()
	fi, ok := e.index[field]
	if !ok {
		return 0
	}
	return fi.dict.ApproximateHits(term)
}

// Schema returns the engine's current schema snapshot.
func (e *Engine) Schema() *schema.Schema {
	e.schemaMu.RLock()
	defer e.schemaMu.RUnlock()
	return e.schema
}

// Reconfigure evolves every sub-database to newSchema. Fields present in
// both schemas keep their live attribute instances; dropped fields enter
// the wipe history.
func (e *Engine) Reconfigure(newSchema *schema.Schema) error {
	e.schemaMu.Lock()
	old := e.schema
	e.schemaMu.Unlock()

	serial := e.handler.CurrentSerial() + 1
	for _, db := range []*subdb.SubDatabase{e.triad.Ready, e.triad.Removed, e.triad.NotReady} {
		if err := db.Reconfigure(newSchema, serial, e.opts.NumWriteLanes); err != nil {
			return fmt.Errorf("searchcore: reconfigure: %w", err)
		}
	}

	removed := schema.SetDifference(old, newSchema)
	e.view.RecordRemovedFields(removed)

	validators, err := schema.NewValidators(newSchema)
	if err != nil {
		e.handler.RejectConfig()
		return fmt.Errorf("searchcore: reconfigure: %w", err)
	}
	e.view.SetValidators(validators)

	e.schemaMu.Lock()
	e.schema = newSchema
	e.schemaMu.Unlock()

	e.idxMu.Lock()
	e.indexedSerial = 0 // force a rebuild on the next read
	e.idxMu.Unlock()

	e.log.Info().Uint64("serial", serial).Msg("schema reconfigured")
	return nil
}

// Flush flushes every attribute at the current serial (recording each
// attribute's flushed serial) and records the flush watermark with the
// feed handler. Pruning the transaction log is a
// separate, explicit step (PruneTransactionLog): a flush that silently
// pruned would make an aborted flush unrecoverable.
func (e *Engine) Flush() error {
	serial := e.handler.CurrentSerial()
	for _, db := range []*subdb.SubDatabase{e.triad.Ready, e.triad.Removed, e.triad.NotReady} {
		for _, target := range db.Attrs.FlushTargets() {
			task := target.InitFlush(serial)
			if task == nil {
				continue
			}
			if err := task(); err != nil {
				return fmt.Errorf("searchcore: flush %s: %w", target.Name, err)
			}
		}
	}
	e.handler.FlushDone(serial)
	return nil
}

// CompactLidSpace runs one lid-space compaction pass over the Ready
// sub-database, the same work the periodic LidSpaceCompaction job does.
func (e *Engine) CompactLidSpace() {
	maintenance.NewLidSpaceCompaction(e.triad.Ready, e.opts.LidDensityThreshold, 0, 0).Run()
}

// PruneTransactionLog drops every logged operation at or below uptoSerial.
// A rejected prune is fatal to the caller.
func (e *Engine) PruneTransactionLog(uptoSerial uint64) error {
	return e.handler.TLSPrune(uptoSerial)
}

// Metrics exposes the engine's observable-counters registry.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// Freezer exposes the bucket-freeze interlock shared by maintenance jobs
// and read-for-write visitors.
func (e *Engine) Freezer() *maintenance.BucketFreezer { return e.freezer }

// Close stops maintenance, the feed pipeline and the transaction log.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return util.ErrEngineClosed
	}
	e.closed = true

	e.controller.KillJobs()
	e.handler.Close()
	for _, db := range []*subdb.SubDatabase{e.triad.Ready, e.triad.Removed, e.triad.NotReady} {
		db.Writer.Close()
	}
	if err := e.tls.Close(); err != nil {
		return fmt.Errorf("searchcore: close: %w", err)
	}
	e.log.Info().Msg("engine closed")
	return nil
}

// engineSearchView adapts the engine's inverted index and summary store to
// the matcher's read-side surface.
type engineSearchView struct{ e *Engine }

func (v engineSearchView) TermHits(field, term string) query.HitList {
	v.e.refreshIndex()
	v.e.idxMu.RLock()
	defer v.e.idxMu.RUnlock()
	fi, ok := v.e.index[field]
	if !ok {
		return nil
	}
	byLID, ok := fi.positions[strings.ToLower(term)]
	if !ok {
		return nil
	}
	hits := make(query.HitList, 0, len(byLID))
	for lid, positions := range byLID {
		hits = append(hits, query.Hit{DocID: uint32(lid), Positions: positions})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	return hits
}

func (v engineSearchView) DocFields(lid attribute.LID) map[string]any {
	v.e.refreshIndex()
	v.e.idxMu.RLock()
	defer v.e.idxMu.RUnlock()
	doc, ok := v.e.docFields[lid]
	if !ok {
		return map[string]any{}
	}
	return doc
}

func (v engineSearchView) CommittedDocIdLimit() uint32 {
	v.e.refreshIndex()
	v.e.idxMu.RLock()
	defer v.e.idxMu.RUnlock()
	return v.e.committedLimit
}

// refreshIndex rebuilds the inverted index from the Ready sub-database's
// summaries when anything has fed since the last build. Maintenance moves
// don't advance the serial, so the live-document count doubles as a change
// signal.
func (e *Engine) refreshIndex() {
	serial := e.handler.CurrentSerial()
	numDocs := e.triad.Ready.Meta.NumDocs()

	e.idxMu.RLock()
	fresh := e.indexedSerial == serial && e.indexedDocs == numDocs && e.indexedSerial != 0
	e.idxMu.RUnlock()
	if fresh {
		return
	}

	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	if e.indexedSerial == serial && e.indexedDocs == numDocs && e.indexedSerial != 0 {
		return
	}

	index := make(map[string]*fieldIndex)
	docFields := make(map[attribute.LID]storage.Document)
	limit := uint32(0)

	meta := e.triad.Ready.Meta
	for _, gid := range meta.AllGIDs() {
		entry, ok := meta.Lookup(gid)
		if !ok || entry.Removed {
			continue
		}
		doc, ok := e.triad.Ready.Summary.Get(entry.LID)
		if !ok {
			continue
		}
		docFields[entry.LID] = doc
		if uint32(entry.LID)+1 > limit {
			limit = uint32(entry.LID) + 1
		}
		for field, value := range doc {
			fi, ok := index[field]
			if !ok {
				fi = &fieldIndex{positions: make(map[string]map[attribute.LID][]int)}
				index[field] = fi
			}
			for pos, term := range tokenize(value) {
				byLID, ok := fi.positions[term]
				if !ok {
					byLID = make(map[attribute.LID][]int)
					fi.positions[term] = byLID
				}
				byLID[entry.LID] = append(byLID[entry.LID], pos)
			}
		}
	}

	for _, fi := range index {
		dict := posting.NewDictionary(int(limit))
		for term, byLID := range fi.positions {
			lids := make([]attribute.LID, 0, len(byLID))
			for lid := range byLID {
				lids = append(lids, lid)
			}
			dict.Index(term, lids)
		}
		fi.dict = dict
	}

	e.index = index
	e.docFields = docFields
	e.committedLimit = limit
	e.indexedSerial = serial
	e.indexedDocs = numDocs
}

// tokenize splits a field value into lowercase index terms. Strings split
// on whitespace with token positions; everything else indexes as a single
// exact term.
func tokenize(value any) []string {
	switch v := value.(type) {
	case string:
		fields := strings.Fields(strings.ToLower(v))
		return fields
	case []any:
		terms := make([]string, 0, len(v))
		for _, item := range v {
			terms = append(terms, tokenize(item)...)
		}
		return terms
	default:
		return []string{strings.ToLower(fmt.Sprintf("%v", v))}
	}
}

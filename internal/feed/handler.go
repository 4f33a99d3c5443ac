package feed

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kartikbazzad/bunbase/searchcore/internal/feed/tlslog"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metastore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
)

// Handler serializes every mutating operation through a single writer
// task executor, assigns monotonically increasing serial numbers, persists
// ops to the transaction log ahead of application and dispatches them to
// the active FeedView.
type Handler struct {
	lane    *writerLane
	view    View
	tls     tlslog.Store
	filter  WriteFilter
	log     zerolog.Logger
	metrics *metrics.Registry

	mu               sync.RWMutex // guards state/serial/lastFlushDoneTok for external reads
	state            State
	serial           uint64
	lastFlushDoneTok uint64
}

// New constructs a Handler in the Load state. Call Load to replay the
// transaction log and transition toward Normal.
func New(view View, tls tlslog.Store, filter WriteFilter) *Handler {
	return &Handler{
		lane:  newWriterLane(),
		view:  view,
		tls:   tls,
		filter: filter,
		state: StateLoad,
		log:   zerolog.Nop(),
	}
}

// SetLogger attaches structured logging for feed events (serial numbers,
// state transitions, rejections). A Handler built via New logs nowhere
// until this is called.
func (h *Handler) SetLogger(log zerolog.Logger) { h.log = log }

// SetMetrics attaches the observable-counters registry. Nil is valid.
func (h *Handler) SetMetrics(reg *metrics.Registry) { h.metrics = reg }

// AllocSerial assigns and returns a fresh serial on the writer thread, for
// internally generated mutations (bucket moves) that apply directly to the
// sub-databases instead of traveling the operation path.
func (h *Handler) AllocSerial() uint64 {
	var s uint64
	h.lane.Do(func() { s = h.nextSerial() })
	return s
}

// CurrentSerial returns the highest serial assigned so far.
func (h *Handler) CurrentSerial() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.serial
}

// State returns the handler's current state.
func (h *Handler) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// wireOp is the JSON envelope an Operation is logged as.
type wireOp struct {
	Serial uint64
	Op     Operation
}

// Load replays the transaction log in serial order and transitions to
// Normal ("Load -> ReplayTransactionLog -> Normal").
func (h *Handler) Load() error {
	h.mu.Lock()
	h.state = StateReplayTransactionLog
	h.mu.Unlock()

	entries, err := h.tls.ReadAll()
	if err != nil {
		return fmt.Errorf("feed: load: read tls: %w", err)
	}

	var maxSerial uint64
	for _, e := range entries {
		var w wireOp
		if err := json.Unmarshal(e.Payload, &w); err != nil {
			return fmt.Errorf("feed: load: decode entry %d: %w", e.Serial, err)
		}
		if err := h.applyOp(w.Serial, w.Op); err != nil {
			return fmt.Errorf("feed: load: replay serial %d: %w", w.Serial, err)
		}
		if w.Serial > maxSerial {
			maxSerial = w.Serial
		}
	}

	h.mu.Lock()
	h.serial = maxSerial
	h.state = StateNormal
	h.mu.Unlock()
	h.log.Info().Uint64("replayed_to_serial", maxSerial).Msg("feed handler replay complete, entering normal state")
	return nil
}

// PerformOperation runs op on the writer thread: assigns a serial, checks
// staleness/resource limits, writes to the TLS ahead of application, then
// applies it to the View.
func (h *Handler) PerformOperation(op Operation) Reply {
	var reply Reply
	h.lane.Do(func() {
		reply = h.performLocked(op)
	})
	return reply
}

func (h *Handler) performLocked(op Operation) Reply {
	h.mu.RLock()
	state := h.state
	h.mu.RUnlock()

	if state == StateRejectedConfig {
		if op.Kind == OpWipeHistory {
			// still runs, never TLS-persisted.
			serial := h.nextSerial()
			_ = h.applyOp(serial, op)
			return Reply{Result: ResultNone, Serial: serial}
		}
		return Reply{Result: ResultPermanentError}
	}

	gid := metastore.ComputeGID(op.DocID)

	if op.Kind == OpPut || op.Kind == OpUpdate || op.Kind == OpRemove {
		if existing, ok := h.view.ExistingTimestamp(gid); ok && op.PrevTimestamp != 0 && existing > op.PrevTimestamp {
			// Outdated op: silently ignored, not written to TLS.
			return Reply{Result: ResultNone, ExistingTimestamp: existing}
		}
	}

	if (op.Kind == OpPut || op.Kind == OpUpdate) && h.filter != nil && !h.filter.Admit(op) {
		h.metrics.ResourceRejected()
		h.log.Warn().Str("doc_id", op.DocID).Msg("write rejected: resource exhausted")
		return Reply{Result: ResultResourceExhausted}
	}

	if op.Kind == OpUpdate {
		if _, existed := h.view.PrepareUpdate(gid); !existed {
			if op.CreateIfNonExistent {
				op.Kind = OpPut
			} else {
				existing, _ := h.view.ExistingTimestamp(gid)
				return Reply{Result: ResultNone, ExistingTimestamp: existing}
			}
		}
	}
	if op.Kind == OpPut {
		h.view.PreparePut(gid)
	}

	serial := h.nextSerial()

	if op.Kind != OpWipeHistory {
		if err := h.writeTLS(serial, op); err != nil {
			return Reply{Result: ResultTransientError, Serial: serial}
		}
	}

	if err := h.applyOp(serial, op); err != nil {
		h.log.Error().Err(err).Uint64("serial", serial).Str("doc_id", op.DocID).Msg("feed op rejected: permanent error")
		return Reply{Result: ResultPermanentError, Serial: serial}
	}

	return Reply{Result: ResultNone, Serial: serial}
}

// HandleMove applies a Move op for gid, used by the BucketMover job.
func (h *Handler) HandleMove(docID string) Reply {
	return h.PerformOperation(Operation{Kind: OpMove, DocID: docID})
}

// HeartBeat assigns a fresh serial and commits every attribute at it,
// keeping lastSyncToken advancing during idle periods.
func (h *Handler) HeartBeat() error {
	var err error
	h.lane.Do(func() {
		h.mu.RLock()
		state := h.state
		h.mu.RUnlock()
		if state == StateRejectedConfig {
			return
		}
		serial := h.nextSerial()
		err = h.view.HeartBeat(serial)
	})
	return err
}

// FlushDone records that flushing has completed up to tok. The watermark is
// monotone: it never moves backwards. FlushDone does not prune the
// transaction log in any state; pruning happens only through TLSPrune.
func (h *Handler) FlushDone(tok uint64) {
	h.lane.Do(func() {
		h.mu.Lock()
		if tok > h.lastFlushDoneTok {
			h.lastFlushDoneTok = tok
		}
		h.mu.Unlock()
	})
}

// TLSPrune prunes the transaction log up to tok. A rejected prune is fatal
// to the caller: the error is returned rather than swallowed so the caller
// (Engine.PruneTransactionLog) can abort cleanly instead of silently
// diverging.
func (h *Handler) TLSPrune(tok uint64) error {
	var err error
	h.lane.Do(func() {
		err = h.tls.Prune(tok)
	})
	return err
}

// ChangeToNormalFeedState transitions out of ReplayTransactionLog (or
// RejectedConfig, once a corrected schema has been accepted) into Normal.
func (h *Handler) ChangeToNormalFeedState() {
	h.lane.Do(func() {
		h.mu.Lock()
		h.state = StateNormal
		h.mu.Unlock()
	})
}

// RejectConfig transitions into RejectedConfig: subsequent mutations return
// a permanent error and are not logged, except WipeHistory which still
// runs unlogged.
func (h *Handler) RejectConfig() {
	h.lane.Do(func() {
		h.mu.Lock()
		h.state = StateRejectedConfig
		h.mu.Unlock()
	})
}

func (h *Handler) Close() {
	h.lane.Close()
}

func (h *Handler) nextSerial() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.serial++
	return h.serial
}

func (h *Handler) writeTLS(serial uint64, op Operation) error {
	payload, err := json.Marshal(wireOp{Serial: serial, Op: op})
	if err != nil {
		return fmt.Errorf("feed: encode op: %w", err)
	}
	return h.tls.Append(tlslog.Entry{Serial: serial, Payload: payload})
}

func (h *Handler) applyOp(serial uint64, op Operation) error {
	gid := metastore.ComputeGID(op.DocID)
	switch op.Kind {
	case OpPut:
		return h.view.HandlePut(serial, gid, op.Fields, op.Timestamp)
	case OpUpdate:
		return h.view.HandleUpdate(serial, gid, op.Fields, op.Timestamp)
	case OpRemove:
		return h.view.HandleRemove(serial, gid)
	case OpRemoveLocation:
		return h.view.HandleRemoveLocation(serial, op.Selection, op.Timestamp)
	case OpMove:
		return h.view.HandleMove(serial, gid)
	case OpPruneRemovedDocuments:
		return h.view.HandlePruneRemovedDocuments(serial, op.Timestamp)
	case OpWipeHistory:
		return h.view.HandleWipeOldRemovedFields(serial, op.Timestamp)
	default:
		return fmt.Errorf("feed: unknown op kind %v", op.Kind)
	}
}

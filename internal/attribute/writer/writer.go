// Package writer implements the AttributeWriter: it routes
// document puts, updates, removes and commits to attribute-write lanes
// bucketed by field name, so that fields sharing a lane update atomically
// with respect to readers of that lane's generation.
package writer

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
)

// WriteContext groups the attributes pinned to one executor lane.
type WriteContext struct {
	ExecutorID             int
	FieldNames              []string
	HasStructFieldAttribute bool
	attrs                   []attribute.Attribute
	lane                    *lane
}

// AttributeWriter is the write-side router over an attribute manager.
type AttributeWriter struct {
	mgr      *attribute.Manager
	numLanes int
	contexts map[int]*WriteContext
	mu       sync.RWMutex
}

// New builds an AttributeWriter over mgr with numLanes executor lanes. Field
// -> lane assignment is computed once at construction time from a hash of
// the field name.
func New(mgr *attribute.Manager, numLanes int) *AttributeWriter {
	if numLanes < 1 {
		numLanes = 1
	}
	w := &AttributeWriter{
		mgr:      mgr,
		numLanes: numLanes,
		contexts: make(map[int]*WriteContext),
	}
	for name, a := range mgr.All() {
		id := executorIDFor(name, numLanes)
		ctx, ok := w.contexts[id]
		if !ok {
			ctx = &WriteContext{ExecutorID: id, lane: newLane(1024)}
			w.contexts[id] = ctx
		}
		ctx.FieldNames = append(ctx.FieldNames, name)
		ctx.attrs = append(ctx.attrs, a)
		ctx.HasStructFieldAttribute = ctx.HasStructFieldAttribute || strings.Contains(name, ".")
	}
	return w
}

func executorIDFor(fieldName string, numLanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fieldName))
	return int(h.Sum32() % uint32(numLanes))
}

// Contexts returns the write contexts, one per non-empty lane.
func (w *AttributeWriter) Contexts() []*WriteContext {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*WriteContext, 0, len(w.contexts))
	for _, c := range w.contexts {
		out = append(out, c)
	}
	return out
}

// Close stops every lane's goroutine after draining queued work.
func (w *AttributeWriter) Close() {
	for _, c := range w.Contexts() {
		c.lane.Close()
	}
}

// FieldValues is a document's per-field values, already extracted by the
// caller (document field value parsing is out of scope).
type FieldValues map[string]any

// Put applies a full document put at lid. For each write context, the
// relevant field values are applied by one PutTask on that context's lane;
// every apply is guarded by lastSyncToken < serial to make replay
// idempotent. onDone is invoked once every lane has finished (or
// immediately, when the writer has no write contexts).
func (w *AttributeWriter) Put(serial uint64, doc FieldValues, lid attribute.LID, onDone func(error)) {
	w.dispatch(func(ctx *WriteContext) func() error {
		return func() error {
			for _, a := range ctx.attrs {
				if a.LastSyncToken() >= serial {
					continue // already applied; replay is a no-op
				}
				v, ok := doc[a.Name()]
				if !ok {
					continue
				}
				if err := a.Put(lid, v); err != nil {
					return err
				}
			}
			return nil
		}
	}, onDone)
}

// FieldUpdate is one partial-update instruction against a single field.
type FieldUpdate struct {
	Field string
	Value any
}

// Update applies a partial update, bucketing per-field updates by their
// attribute's lane and executing one batch task per lane.
func (w *AttributeWriter) Update(serial uint64, updates []FieldUpdate, lid attribute.LID, onDone func(error)) {
	byField := make(map[string]any, len(updates))
	for _, u := range updates {
		byField[u.Field] = u.Value
	}
	w.dispatch(func(ctx *WriteContext) func() error {
		return func() error {
			for _, a := range ctx.attrs {
				v, ok := byField[a.Name()]
				if !ok {
					continue
				}
				if a.LastSyncToken() >= serial {
					continue
				}
				if err := a.Put(lid, v); err != nil {
					return err
				}
			}
			return nil
		}
	}, onDone)
}

// Remove clears lid from every attribute. The guard is <= rather than <
// because the document-move idiom re-asserts the same serial when a
// document is relocated between sub-databases.
func (w *AttributeWriter) Remove(serial uint64, lid attribute.LID, onDone func(error)) {
	w.dispatch(func(ctx *WriteContext) func() error {
		return func() error {
			for _, a := range ctx.attrs {
				if a.LastSyncToken() > serial {
					continue
				}
				if err := a.ClearDoc(lid); err != nil {
					return err
				}
			}
			return nil
		}
	}, onDone)
}

// ForceCommit schedules a commit task on every lane. Committing is a no-op
// when an attribute's lastSyncToken already exceeds serial.
func (w *AttributeWriter) ForceCommit(serial uint64, onDone func(error)) {
	w.dispatch(func(ctx *WriteContext) func() error {
		return func() error {
			for _, a := range ctx.attrs {
				if a.LastSyncToken() > serial {
					continue
				}
				if _, err := a.Commit(serial); err != nil {
					return err
				}
			}
			return nil
		}
	}, onDone)
}

// CompactLidSpace compacts every attribute to wantedLimit, guarded by
// lastSyncToken < serial. It commits first: an attribute can have been
// emptied by a later reconfig and appear smaller than expected during
// replay, so the commit establishes a consistent baseline before compacting.
func (w *AttributeWriter) CompactLidSpace(wantedLimit uint32, serial uint64, onDone func(error)) {
	w.dispatch(func(ctx *WriteContext) func() error {
		return func() error {
			for _, a := range ctx.attrs {
				if a.LastSyncToken() >= serial {
					continue
				}
				if _, err := a.Commit(serial); err != nil {
					return err
				}
				if err := a.CompactLidSpace(wantedLimit); err != nil {
					return err
				}
			}
			return nil
		}
	}, onDone)
}

// OnReplayDone pads, compacts and shrinks every attribute to limit, called
// once transaction-log replay has caught the engine up to the live feed.
func (w *AttributeWriter) OnReplayDone(limit uint32) error {
	var firstErr error
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, ctx := range w.Contexts() {
		wg.Add(1)
		ctx.lane.Submit(func() {
			defer wg.Done()
			for _, a := range ctx.attrs {
				for a.NumDocs() < limit {
					if _, err := a.AddDoc(); err != nil {
						mu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						mu.Unlock()
						return
					}
				}
				if err := a.CompactLidSpace(limit); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				if err := a.ShrinkLidSpace(); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		})
	}
	wg.Wait()
	return firstErr
}

// dispatch runs taskFor(ctx) on every context's lane concurrently and
// invokes onDone exactly once after all lanes finish, with the first
// non-nil error observed (if any).
func (w *AttributeWriter) dispatch(taskFor func(*WriteContext) func() error, onDone func(error)) {
	contexts := w.Contexts()
	if len(contexts) == 0 {
		if onDone != nil {
			onDone(nil)
		}
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, ctx := range contexts {
		wg.Add(1)
		task := taskFor(ctx)
		ctx.lane.Submit(func() {
			defer wg.Done()
			if err := task(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}

	go func() {
		wg.Wait()
		if onDone != nil {
			onDone(firstErr)
		}
	}()
}

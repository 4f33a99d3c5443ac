package attribute

import "sync"

// Generation is a monotonically increasing counter bumped by every mutation
// that changes an attribute's visible data. It replaces source-style smart
// pointers and cyclic attribute/enum-guard/dictionary references: a Guard
// pins a generation number instead of holding a reference. There is no
// background sweep; memory is released only by an attribute's
// ShrinkLidSpace, once no guard pins a generation at or before its
// compaction.
type Generation uint64

// GenerationHandler tracks the current generation of one attribute and the
// set of generations pinned by outstanding guards.
type GenerationHandler struct {
	mu         sync.Mutex
	current    Generation
	pinCounts  map[Generation]int
	firstUsed  Generation // not maintained; FirstUsedGeneration derives the value from pinCounts
}

// NewGenerationHandler creates a handler starting at generation 0.
func NewGenerationHandler() *GenerationHandler {
	return &GenerationHandler{
		pinCounts: make(map[Generation]int),
	}
}

// Current returns the generation currently being written to.
func (h *GenerationHandler) Current() Generation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// IncGeneration bumps the current generation, as commit() does after
// publishing new data, and returns the new value.
func (h *GenerationHandler) IncGeneration() Generation {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current++
	return h.current
}

// TakeGuard pins the current generation and returns a Guard whose Release
// must be called exactly once by the caller (Go has no destructors, so this
// stands in for the RAII handle).
func (h *GenerationHandler) TakeGuard() *Guard {
	h.mu.Lock()
	defer h.mu.Unlock()
	gen := h.current
	h.pinCounts[gen]++
	return &Guard{handler: h, generation: gen}
}

// release decrements the pin count for a generation. Called once by
// Guard.Release.
func (h *GenerationHandler) release(gen Generation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pinCounts[gen]--
	if h.pinCounts[gen] <= 0 {
		delete(h.pinCounts, gen)
	}
}

// FirstUsedGeneration returns the oldest generation any live guard pins, or
// the current generation if nothing is pinned. compactLidSpace/shrinkLidSpace
// use this to decide whether old data can be physically released: shrink
// requires that the first used generation exceed the generation at which
// compact was invoked.
func (h *GenerationHandler) FirstUsedGeneration() Generation {
	h.mu.Lock()
	defer h.mu.Unlock()
	oldest := h.current
	for gen, count := range h.pinCounts {
		if count > 0 && gen < oldest {
			oldest = gen
		}
	}
	return oldest
}

// HasReaders reports whether any guard is currently outstanding.
func (h *GenerationHandler) HasReaders() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.pinCounts {
		if c > 0 {
			return true
		}
	}
	return false
}

// Guard is a read-side RAII-style handle extending the lifetime of the
// generation it was taken against. Release must be called when the reader
// is done; a Guard must never be copied after use.
type Guard struct {
	handler    *GenerationHandler
	generation Generation
	released   bool
	mu         sync.Mutex
}

// Generation returns the pinned generation.
func (g *Guard) Generation() Generation {
	return g.generation
}

// Release unpins the generation. Safe to call multiple times; only the
// first call has an effect.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.handler.release(g.generation)
}

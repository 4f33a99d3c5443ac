// Package attribute implements the column-oriented per-field value store:
// one Attribute per schema field, addressed by a dense
// local document id (LID), with schema evolution (reconfiguration),
// bucketed concurrent writes and lid-space compaction.
package attribute

import (
	"fmt"
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// LID is a dense 32-bit local document id, an index into per-attribute
// value arrays.
type LID uint32

// Config describes one attribute's static configuration, derived from a
// schema.AttributeField plus collection-specific tuning.
type Config struct {
	Name           string
	BasicType      schema.DataType
	CollectionType schema.CollectionType
	// Enumerated requests an enum-store (dictionary) backing for string and
	// weighted attributes, matching the "enumerated" header flag
	Enumerated bool
}

// Attribute is the shared capability interface every tagged variant
// implements.
type Attribute interface {
	Name() string
	Config() Config

	// NumDocs returns the number of allocated lids (the backing array size).
	NumDocs() uint32
	// CommittedDocIdLimit returns the number of lids visible to readers.
	CommittedDocIdLimit() uint32
	// LastSyncToken returns the highest serial number this attribute has
	// acknowledged; replay skips operations whose serial is <= this value.
	LastSyncToken() uint64

	// AddDoc allocates the next lid. Must be called serially per attribute.
	AddDoc() (LID, error)

	// Put stores a value at lid. Requires lid < NumDocs (addDoc first).
	Put(lid LID, value any) error
	// ClearDoc resets lid back to the undefined sentinel.
	ClearDoc(lid LID) error

	// Commit publishes a new generation and advances lastSyncToken if serial
	// exceeds it. Returns the committed generation.
	Commit(serial uint64) (Generation, error)

	// CompactLidSpace promises that lids >= limit are no longer reachable.
	CompactLidSpace(limit uint32) error
	// ShrinkLidSpace physically releases lids >= the last compact limit,
	// once no guard references a generation older than the compaction.
	ShrinkLidSpace() error

	// Flush records serial as the attribute's flushed serial. Idempotent:
	// a flush at the already-recorded serial is considered successful. No
	// on-disk snapshot of the values is written.
	Flush(serial uint64) (bool, error)
	// Load is a no-op: there is no on-disk snapshot to restore values from.
	Load() error

	// Guard takes a read-side handle pinning the current generation.
	Guard() *Guard
}

// ErrLidOutOfRange is returned by Put/ClearDoc when lid >= NumDocs.
var ErrLidOutOfRange = fmt.Errorf("attribute: lid out of range")

// base holds the bookkeeping shared by every variant: doc count, committed
// limit, sync token and the generation handler. Variants embed base and add
// their own typed storage.
type base struct {
	mu                   sync.RWMutex
	name                 string
	cfg                  Config
	numDocs              uint32
	committedDocIdLimit  uint32
	lastSyncToken        uint64
	compactLimit         uint32
	compactGeneration    Generation
	hasCompacted         bool
	gen                  *GenerationHandler
	flushedSerial        uint64
	flushedSerialIsValid bool
}

func newBase(name string, cfg Config) base {
	return base{
		name: name,
		cfg:  cfg,
		gen:  NewGenerationHandler(),
	}
}

func (b *base) Name() string   { return b.name }
func (b *base) Config() Config { return b.cfg }

func (b *base) NumDocs() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.numDocs
}

func (b *base) CommittedDocIdLimit() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.committedDocIdLimit
}

func (b *base) LastSyncToken() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSyncToken
}

func (b *base) Guard() *Guard {
	return b.gen.TakeGuard()
}

// checkLid validates lid < numDocs without taking the lock (caller holds it).
func (b *base) checkLid(lid LID) error {
	if uint32(lid) >= b.numDocs {
		return ErrLidOutOfRange
	}
	return nil
}

// commitLocked advances committedDocIdLimit to numDocs, advances
// lastSyncToken monotonically, and bumps the generation. Caller holds b.mu.
func (b *base) commitLocked(serial uint64) Generation {
	b.committedDocIdLimit = b.numDocs
	if serial > b.lastSyncToken {
		b.lastSyncToken = serial
	}
	return b.gen.IncGeneration()
}

// addDocLocked grows numDocs by one and returns the new lid. Caller holds
// b.mu; the variant is responsible for growing its own backing array to
// match before releasing the lock.
func (b *base) addDocLocked() LID {
	lid := LID(b.numDocs)
	b.numDocs++
	return lid
}

package attribute

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// PredicateAttribute stores a boolean-tree predicate per document. The boolean-tree encoding itself (interval splitting,
// k-tree construction) is the on-disk posting-list codec's concern and is
// out of scope; this attribute only needs to hold the committed
// per-document value and participate in the generic Attribute lifecycle.
type PredicateAttribute struct {
	base
	values [][]byte
}

func NewPredicateAttribute(name string) *PredicateAttribute {
	return &PredicateAttribute{
		base: newBase(name, Config{Name: name, BasicType: schema.DataTypeBooleanTree, CollectionType: schema.CollectionSingle}),
	}
}

func (a *PredicateAttribute) AddDoc() (LID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	lid := a.addDocLocked()
	a.values = append(a.values, nil)
	return lid, nil
}

func (a *PredicateAttribute) Put(lid LID, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("attribute %s: put expects []byte, got %T", a.name, value)
	}
	a.values[lid] = append([]byte(nil), b...)
	return nil
}

func (a *PredicateAttribute) ClearDoc(lid LID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}
	a.values[lid] = nil
	return nil
}

func (a *PredicateAttribute) Get(lid LID) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(lid) >= len(a.values) || a.values[lid] == nil {
		return nil, false
	}
	return a.values[lid], true
}

func (a *PredicateAttribute) Commit(serial uint64) (Generation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commitLocked(serial), nil
}

func (a *PredicateAttribute) CompactLidSpace(limit uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compactLimit = limit
	a.compactGeneration = a.gen.Current()
	a.gen.IncGeneration()
	a.hasCompacted = true
	return nil
}

func (a *PredicateAttribute) ShrinkLidSpace() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasCompacted || a.gen.FirstUsedGeneration() <= a.compactGeneration {
		return nil
	}
	if a.compactLimit < uint32(len(a.values)) {
		a.values = a.values[:a.compactLimit]
		a.numDocs = a.compactLimit
		if a.committedDocIdLimit > a.compactLimit {
			a.committedDocIdLimit = a.compactLimit
		}
	}
	a.hasCompacted = false
	return nil
}

func (a *PredicateAttribute) Flush(serial uint64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flushedSerialIsValid && a.flushedSerial == serial {
		return true, nil
	}
	a.flushedSerial = serial
	a.flushedSerialIsValid = true
	return true, nil
}

func (a *PredicateAttribute) Load() error { return nil }

package attribute

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// EnumIndex identifies one unique string value in an attribute's enum
// dictionary (the "*.udat" side of the on-disk layout, present when the
// enumerated format is enabled).
type EnumIndex uint32

// EnumStore is a shared, reference-counted string dictionary. Readers take
// it in shared mode via an EnumGuard; writers take it exclusively during
// reconfiguration.
type EnumStore struct {
	mu        sync.RWMutex
	valueToID map[string]EnumIndex
	idToValue []string
	refCounts []int32
}

func NewEnumStore() *EnumStore {
	return &EnumStore{valueToID: make(map[string]EnumIndex)}
}

// Intern returns the enum index for v, creating a new dictionary entry if
// necessary.
func (s *EnumStore) Intern(v string) EnumIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.valueToID[v]; ok {
		s.refCounts[id]++
		return id
	}
	id := EnumIndex(len(s.idToValue))
	s.idToValue = append(s.idToValue, v)
	s.refCounts = append(s.refCounts, 1)
	s.valueToID[v] = id
	return id
}

// Release drops a reference taken by Intern (called from clearDoc/overwrite
// paths). It does not physically compact the dictionary; that happens
// during the attribute's own lid-space compaction.
func (s *EnumStore) Release(id EnumIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < len(s.refCounts) && s.refCounts[id] > 0 {
		s.refCounts[id]--
	}
}

func (s *EnumStore) Value(id EnumIndex) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= len(s.idToValue) {
		return "", false
	}
	return s.idToValue[id], true
}

// Lookup returns the enum index for an existing value without interning it.
func (s *EnumStore) Lookup(v string) (EnumIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.valueToID[v]
	return id, ok
}

// SortedValues returns (value, id) pairs in lexicographic order, the form
// posting-list range queries walk.
func (s *EnumStore) SortedValues() []struct {
	Value string
	ID    EnumIndex
} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]struct {
		Value string
		ID    EnumIndex
	}, len(s.idToValue))
	for i, v := range s.idToValue {
		out[i].Value = v
		out[i].ID = EnumIndex(i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// EnumGuard is the stable-enum read handle: it extends the lifetime of the
// enum dictionary in addition to the attribute generation, until released.
type EnumGuard struct {
	*Guard
	Store *EnumStore
}

// StringAttribute implements single-value, array and weighted-set string
// attributes, always enum-store backed.
type StringAttribute struct {
	base
	store  *EnumStore
	values [][]WeightedValue[EnumIndex]
}

func NewStringAttribute(name string, ct schema.CollectionType) *StringAttribute {
	return &StringAttribute{
		base:  newBase(name, Config{Name: name, CollectionType: ct, BasicType: schema.DataTypeString, Enumerated: true}),
		store: NewEnumStore(),
	}
}

func (a *StringAttribute) AddDoc() (LID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	lid := a.addDocLocked()
	a.values = append(a.values, nil)
	return lid, nil
}

// Put replaces the value(s) at lid. value must be string (single), []string
// (array) or map[string]int32 (weighted-set: value -> weight).
func (a *StringAttribute) Put(lid LID, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}

	a.releaseLocked(lid)

	switch a.cfg.CollectionType {
	case schema.CollectionSingle:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("attribute %s: put expects string, got %T", a.name, value)
		}
		id := a.store.Intern(s)
		a.values[lid] = []WeightedValue[EnumIndex]{{Value: id, Weight: 1}}
	case schema.CollectionArray:
		ss, ok := value.([]string)
		if !ok {
			return fmt.Errorf("attribute %s: put expects []string, got %T", a.name, value)
		}
		wv := make([]WeightedValue[EnumIndex], len(ss))
		for i, s := range ss {
			wv[i] = WeightedValue[EnumIndex]{Value: a.store.Intern(s), Weight: 1}
		}
		a.values[lid] = wv
	case schema.CollectionWeightedSet:
		m, ok := value.(map[string]int32)
		if !ok {
			return fmt.Errorf("attribute %s: put expects map[string]int32, got %T", a.name, value)
		}
		wv := make([]WeightedValue[EnumIndex], 0, len(m))
		for s, w := range m {
			wv = append(wv, WeightedValue[EnumIndex]{Value: a.store.Intern(s), Weight: w})
		}
		a.values[lid] = wv
	}
	return nil
}

func (a *StringAttribute) releaseLocked(lid LID) {
	for _, wv := range a.values[lid] {
		a.store.Release(wv.Value)
	}
}

func (a *StringAttribute) ClearDoc(lid LID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}
	a.releaseLocked(lid)
	a.values[lid] = nil
	return nil
}

func (a *StringAttribute) Commit(serial uint64) (Generation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commitLocked(serial), nil
}

// Get returns the single string value at lid.
func (a *StringAttribute) Get(lid LID) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(lid) >= len(a.values) || len(a.values[lid]) == 0 {
		return "", false
	}
	return a.store.Value(a.values[lid][0].Value)
}

// GetMulti returns all (value, weight) pairs stored at lid.
func (a *StringAttribute) GetMulti(lid LID) []struct {
	Value  string
	Weight int32
} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(lid) >= len(a.values) {
		return nil
	}
	out := make([]struct {
		Value  string
		Weight int32
	}, 0, len(a.values[lid]))
	for _, wv := range a.values[lid] {
		v, _ := a.store.Value(wv.Value)
		out = append(out, struct {
			Value  string
			Weight int32
		}{v, wv.Weight})
	}
	return out
}

// EnumStore exposes the attribute's dictionary for posting-list search
// contexts.
func (a *StringAttribute) EnumStore() *EnumStore { return a.store }

// GetAttributeStableEnum returns a guard that additionally pins the enum
// dictionary's current contents against concurrent compaction.
func (a *StringAttribute) GetAttributeStableEnum() *EnumGuard {
	return &EnumGuard{Guard: a.Guard(), Store: a.store}
}

func (a *StringAttribute) CompactLidSpace(limit uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compactLimit = limit
	a.compactGeneration = a.gen.Current()
	a.gen.IncGeneration()
	a.hasCompacted = true
	return nil
}

func (a *StringAttribute) ShrinkLidSpace() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasCompacted {
		return nil
	}
	if a.gen.FirstUsedGeneration() <= a.compactGeneration {
		return nil
	}
	if a.compactLimit < uint32(len(a.values)) {
		for lid := a.compactLimit; lid < uint32(len(a.values)); lid++ {
			a.releaseLocked(LID(lid))
		}
		a.values = a.values[:a.compactLimit]
		a.numDocs = a.compactLimit
		if a.committedDocIdLimit > a.compactLimit {
			a.committedDocIdLimit = a.compactLimit
		}
	}
	a.hasCompacted = false
	return nil
}

func (a *StringAttribute) Flush(serial uint64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flushedSerialIsValid && a.flushedSerial == serial {
		return true, nil
	}
	a.flushedSerial = serial
	a.flushedSerialIsValid = true
	return true, nil
}

func (a *StringAttribute) Load() error { return nil }

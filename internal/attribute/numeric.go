package attribute

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// Numeric is the set of underlying Go types a numeric attribute may store.
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint32 | ~float32 | ~float64
}

// WeightedValue pairs a value with an integer weight, used by weighted-set
// attributes.
type WeightedValue[T Numeric] struct {
	Value  T
	Weight int32
}

// NumericAttribute implements single-value, array and weighted-set numeric
// attributes behind one generic tagged-variant implementation.
type NumericAttribute[T Numeric] struct {
	base
	values [][]WeightedValue[T] // one slot per lid; nil/empty means undefined
}

// NewNumericAttribute constructs a numeric attribute of the given collection
// type (single, array or weighted-set). The basic type recorded in Config
// defaults to DataTypeInt32 when not specified via NewNumericAttributeOf;
// callers that need reconfig type-matching against a schema should use
// NewNumericAttributeOf instead.
func NewNumericAttribute[T Numeric](name string, ct schema.CollectionType) *NumericAttribute[T] {
	return NewNumericAttributeOf[T](name, schema.DataTypeInt32, ct)
}

// NewNumericAttributeOf constructs a numeric attribute tagging Config with
// an explicit basic type, as the Factory does.
func NewNumericAttributeOf[T Numeric](name string, dt schema.DataType, ct schema.CollectionType) *NumericAttribute[T] {
	return &NumericAttribute[T]{
		base: newBase(name, Config{Name: name, BasicType: dt, CollectionType: ct}),
	}
}

func (a *NumericAttribute[T]) AddDoc() (LID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	lid := a.addDocLocked()
	a.values = append(a.values, nil)
	return lid, nil
}

// Put replaces the value(s) at lid.
//
//   - Single:      value must be T.
//   - Array:       value must be []T (unit weight 1 each).
//   - WeightedSet: value must be []WeightedValue[T].
func (a *NumericAttribute[T]) Put(lid LID, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}

	switch a.cfg.CollectionType {
	case schema.CollectionSingle:
		v, ok := value.(T)
		if !ok {
			return fmt.Errorf("attribute %s: put expects %T, got %T", a.name, *new(T), value)
		}
		a.values[lid] = []WeightedValue[T]{{Value: v, Weight: 1}}
	case schema.CollectionArray:
		vs, ok := value.([]T)
		if !ok {
			return fmt.Errorf("attribute %s: put expects []%T, got %T", a.name, *new(T), value)
		}
		wv := make([]WeightedValue[T], len(vs))
		for i, v := range vs {
			wv[i] = WeightedValue[T]{Value: v, Weight: 1}
		}
		a.values[lid] = wv
	case schema.CollectionWeightedSet:
		wv, ok := value.([]WeightedValue[T])
		if !ok {
			return fmt.Errorf("attribute %s: put expects []WeightedValue, got %T", a.name, value)
		}
		a.values[lid] = append([]WeightedValue[T](nil), wv...)
	}
	return nil
}

// Append adds one element to a multi-value attribute without disturbing the
// existing elements (the partial-update "add" semantics).
func (a *NumericAttribute[T]) Append(lid LID, v T, weight int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}
	if a.cfg.CollectionType == schema.CollectionSingle {
		return fmt.Errorf("attribute %s: append not valid on single-value attribute", a.name)
	}
	a.values[lid] = append(a.values[lid], WeightedValue[T]{Value: v, Weight: weight})
	return nil
}

func (a *NumericAttribute[T]) ClearDoc(lid LID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}
	a.values[lid] = nil
	return nil
}

func (a *NumericAttribute[T]) Commit(serial uint64) (Generation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commitLocked(serial), nil
}

// Get returns the single value at lid and whether it is defined. Valid only
// for single-value attributes; see GetMulti for array/weighted-set.
func (a *NumericAttribute[T]) Get(lid LID) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var zero T
	if int(lid) >= len(a.values) || len(a.values[lid]) == 0 {
		return zero, false
	}
	return a.values[lid][0].Value, true
}

// GetMulti returns all values stored at lid.
func (a *NumericAttribute[T]) GetMulti(lid LID) []WeightedValue[T] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(lid) >= len(a.values) {
		return nil
	}
	return append([]WeightedValue[T](nil), a.values[lid]...)
}

// CompactLidSpace promises lids >= limit are unreachable; see shrinkLidSpace
// for the corresponding physical release.
func (a *NumericAttribute[T]) CompactLidSpace(limit uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compactLimit = limit
	a.compactGeneration = a.gen.Current()
	a.gen.IncGeneration()
	a.hasCompacted = true
	return nil
}

func (a *NumericAttribute[T]) ShrinkLidSpace() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasCompacted {
		return nil
	}
	if a.gen.FirstUsedGeneration() <= a.compactGeneration {
		// A reader may still observe data at or before the compaction
		// generation; shrinking now would pull the rug from under it.
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

func (a *NumericAttribute[T]) Flush(serial uint64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flushedSerialIsValid && a.flushedSerial == serial {
		return true, nil // idempotent: snapshot already exists
	}
	a.flushedSerial = serial
	a.flushedSerialIsValid = true
	return true, nil
}

func (a *NumericAttribute[T]) Load() error {
	return nil
}

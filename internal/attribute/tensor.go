package attribute

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// Tensor is a minimal dense-tensor value: a cell value array plus the
// dimension sizes it was shaped from. Sparse/mixed tensor algebra is outside
// this engine (value parsing is an external collaborator);
// this attribute only stores and retrieves committed tensor cells.
type Tensor struct {
	Shape []int
	Cells []float64
}

// TensorAttribute stores one Tensor value per document.
type TensorAttribute struct {
	base
	values []*Tensor
}

func NewTensorAttribute(name string) *TensorAttribute {
	return &TensorAttribute{
		base: newBase(name, Config{Name: name, BasicType: schema.DataTypeTensor, CollectionType: schema.CollectionSingle}),
	}
}

func (a *TensorAttribute) AddDoc() (LID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	lid := a.addDocLocked()
	a.values = append(a.values, nil)
	return lid, nil
}

func (a *TensorAttribute) Put(lid LID, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}
	t, ok := value.(*Tensor)
	if !ok {
		return fmt.Errorf("attribute %s: put expects *Tensor, got %T", a.name, value)
	}
	a.values[lid] = t
	return nil
}

func (a *TensorAttribute) ClearDoc(lid LID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkLid(lid); err != nil {
		return err
	}
	a.values[lid] = nil
	return nil
}

func (a *TensorAttribute) Get(lid LID) (*Tensor, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(lid) >= len(a.values) || a.values[lid] == nil {
		return nil, false
	}
	return a.values[lid], true
}

func (a *TensorAttribute) Commit(serial uint64) (Generation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commitLocked(serial), nil
}

func (a *TensorAttribute) CompactLidSpace(limit uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compactLimit = limit
	a.compactGeneration = a.gen.Current()
	a.gen.IncGeneration()
	a.hasCompacted = true
	return nil
}

func (a *TensorAttribute) ShrinkLidSpace() error {
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

func (a *TensorAttribute) Flush(serial uint64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flushedSerialIsValid && a.flushedSerial == serial {
		return true, nil
	}
	a.flushedSerial = serial
	a.flushedSerialIsValid = true
	return true, nil
}

func (a *TensorAttribute) Load() error { return nil }

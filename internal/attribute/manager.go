package attribute

import (
	"fmt"
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// InitializerMode selects whether newly created attributes are initialized
// sequentially or in parallel during reconfiguration.
type InitializerMode int

const (
	InitializeSequential InitializerMode = iota
	InitializeParallel
)

// FlushTarget is something that can be asked to produce a flush task for a
// given serial.
type FlushTarget struct {
	Name          string
	attr          Attribute
	flushedSerial uint64
	Metrics       *metrics.Registry
}

// InitFlush returns a task that, when run, flushes the attribute at
// currentSerial (recording its flushed serial), or nil if nothing needs
// flushing (already flushed at or beyond currentSerial).
func (t *FlushTarget) InitFlush(currentSerial uint64) func() error {
	if t.flushedSerial >= currentSerial && currentSerial != 0 {
		return nil
	}
	return func() error {
		ok, err := t.attr.Flush(currentSerial)
		if err != nil {
			return err
		}
		if ok {
			t.flushedSerial = currentSerial
			t.Metrics.FlushedAt(t.Name, currentSerial)
		}
		return nil
	}
}

// Manager is the AttributeManager: a name -> Attribute map plus
// flush targets, supporting reconfiguration against a prior manager.
type Manager struct {
	mu      sync.RWMutex
	factory *Factory
	attrs   map[string]Attribute
	extra   map[string]Attribute // synthetic, not persisted (transferred unconditionally)
	metrics *metrics.Registry
}

// NewManager creates an empty manager bound to factory.
func NewManager(factory *Factory) *Manager {
	return &Manager{
		factory: factory,
		attrs:   make(map[string]Attribute),
		extra:   make(map[string]Attribute),
	}
}

// Get returns the named attribute, if present.
func (m *Manager) Get(name string) (Attribute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attrs[name]
	return a, ok
}

// All returns every managed (non-extra) attribute.
func (m *Manager) All() map[string]Attribute {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Attribute, len(m.attrs))
	for k, v := range m.attrs {
		out[k] = v
	}
	return out
}

// AddExtra registers a synthetic attribute that is not backed by the schema
// and is transferred unconditionally across reconfigurations.
func (m *Manager) AddExtra(name string, a Attribute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extra[name] = a
}

// put registers an attribute directly; used by initial construction and by
// Reconfigure.
func (m *Manager) put(name string, a Attribute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attrs[name] = a
}

// FlushTargets returns one FlushTarget per managed attribute.
func (m *Manager) FlushTargets() []*FlushTarget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*FlushTarget, 0, len(m.attrs))
	for name, a := range m.attrs {
		out = append(out, &FlushTarget{Name: name, attr: a, Metrics: m.metrics})
	}
	return out
}

// SetMetrics attaches the observable-counters registry that flush
// targets created from this point on will report into. Nil is valid.
func (m *Manager) SetMetrics(reg *metrics.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = reg
}

// ReconfigureParams bundles the inputs to Reconfigure.
type ReconfigureParams struct {
	NewSpec           *schema.Schema
	CurrentSerial     uint64 // serial the new spec takes effect at
	DocIDLimit        uint32 // committedDocIdLimit the new manager should expose
	Initializer       InitializerMode
	// attribute in current whose lastSyncToken is below CurrentSerial is
	// flushed before being dropped; every other dropped
	// attribute is dropped directly.
}

// Reconfigure builds the next-generation manager from current × newSpec
// following the algorithm:
//
//  1. attribute present in both (by name, matching type) -> transfer the
//     live instance, padding it to DocIDLimit.
//  2. attribute present in current, absent from newSpec -> flush-then-drop
//     if lastSyncToken < CurrentSerial, else drop directly.
//  3. attribute present only in newSpec -> create via an initializer task,
//     run sequentially or on a pool depending on Initializer.
//  4. extra (synthetic) attributes transfer unconditionally.
func Reconfigure(current *Manager, factory *Factory, p ReconfigureParams) (*Manager, error) {
	next := NewManager(factory)

	current.mu.RLock()
	currentAttrs := make(map[string]Attribute, len(current.attrs))
	for k, v := range current.attrs {
		currentAttrs[k] = v
	}
	currentExtra := make(map[string]Attribute, len(current.extra))
	for k, v := range current.extra {
		currentExtra[k] = v
	}
	current.mu.RUnlock()

	var toCreate []schema.AttributeField

	for _, field := range p.NewSpec.AttributeFields() {
		existing, ok := currentAttrs[field.Name]
		if ok && sameAttrType(existing, field) {
			if err := padAttribute(existing, p.DocIDLimit, p.CurrentSerial); err != nil {
				return nil, fmt.Errorf("attribute: pad %q: %w", field.Name, err)
			}
			next.put(field.Name, existing)
			continue
		}
		toCreate = append(toCreate, field)
	}

	for name, a := range currentAttrs {
		if _, stillWanted := p.NewSpec.GetAttributeField(name); stillWanted {
			continue
		}
		if a.LastSyncToken() < p.CurrentSerial {
			if _, err := a.Flush(a.LastSyncToken()); err != nil {
				return nil, fmt.Errorf("attribute: flush-before-drop %q: %w", name, err)
			}
		}
		// else: dropped directly, next manager never sees it.
	}

	if err := createAttributes(next, factory, toCreate, p); err != nil {
		return nil, err
	}

	for name, a := range currentExtra {
		next.extra[name] = a
	}

	return next, nil
}

func sameAttrType(a Attribute, field schema.AttributeField) bool {
	cfg := a.Config()
	return cfg.BasicType == field.DataType && cfg.CollectionType == field.CollectionType
}

// padAttribute fills any gap between the attribute's current doc count and
// docIDLimit with undefined-sentinel documents and commits at serial.
func padAttribute(a Attribute, docIDLimit uint32, serial uint64) error {
	for a.NumDocs() < docIDLimit {
		if _, err := a.AddDoc(); err != nil {
			return err
		}
	}
	if docIDLimit > 0 {
		if _, err := a.Commit(serial); err != nil {
			return err
		}
	}
	return nil
}

func createAttributes(next *Manager, factory *Factory, fields []schema.AttributeField, p ReconfigureParams) error {
	run := func(field schema.AttributeField) error {
		a, err := factory.Create(field)
		if err != nil {
			return err
		}
		if err := padAttribute(a, p.DocIDLimit, p.CurrentSerial); err != nil {
			return err
		}
		next.put(field.Name, a)
		return nil
	}

	switch p.Initializer {
	case InitializeParallel:
		var wg sync.WaitGroup
		errs := make([]error, len(fields))
		for i, field := range fields {
			wg.Add(1)
			go func(i int, field schema.AttributeField) {
				defer wg.Done()
				errs[i] = run(field)
			}(i, field)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	default:
		for _, field := range fields {
			if err := run(field); err != nil {
				return err
			}
		}
	}
	return nil
}

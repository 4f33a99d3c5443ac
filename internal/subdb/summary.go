package subdb

import (
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/storage"
)

// SummaryStore holds the docsum-retrievable document body per lid, the
// "summary" view's index/summary views. It is a thin lid-indexed
// wrapper around storage.Document that keeps a deep clone of each body;
// nothing is serialized.
type SummaryStore struct {
	mu   sync.RWMutex
	docs map[attribute.LID]storage.Document
}

// NewSummaryStore returns an empty summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{docs: make(map[attribute.LID]storage.Document)}
}

// Put stores doc's summary body at lid, replacing any prior value.
func (s *SummaryStore) Put(lid attribute.LID, doc storage.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[lid] = doc.Clone()
}

// Get returns the summary body at lid, if any.
func (s *SummaryStore) Get(lid attribute.LID) (storage.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[lid]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// WipeField deletes one field from every stored summary body, the
// wipe-history primitive for removed schema fields.
func (s *SummaryStore) WipeField(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		delete(d, name)
	}
}

// Remove drops the summary body at lid.
func (s *SummaryStore) Remove(lid attribute.LID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, lid)
}

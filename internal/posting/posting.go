// Package posting implements the search-context layer:
// enum term lookup, iterator strategy selection by posting-list size, range
// queries with rangeLimit and diversity constraints, and the filter-vs-
// posting-list cost model. The on-disk posting-list codec itself is treated
// as an external collaborator (out of scope); this package works entirely
// against an in-memory inverted index built over an attribute's enum
// dictionary.
package posting

import (
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
)

// Strategy names which iterator implementation a posting list should use,
// chosen by size at build time the way a real enum store would pick between
// a tree, a bit vector or a small array.
type Strategy int

const (
	// StrategyArray backs small posting lists with a flat sorted slice.
	StrategyArray Strategy = iota
	// StrategyBitvector backs dense posting lists (a large fraction of all
	// docs) with a bit vector for O(1) membership and fast AND/OR.
	StrategyBitvector
	// StrategyTree backs large sparse posting lists; in this in-memory
	// implementation it behaves like StrategyArray but is kept distinct so
	// callers and tests can assert on the strategy a size triggers.
	StrategyTree
)

// bitvectorThreshold: lists covering at least this fraction of numDocs use
// a bit vector. smallArrayLimit: lists at or under this absolute size stay
// a flat array regardless of density.
const (
	bitvectorThreshold = 0.10
	smallArrayLimit    = 32
)

// ChooseStrategy picks an iterator backing for a posting list of hitCount
// entries out of numDocs total documents.
func ChooseStrategy(hitCount, numDocs int) Strategy {
	if hitCount <= smallArrayLimit {
		return StrategyArray
	}
	if numDocs > 0 && float64(hitCount)/float64(numDocs) >= bitvectorThreshold {
		return StrategyBitvector
	}
	return StrategyTree
}

// Iterator walks a posting list's doc ids in ascending order.
type Iterator interface {
	Next() (attribute.LID, bool)
	Seek(target attribute.LID) (attribute.LID, bool)
}

// List is one term's posting list: a sorted set of document ids plus the
// strategy its size selected.
type List struct {
	Strategy Strategy
	docs     []attribute.LID // always kept sorted
	bits     map[attribute.LID]struct{}
}

func newList(docs []attribute.LID, numDocs int) *List {
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	l := &List{Strategy: ChooseStrategy(len(docs), numDocs), docs: docs}
	if l.Strategy == StrategyBitvector {
		l.bits = make(map[attribute.LID]struct{}, len(docs))
		for _, d := range docs {
			l.bits[d] = struct{}{}
		}
	}
	return l
}

// Len returns the exact number of docs carrying this term — an
// approximateHits caller with access to the live list can use this
// directly; ApproximateHits on a Dictionary uses it as an upper bound.
func (l *List) Len() int { return len(l.docs) }

// Contains reports whether lid carries this term.
func (l *List) Contains(lid attribute.LID) bool {
	if l.bits != nil {
		_, ok := l.bits[lid]
		return ok
	}
	i := sort.Search(len(l.docs), func(i int) bool { return l.docs[i] >= lid })
	return i < len(l.docs) && l.docs[i] == lid
}

// Iterator returns a fresh ascending iterator over this list.
func (l *List) Iterator() Iterator { return &arrayIterator{docs: l.docs} }

type arrayIterator struct {
	docs []attribute.LID
	pos  int
}

func (it *arrayIterator) Next() (attribute.LID, bool) {
	if it.pos >= len(it.docs) {
		return 0, false
	}
	d := it.docs[it.pos]
	it.pos++
	return d, true
}

func (it *arrayIterator) Seek(target attribute.LID) (attribute.LID, bool) {
	idx := sort.Search(len(it.docs)-it.pos, func(i int) bool { return it.docs[it.pos+i] >= target }) + it.pos
	it.pos = idx
	return it.Next()
}

// Dictionary is the enum-term -> posting-list index for one attribute. It
// keeps its entries sorted by term so RangeQuery can walk low..high
// directly instead of scanning every term.
type Dictionary struct {
	mu      sync.RWMutex
	entries map[string]*List
	order   []string // kept sorted; rebuilt lazily on first query after a mutation
	dirty   bool
	numDocs int
}

// NewDictionary builds an empty dictionary; numDocs is the attribute's
// current document count, used by ChooseStrategy.
func NewDictionary(numDocs int) *Dictionary {
	return &Dictionary{entries: make(map[string]*List), numDocs: numDocs}
}

// Index replaces a term's full posting list. Callers rebuild a term's list
// (rather than incrementally patching it) on every attribute commit.
func (d *Dictionary) Index(term string, docs []attribute.LID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(docs) == 0 {
		delete(d.entries, term)
	} else {
		d.entries[term] = newList(docs, d.numDocs)
	}
	d.dirty = true
}

func (d *Dictionary) rebuildOrderLocked() {
	if !d.dirty {
		return
	}
	d.order = d.order[:0]
	for t := range d.entries {
		d.order = append(d.order, t)
	}
	sort.Strings(d.order)
	d.dirty = false
}

// Lookup returns the posting list for an exact term.
func (d *Dictionary) Lookup(term string) (*List, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.entries[term]
	return l, ok
}

// ApproximateHits returns a correct upper bound on the number of documents
// matching term, used by the filter-vs-posting-list cost model; 0 when the
// term is unknown.
func (d *Dictionary) ApproximateHits(term string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if l, ok := d.entries[term]; ok {
		return l.Len()
	}
	return 0
}

// RangeQuery walks every term in [low, high] in dictionary order, collecting
// their posting-list doc ids subject to rangeLimit and an optional diversity
// constraint. rangeLimit > 0 takes the first N hits from the low
// side; rangeLimit < 0 takes the last N hits from the high side; 0 means
// unlimited. Result doc ids are returned sorted ascending regardless of
// which side rangeLimit took them from.
func (d *Dictionary) RangeQuery(low, high string, rangeLimit int, diversity *Diversity) []attribute.LID {
	d.mu.Lock()
	d.rebuildOrderLocked()
	lo := sort.SearchStrings(d.order, low)
	hi := sort.SearchStrings(d.order, high+"\x00") // first term strictly greater than high

	var hits []attribute.LID
	if rangeLimit >= 0 {
		for i := lo; i < hi && (rangeLimit == 0 || len(hits) < rangeLimit); i++ {
			hits = appendDocs(hits, d.entries[d.order[i]], rangeLimit)
		}
	} else {
		want := -rangeLimit
		for i := hi - 1; i >= lo && len(hits) < want; i-- {
			hits = appendDocsFromEnd(hits, d.entries[d.order[i]], want-len(hits))
		}
	}
	d.mu.Unlock()

	if diversity != nil {
		hits = diversity.apply(hits)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i] < hits[j] })
	return hits
}

func appendDocs(hits []attribute.LID, l *List, limit int) []attribute.LID {
	if l == nil {
		return hits
	}
	for _, d := range l.docs {
		if limit > 0 && len(hits) >= limit {
			break
		}
		hits = append(hits, d)
	}
	return hits
}

func appendDocsFromEnd(hits []attribute.LID, l *List, want int) []attribute.LID {
	if l == nil {
		return hits
	}
	for i := len(l.docs) - 1; i >= 0 && want > 0; i-- {
		hits = append(hits, l.docs[i])
		want--
	}
	return hits
}

// Diversity groups hits by another attribute's value (via GroupOf) and caps
// each group at MaxPerGroup, preserving the original hit order within and
// across groups.
type Diversity struct {
	GroupOf    func(attribute.LID) string
	MaxPerGroup int
}

func (v *Diversity) apply(hits []attribute.LID) []attribute.LID {
	if v.GroupOf == nil || v.MaxPerGroup <= 0 {
		return hits
	}
	counts := make(map[string]int)
	out := make([]attribute.LID, 0, len(hits))
	for _, h := range hits {
		g := v.GroupOf(h)
		if counts[g] >= v.MaxPerGroup {
			continue
		}
		counts[g]++
		out = append(out, h)
	}
	return out
}

// CostModel picks between a filter scan and a posting-list lookup for a
// query touching numValues distinct candidate values, per the
// filterCost ~ F*numValues vs postingCost ~ P*approxHits comparison.
type CostModel struct {
	FilterUnitCost  float64 // F
	PostingUnitCost float64 // P
}

// UsePostingList reports whether the posting-list strategy is cheaper.
func (c CostModel) UsePostingList(numValues, approxHits int) bool {
	filterCost := c.FilterUnitCost * float64(numValues)
	postingCost := c.PostingUnitCost * float64(approxHits)
	return postingCost < filterCost
}

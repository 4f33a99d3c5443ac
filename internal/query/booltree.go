package query

import "sort"

// NodeKind names a boolean query-tree node kind.
type NodeKind int

const (
	KindTerm NodeKind = iota
	KindAnd
	KindAndNot
	KindOr
	KindNot
	KindPhrase
	KindNear
	KindOnear
	KindEquiv
	KindWeightedSet
	KindDotProduct
	KindWand
	KindTrue
)

// Hit is one occurrence of a term: a docid plus the positions it occurs at
// within the indexed field, used by PHRASE/NEAR/ONEAR proximity checks.
type Hit struct {
	DocID     uint32
	Positions []int
}

// HitList is a docid-ordered list of Hits for one term leaf.
type HitList []Hit

// BoolNode is one node of the boolean query tree. Term leaves carry a
// HitList; interior nodes carry Children. NEAR/ONEAR additionally carry a
// Distance.
type BoolNode struct {
	Kind     NodeKind
	Children []*BoolNode
	Hits     HitList // only set on KindTerm
	Distance int     // only meaningful for KindNear/KindOnear
}

// Term builds a term leaf from hits, already sorted by docid.
func Term(hits HitList) *BoolNode {
	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	return &BoolNode{Kind: KindTerm, Hits: hits}
}

func interior(kind NodeKind, children ...*BoolNode) *BoolNode {
	return &BoolNode{Kind: kind, Children: children}
}

// And builds an AND node, flattening any nested AND children.
func And(children ...*BoolNode) *BoolNode {
	return interior(KindAnd, flatten(children, KindAnd)...)
}

// AndNot builds a[0] ∧ ¬a[1] ∧ …
func AndNot(children ...*BoolNode) *BoolNode {
	return interior(KindAndNot, children...)
}

// Or builds an OR node. It absorbs nested OR, weighted-set, dot-product and
// WAND children: all four match any of their terms, so hoisting their
// children into the OR preserves the matched set.
func Or(children ...*BoolNode) *BoolNode {
	return interior(KindOr, flatten(children, KindOr, KindWeightedSet, KindDotProduct, KindWand)...)
}

// Not negates child.
func Not(child *BoolNode) *BoolNode {
	return interior(KindNot, child)
}

// Phrase requires every child term to occur in strict order at distance 1.
func Phrase(children ...*BoolNode) *BoolNode {
	return interior(KindPhrase, children...)
}

// Near requires every child term within distance d, order-independent.
func Near(distance int, children ...*BoolNode) *BoolNode {
	return &BoolNode{Kind: KindNear, Children: children, Distance: distance}
}

// Onear requires every child term within distance d, in order.
func Onear(distance int, children ...*BoolNode) *BoolNode {
	return &BoolNode{Kind: KindOnear, Children: children, Distance: distance}
}

// Equiv treats every child as an alternative spelling of the same term.
// It absorbs nested EQUIV and weighted-set children, whose terms are
// likewise alternatives for one logical term.
func Equiv(children ...*BoolNode) *BoolNode {
	return interior(KindEquiv, flatten(children, KindEquiv, KindWeightedSet)...)
}

// WeightedSet matches any of its term children. The per-term weights feed
// ranking, which happens outside the boolean tree, so for matching purposes
// the node behaves as a union of its terms.
func WeightedSet(children ...*BoolNode) *BoolNode {
	return interior(KindWeightedSet, children...)
}

// DotProduct matches any of its term children; the dot-product score over
// matched weights belongs to the rank phase.
func DotProduct(children ...*BoolNode) *BoolNode {
	return interior(KindDotProduct, children...)
}

// Wand matches any of its term children; the weak-AND upper-bound pruning
// is a rank-phase optimization and does not change the matched set here.
func Wand(children ...*BoolNode) *BoolNode {
	return interior(KindWand, children...)
}

// True matches every document.
func True() *BoolNode { return &BoolNode{Kind: KindTrue} }

// flatten hoists the children of any child whose kind is in absorbed.
func flatten(children []*BoolNode, absorbed ...NodeKind) []*BoolNode {
	out := make([]*BoolNode, 0, len(children))
	for _, c := range children {
		if containsKind(absorbed, c.Kind) {
			out = append(out, c.Children...)
		} else {
			out = append(out, c)
		}
	}
	return out
}

func containsKind(kinds []NodeKind, k NodeKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// Evaluate returns the set of docids (ascending) matching node. universe is
// the full docid set, needed to evaluate NOT and TRUE.
func Evaluate(node *BoolNode, universe []uint32) []uint32 {
	switch node.Kind {
	case KindTrue:
		return append([]uint32(nil), universe...)
	case KindTerm:
		return docIDs(node.Hits)
	case KindAnd:
		return evalAnd(node, universe)
	case KindAndNot:
		return evalAndNot(node, universe)
	case KindOr, KindEquiv, KindWeightedSet, KindDotProduct, KindWand:
		return evalOr(node, universe)
	case KindNot:
		return setDifference(universe, Evaluate(node.Children[0], universe))
	case KindPhrase:
		return evalPhrase(node)
	case KindNear:
		return evalProximity(node, false)
	case KindOnear:
		return evalProximity(node, true)
	default:
		return nil
	}
}

func docIDs(hits HitList) []uint32 {
	out := make([]uint32, len(hits))
	for i, h := range hits {
		out[i] = h.DocID
	}
	return out
}

func evalAnd(node *BoolNode, universe []uint32) []uint32 {
	if len(node.Children) == 0 {
		return nil
	}
	result := Evaluate(node.Children[0], universe)
	for _, c := range node.Children[1:] {
		result = intersect(result, Evaluate(c, universe))
	}
	return result
}

func evalAndNot(node *BoolNode, universe []uint32) []uint32 {
	if len(node.Children) == 0 {
		return nil
	}
	result := Evaluate(node.Children[0], universe)
	for _, c := range node.Children[1:] {
		result = setDifference(result, Evaluate(c, universe))
	}
	return result
}

func evalOr(node *BoolNode, universe []uint32) []uint32 {
	seen := make(map[uint32]struct{})
	for _, c := range node.Children {
		for _, d := range Evaluate(c, universe) {
			seen[d] = struct{}{}
		}
	}
	out := make([]uint32, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// evalPhrase requires every child term to co-occur in the same document
// with strictly consecutive, ascending positions (distance 1, in order).
func evalPhrase(node *BoolNode) []uint32 {
	if len(node.Children) == 0 {
		return nil
	}
	byDoc := positionsByDoc(node.Children)
	var out []uint32
docLoop:
	for docID, perTerm := range byDoc {
		if len(perTerm) != len(node.Children) {
			continue
		}
		for _, start := range perTerm[0] {
			ok := true
			for i := 1; i < len(perTerm); i++ {
				if !containsPos(perTerm[i], start+i) {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, docID)
				continue docLoop
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// evalProximity requires every child term to occur within node.Distance
// positions of each other in the same document; ordered requires ascending
// child order.
func evalProximity(node *BoolNode, ordered bool) []uint32 {
	if len(node.Children) == 0 {
		return nil
	}
	byDoc := positionsByDoc(node.Children)
	var out []uint32
	for docID, perTerm := range byDoc {
		if len(perTerm) != len(node.Children) {
			continue
		}
		if withinDistance(perTerm, node.Distance, ordered) {
			out = append(out, docID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func positionsByDoc(children []*BoolNode) map[uint32][][]int {
	byDoc := make(map[uint32][][]int)
	for i, c := range children {
		for _, h := range c.Hits {
			for len(byDoc[h.DocID]) <= i {
				byDoc[h.DocID] = append(byDoc[h.DocID], nil)
			}
			byDoc[h.DocID][i] = h.Positions
		}
	}
	return byDoc
}

func containsPos(positions []int, p int) bool {
	for _, x := range positions {
		if x == p {
			return true
		}
	}
	return false
}

// withinDistance tries every combination of one position per term list and
// accepts if the span between min and max position is <= distance (and, if
// ordered, positions are strictly increasing in child order).
func withinDistance(perTerm [][]int, distance int, ordered bool) bool {
	var try func(i int, chosen []int) bool
	try = func(i int, chosen []int) bool {
		if i == len(perTerm) {
			min, max := chosen[0], chosen[0]
			for _, p := range chosen {
				if p < min {
					min = p
				}
				if p > max {
					max = p
				}
			}
			if max-min > distance {
				return false
			}
			if ordered {
				for k := 1; k < len(chosen); k++ {
					if chosen[k] <= chosen[k-1] {
						return false
					}
				}
			}
			return true
		}
		for _, p := range perTerm[i] {
			if try(i+1, append(chosen, p)) {
				return true
			}
		}
		return false
	}
	return try(0, nil)
}

func intersect(a, b []uint32) []uint32 {
	set := make(map[uint32]struct{}, len(b))
	for _, x := range b {
		set[x] = struct{}{}
	}
	var out []uint32
	for _, x := range a {
		if _, ok := set[x]; ok {
			out = append(out, x)
		}
	}
	return out
}

func setDifference(a, b []uint32) []uint32 {
	set := make(map[uint32]struct{}, len(b))
	for _, x := range b {
		set[x] = struct{}{}
	}
	var out []uint32
	for _, x := range a {
		if _, ok := set[x]; !ok {
			out = append(out, x)
		}
	}
	return out
}

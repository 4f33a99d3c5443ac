// Package grouping implements result grouping: a specification of ordered
// levels, each aggregating documents into selector-keyed groups, with an
// order-by/precision truncation applied once results from every
// contributing shard are available.
package grouping

import "sort"

// OrderTerm is one entry of a level's order-by vector: an index into that
// level's aggregators plus a direction. Descending sorts highest first.
//
//	OrderTerm{Index: 0, Descending: true} // sort by aggregator 0, highest first
type OrderTerm struct {
	Index      int
	Descending bool
}

// Level describes one nesting level of a grouping spec: the selector that buckets documents into groups, the
// aggregator template every new group clones, an order-by vector and a
// precision (max retained groups at this level).
type Level struct {
	Selector   *Selector
	Template   []Aggregator // cloned per new group; never mutated directly
	OrderBy    []OrderTerm
	Precision  int // 0 means unbounded
}

// Group is one bucket at some level: its key, its own aggregator values,
// and (if not the bottom level) its child groups.
type Group struct {
	Key        any
	Aggregates []Aggregator
	Children   map[any]*Group
	order      []any // insertion order of Children's keys, for stable iteration
}

func newGroup(key any, level *Level) *Group {
	g := &Group{Key: key}
	g.Aggregates = make([]Aggregator, len(level.Template))
	for i, a := range level.Template {
		g.Aggregates[i] = a.Clone()
	}
	return g
}

// Spec is a grouping specification: an ordered slice of Levels, evaluated
// from Levels[firstLevel] downward.
type Spec struct {
	Levels []Level
}

// Result is the root of a grouping evaluation: one implicit top-level
// group per distinct Levels[0] key.
type Result struct {
	spec   *Spec
	groups map[any]*Group
	order  []any
}

// NewResult starts an empty grouping evaluation for spec.
func NewResult(spec *Spec) *Result {
	return &Result{spec: spec, groups: make(map[any]*Group)}
}

// Collect routes doc into the group tree starting at firstLevel, updating
// every aggregator along the path from the root down to the leaf level
// doc belongs to; below the bottom level there is nothing left to route to.
func (r *Result) Collect(doc map[string]any, firstLevel int) error {
	if firstLevel >= len(r.spec.Levels) {
		return nil
	}
	level := &r.spec.Levels[firstLevel]
	key, err := level.Selector.Key(doc)
	if err != nil {
		return err
	}
	g, ok := r.groups[key]
	if !ok {
		g = newGroup(key, level)
		r.groups[key] = g
		r.order = append(r.order, key)
	}
	return collectInto(doc, r.spec, firstLevel, g)
}

func collectInto(doc map[string]any, spec *Spec, levelIdx int, g *Group) error {
	for _, agg := range g.Aggregates {
		agg.Collect(doc)
	}
	nextIdx := levelIdx + 1
	if nextIdx >= len(spec.Levels) {
		return nil
	}
	nextLevel := &spec.Levels[nextIdx]
	key, err := nextLevel.Selector.Key(doc)
	if err != nil {
		return err
	}
	if g.Children == nil {
		g.Children = make(map[any]*Group)
	}
	child, ok := g.Children[key]
	if !ok {
		child = newGroup(key, nextLevel)
		g.Children[key] = child
		g.order = append(g.order, key)
	}
	return collectInto(doc, spec, nextIdx, child)
}

// Merge folds another shard's Result (built from the same Spec) into r,
// merging every aggregator pairwise (each with its own Merge) across
// matching group keys and adding
// groups present only in other.
func (r *Result) Merge(other *Result) {
	for _, key := range other.order {
		og := other.groups[key]
		g, ok := r.groups[key]
		if !ok {
			r.groups[key] = cloneGroupTree(og)
			r.order = append(r.order, key)
			continue
		}
		mergeGroup(g, og)
	}
}

func cloneGroupTree(g *Group) *Group {
	clone := &Group{Key: g.Key}
	clone.Aggregates = make([]Aggregator, len(g.Aggregates))
	for i, a := range g.Aggregates {
		clone.Aggregates[i] = a.Clone()
		clone.Aggregates[i].Merge(a)
	}
	if g.Children != nil {
		clone.Children = make(map[any]*Group, len(g.Children))
		for _, k := range g.order {
			clone.Children[k] = cloneGroupTree(g.Children[k])
		}
		clone.order = append([]any(nil), g.order...)
	}
	return clone
}

func mergeGroup(g, other *Group) {
	for i, agg := range g.Aggregates {
		agg.Merge(other.Aggregates[i])
	}
	for _, key := range other.order {
		oc := other.Children[key]
		c, ok := g.Children[key]
		if !ok {
			if g.Children == nil {
				g.Children = make(map[any]*Group)
			}
			g.Children[key] = cloneGroupTree(oc)
			g.order = append(g.order, key)
			continue
		}
		mergeGroup(c, oc)
	}
}

// PostMerge executes every level's order-by expressions and truncates to
// its precision, recursively from the root down.
func (r *Result) PostMerge() []*Group {
	if len(r.spec.Levels) == 0 {
		return nil
	}
	ordered := orderAndTruncate(r.groupSlice(), r.spec.Levels[0])
	for _, g := range ordered {
		postMergeChildren(g, r.spec, 1)
	}
	return ordered
}

func (r *Result) groupSlice() []*Group {
	out := make([]*Group, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.groups[k])
	}
	return out
}

func postMergeChildren(g *Group, spec *Spec, levelIdx int) {
	if levelIdx >= len(spec.Levels) || g.Children == nil {
		return
	}
	level := spec.Levels[levelIdx]
	children := make([]*Group, 0, len(g.order))
	for _, k := range g.order {
		children = append(children, g.Children[k])
	}
	ordered := orderAndTruncate(children, level)

	g.Children = make(map[any]*Group, len(ordered))
	g.order = g.order[:0]
	for _, c := range ordered {
		g.Children[c.Key] = c
		g.order = append(g.order, c.Key)
		postMergeChildren(c, spec, levelIdx+1)
	}
}

func orderAndTruncate(groups []*Group, level Level) []*Group {
	if len(level.OrderBy) > 0 {
		sort.SliceStable(groups, func(i, j int) bool {
			for _, term := range level.OrderBy {
				if term.Index >= len(groups[i].Aggregates) || term.Index >= len(groups[j].Aggregates) {
					continue
				}
				a := compareAny(groups[i].Aggregates[term.Index].Result(), groups[j].Aggregates[term.Index].Result())
				if a == 0 {
					continue
				}
				if term.Descending {
					return a > 0
				}
				return a < 0
			}
			return false
		})
	}
	if level.Precision > 0 && len(groups) > level.Precision {
		groups = groups[:level.Precision]
	}
	return groups
}

// compareAny orders two aggregator results that are expected to be
// numeric (the only aggregator kinds this package defines); non-numeric or
// mismatched values compare equal rather than panicking.
func compareAny(a, b any) int {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return 0
	}
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

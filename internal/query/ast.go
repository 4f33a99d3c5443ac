// Package query implements the boolean retrieval tree and the
// parsing of query requests into it.
//
// A query request arrives as an unstructured map (the behavior-level
// equivalent of a packed STACK representation), e.g.
// `{"and": [{"term": {"field": "title", "value": "engine"}}, ...]}`, and is
// parsed into a RequestNode tree. Term leaves are then resolved against
// posting data to produce an evaluable BoolNode tree.
package query

import (
	"fmt"
)

// RequestNode is one node of a parsed query request: the shape of the wire
// query before term leaves have been resolved to hit lists.
type RequestNode struct {
	Kind     NodeKind
	Field    string // term leaves only
	Term     string // term leaves only
	Distance int    // near/onear only
	Children []*RequestNode
}

// ParseRequest converts a map-based query request into a RequestNode tree.
//
// Recognized forms:
//
//	{"and": [sub, ...]}       {"or": [sub, ...]}     {"andnot": [sub, ...]}
//	{"not": sub}              {"equiv": [sub, ...]}  {"true": true}
//	{"term": {"field": f, "value": v}}
//	{"phrase": {"field": f, "terms": [t, ...]}}
//	{"near":  {"field": f, "terms": [t, ...], "distance": d}}
//	{"onear": {"field": f, "terms": [t, ...], "distance": d}}
//	{"weightedset": {"field": f, "terms": [t, ...]}}
//	{"dotproduct":  {"field": f, "terms": [t, ...]}}
//	{"wand":        {"field": f, "terms": [t, ...]}}
//	{f: v}                    implicit term on field f
func ParseRequest(request map[string]interface{}) (*RequestNode, error) {
	if len(request) == 0 {
		return nil, fmt.Errorf("empty query request")
	}

	var nodes []*RequestNode

	for key, val := range request {
		switch key {
		case "and", "or", "andnot", "equiv":
			list, ok := val.([]interface{})
			if !ok {
				return nil, fmt.Errorf("value for %s must be a list", key)
			}
			children := make([]*RequestNode, 0, len(list))
			for _, item := range list {
				subMap, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("element of %s must be an object", key)
				}
				subNode, err := ParseRequest(subMap)
				if err != nil {
					return nil, err
				}
				children = append(children, subNode)
			}
			nodes = append(nodes, &RequestNode{Kind: operatorKind(key), Children: children})

		case "not":
			subMap, ok := val.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("value for not must be an object")
			}
			subNode, err := ParseRequest(subMap)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &RequestNode{Kind: KindNot, Children: []*RequestNode{subNode}})

		case "true":
			nodes = append(nodes, &RequestNode{Kind: KindTrue})

		case "term":
			leaf, err := parseTermLeaf(val)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, leaf)

		case "phrase", "near", "onear", "weightedset", "dotproduct", "wand":
			node, err := parseMultiTerm(key, val)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)

		default:
			// Implicit term: {field: value}
			nodes = append(nodes, &RequestNode{Kind: KindTerm, Field: key, Term: fmt.Sprintf("%v", val)})
		}
	}

	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &RequestNode{Kind: KindAnd, Children: nodes}, nil
}

func operatorKind(key string) NodeKind {
	switch key {
	case "and":
		return KindAnd
	case "or":
		return KindOr
	case "andnot":
		return KindAndNot
	case "equiv":
		return KindEquiv
	}
	return KindTrue
}

func parseTermLeaf(val interface{}) (*RequestNode, error) {
	m, ok := val.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("value for term must be an object")
	}
	field, ok := m["field"].(string)
	if !ok || field == "" {
		return nil, fmt.Errorf("term requires a field name")
	}
	value, ok := m["value"]
	if !ok {
		return nil, fmt.Errorf("term requires a value")
	}
	return &RequestNode{Kind: KindTerm, Field: field, Term: fmt.Sprintf("%v", value)}, nil
}

func parseMultiTerm(key string, val interface{}) (*RequestNode, error) {
	m, ok := val.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("value for %s must be an object", key)
	}
	field, ok := m["field"].(string)
	if !ok || field == "" {
		return nil, fmt.Errorf("%s requires a field name", key)
	}
	rawTerms, ok := m["terms"].([]interface{})
	if !ok || len(rawTerms) == 0 {
		return nil, fmt.Errorf("%s requires a terms list", key)
	}

	children := make([]*RequestNode, 0, len(rawTerms))
	for _, t := range rawTerms {
		children = append(children, &RequestNode{Kind: KindTerm, Field: field, Term: fmt.Sprintf("%v", t)})
	}

	node := &RequestNode{Children: children}
	switch key {
	case "phrase":
		node.Kind = KindPhrase
	case "near":
		node.Kind = KindNear
	case "onear":
		node.Kind = KindOnear
	case "weightedset":
		node.Kind = KindWeightedSet
	case "dotproduct":
		node.Kind = KindDotProduct
	case "wand":
		node.Kind = KindWand
	}
	if node.Kind == KindNear || node.Kind == KindOnear {
		d, ok := toFloat(m["distance"])
		if !ok || d < 1 {
			return nil, fmt.Errorf("%s requires a positive distance", key)
		}
		node.Distance = int(d)
	}
	return node, nil
}

// TermResolver produces the hit list for one (field, term) leaf, typically
// by consulting the field's posting dictionary.
type TermResolver func(field, term string) HitList

// Resolve converts a parsed request tree into an evaluable BoolNode tree by
// resolving every term leaf through resolver. Flattening (AND absorbs AND;
// OR absorbs OR, weighted-set, dot-product and WAND; EQUIV absorbs EQUIV
// and weighted-set) happens via the BoolNode constructors.
func Resolve(node *RequestNode, resolver TermResolver) *BoolNode {
	switch node.Kind {
	case KindTerm:
		return Term(resolver(node.Field, node.Term))
	case KindTrue:
		return True()
	case KindNot:
		return Not(Resolve(node.Children[0], resolver))
	}

	children := make([]*BoolNode, 0, len(node.Children))
	for _, c := range node.Children {
		children = append(children, Resolve(c, resolver))
	}
	switch node.Kind {
	case KindAnd:
		return And(children...)
	case KindAndNot:
		return AndNot(children...)
	case KindOr:
		return Or(children...)
	case KindEquiv:
		return Equiv(children...)
	case KindPhrase:
		return Phrase(children...)
	case KindNear:
		return Near(node.Distance, children...)
	case KindOnear:
		return Onear(node.Distance, children...)
	case KindWeightedSet:
		return WeightedSet(children...)
	case KindDotProduct:
		return DotProduct(children...)
	case KindWand:
		return Wand(children...)
	default:
		return True()
	}
}

// Fields returns every distinct field name referenced by term leaves under
// node, used to resolve views (field -> set of physical fields) before
// posting lookup.
func (n *RequestNode) Fields() []string {
	seen := make(map[string]struct{})
	var walk func(*RequestNode)
	walk = func(node *RequestNode) {
		if node.Kind == KindTerm && node.Field != "" {
			seen[node.Field] = struct{}{}
		}
		for _, c := range node.Children {
			walk(c)
		}
	}
	walk(n)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	return out
}

package query

import (
	"fmt"
	"strings"
)

// SortKey is one component of a sort spec: a field name plus direction.
type SortKey struct {
	Field      string
	Descending bool
}

// ParseSortSpec parses a sort spec of the form "+field -other field": a
// whitespace-separated list of field names, each optionally prefixed with
// '+' (ascending, the default) or '-' (descending).
func ParseSortSpec(spec string) ([]SortKey, error) {
	fields := strings.Fields(spec)
	keys := make([]SortKey, 0, len(fields))
	for _, f := range fields {
		key := SortKey{Field: f}
		switch {
		case strings.HasPrefix(f, "-"):
			key = SortKey{Field: f[1:], Descending: true}
		case strings.HasPrefix(f, "+"):
			key = SortKey{Field: f[1:]}
		}
		if key.Field == "" {
			return nil, fmt.Errorf("sort spec: empty field name in %q", spec)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// CompareValues returns -1 if a < b, 0 if a == b, 1 if a > b. Numbers
// compare numerically; anything else falls back to string comparison.
func CompareValues(a, b interface{}) int {
	f1, ok1 := toFloat(a)
	f2, ok2 := toFloat(b)
	if ok1 && ok2 {
		if f1 > f2 {
			return 1
		}
		if f1 < f2 {
			return -1
		}
		return 0
	}
	s1 := fmt.Sprintf("%v", a)
	s2 := fmt.Sprintf("%v", b)
	if s1 > s2 {
		return 1
	}
	if s1 < s2 {
		return -1
	}
	return 0
}

// CompareByKeys orders two documents by keys, earlier keys dominating.
// A field missing from both documents compares equal; missing sorts before
// present.
func CompareByKeys(a, b map[string]interface{}, keys []SortKey) int {
	for _, k := range keys {
		av, aok := a[k.Field]
		bv, bok := b[k.Field]
		var c int
		switch {
		case !aok && !bok:
			continue
		case !aok:
			c = -1
		case !bok:
			c = 1
		default:
			c = CompareValues(av, bv)
		}
		if c == 0 {
			continue
		}
		if k.Descending {
			return -c
		}
		return c
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch i := v.(type) {
	case float64:
		return i, true
	case float32:
		return float64(i), true
	case int:
		return float64(i), true
	case int32:
		return float64(i), true
	case int64:
		return float64(i), true
	}
	return 0, false
}

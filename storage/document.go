// Package storage holds the document value currency the engine's summary
// and feed paths share: an untyped field map with JSON (de)serialization,
// deep cloning and typed field access.
package storage

import (
	"encoding/json"
	"fmt"
)

// Document is one document's field values: the body a Put carries in, the
// summary store keeps per lid, and docsum requests read back out.
type Document map[string]interface{}

// DocumentID is the external document identity a feed operation names; the
// meta store hashes it into a GID.
type DocumentID string

// Serialize converts a document to JSON bytes
func (d Document) Serialize() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	// Trim the trailing newline added by Encode, and copy out: the buffer
	// goes back to the pool.
	b := buf.Bytes()
	if len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}

	result := make([]byte, len(b))
	copy(result, b)

	return result, nil
}

// Deserialize converts JSON bytes to a document
func Deserialize(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to deserialize document: %w", err)
	}
	return doc, nil
}

// GetString returns the string value of field, if present and a string.
func (d Document) GetString(field string) (string, bool) {
	v, ok := d[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat returns the numeric value of field coerced to float64. JSON
// decoding produces float64 for every number; values written in-process may
// still carry their original integer type.
func (d Document) GetFloat(field string) (float64, bool) {
	v, ok := d[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Extract returns a new document holding only the named fields, in the
// summary-class style: fields absent from d are simply absent from the
// result.
func (d Document) Extract(fields []string) Document {
	out := make(Document, len(fields))
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = deepCopyValue(v)
		}
	}
	return out
}

// Clone creates a deep copy of the document
func (d Document) Clone() Document {
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = deepCopyValue(v)
	}
	return clone
}

// deepCopyValue creates a deep copy of a value
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]interface{}:
		return Document(val).Clone()
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		// Primitives (string, number, bool) are immutable or copied by value
		return val
	}
}

// Size returns the approximate size of the document in bytes
func (d Document) Size() int {
	data, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	return len(data)
}

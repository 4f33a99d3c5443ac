package schema

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

// Save writes the schema to path in the line-oriented text format, then
// fsyncs the containing directory so the write survives a crash.
// Forward-compatible readers tolerate unknown keys, so Save never needs a
// version bump to add a field.
func (s *Schema) Save(path string) bool {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	fmt.Fprintf(w, "indexfield[%d]\n", len(s.indexFields))
	for i, f := range s.indexFields {
		fmt.Fprintf(w, "indexfield[%d].name %s\n", i, f.Name)
		fmt.Fprintf(w, "indexfield[%d].datatype %s\n", i, f.DataType)
		fmt.Fprintf(w, "indexfield[%d].collectiontype %s\n", i, f.CollectionType)
		fmt.Fprintf(w, "indexfield[%d].prefix %t\n", i, f.Prefix)
		fmt.Fprintf(w, "indexfield[%d].phrases %t\n", i, f.Phrases)
		fmt.Fprintf(w, "indexfield[%d].positions %t\n", i, f.Positions)
		fmt.Fprintf(w, "indexfield[%d].averageelementlen %d\n", i, f.AverageElementLen)
		fmt.Fprintf(w, "indexfield[%d].timestamp %d\n", i, f.Timestamp)
	}

	fmt.Fprintf(w, "attributefield[%d]\n", len(s.attributeFields))
	for i, f := range s.attributeFields {
		fmt.Fprintf(w, "attributefield[%d].name %s\n", i, f.Name)
		fmt.Fprintf(w, "attributefield[%d].datatype %s\n", i, f.DataType)
		fmt.Fprintf(w, "attributefield[%d].collectiontype %s\n", i, f.CollectionType)
		fmt.Fprintf(w, "attributefield[%d].timestamp %d\n", i, f.Timestamp)
		if f.JSONSchema != "" {
			fmt.Fprintf(w, "attributefield[%d].jsonschema %s\n", i, encodeOneLine(f.JSONSchema))
		}
	}

	fmt.Fprintf(w, "summaryfield[%d]\n", len(s.summaryFields))
	for i, f := range s.summaryFields {
		fmt.Fprintf(w, "summaryfield[%d].name %s\n", i, f.Name)
		fmt.Fprintf(w, "summaryfield[%d].datatype %s\n", i, f.DataType)
		fmt.Fprintf(w, "summaryfield[%d].timestamp %d\n", i, f.Timestamp)
	}

	fmt.Fprintf(w, "fieldset[%d]\n", len(s.fieldSets))
	for i, fs := range s.fieldSets {
		fmt.Fprintf(w, "fieldset[%d].name %s\n", i, fs.Name)
		fmt.Fprintf(w, "fieldset[%d].timestamp %d\n", i, fs.Timestamp)
		fmt.Fprintf(w, "fieldset[%d].field[%d]\n", i, len(fs.Fields))
		for j, ref := range fs.Fields {
			fmt.Fprintf(w, "fieldset[%d].field[%d].name %s\n", i, j, ref.Name)
		}
	}

	if err := w.Flush(); err != nil {
		return false
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return false
	}
	if f, err := os.Open(filepath.Dir(path)); err == nil {
		_ = f.Sync()
		f.Close()
	}
	return true
}

// encodeOneLine escapes newlines so a JSON-schema fragment round-trips as a
// single line in the otherwise line-oriented format.
func encodeOneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

func decodeOneLine(s string) string {
	return strings.ReplaceAll(s, "\\n", "\n")
}

// Load parses the text schema file at path. Unknown keys are ignored
// (forward compatibility); a malformed record for a field that is otherwise
// recognized still yields a field with zero-valued defaults rather than
// aborting the whole load; parse failures never escape this package.
func Load(path string) (*Schema, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	s := New()
	indexByIdx := map[int]*IndexField{}
	attrByIdx := map[int]*AttributeField{}
	summaryByIdx := map[int]*SummaryField{}
	fieldSetByIdx := map[int]*FieldSet{}
	fieldSetRefByIdx := map[[2]int]*FieldSetRef{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, rest, hasRest := strings.Cut(line, " ")
		if !hasRest {
			// Array-size header lines like "indexfield[3]" carry no value.
			continue
		}

		switch {
		case strings.HasPrefix(key, "indexfield["):
			idx, field, ok := splitIndexedKey(key, "indexfield[")
			if !ok {
				continue
			}
			f := indexByIdx[idx]
			if f == nil {
				f = &IndexField{}
				indexByIdx[idx] = f
			}
			applyIndexFieldAttr(f, field, rest)

		case strings.HasPrefix(key, "attributefield["):
			idx, field, ok := splitIndexedKey(key, "attributefield[")
			if !ok {
				continue
			}
			f := attrByIdx[idx]
			if f == nil {
				f = &AttributeField{}
				attrByIdx[idx] = f
			}
			applyAttributeFieldAttr(f, field, rest)

		case strings.HasPrefix(key, "summaryfield["):
			idx, field, ok := splitIndexedKey(key, "summaryfield[")
			if !ok {
				continue
			}
			f := summaryByIdx[idx]
			if f == nil {
				f = &SummaryField{}
				summaryByIdx[idx] = f
			}
			applySummaryFieldAttr(f, field, rest)

		case strings.HasPrefix(key, "fieldset["):
			idx, field, ok := splitIndexedKey(key, "fieldset[")
			if !ok {
				continue
			}
			fs := fieldSetByIdx[idx]
			if fs == nil {
				fs = &FieldSet{}
				fieldSetByIdx[idx] = fs
			}
			if strings.HasPrefix(field, "field[") {
				j, subfield, ok := splitIndexedKey(field, "field[")
				if !ok {
					continue
				}
				ref := fieldSetRefByIdx[[2]int{idx, j}]
				if ref == nil {
					ref = &FieldSetRef{}
					fieldSetRefByIdx[[2]int{idx, j}] = ref
				}
				if subfield == "name" {
					ref.Name = rest
				}
				continue
			}
			switch field {
			case "name":
				fs.Name = rest
			case "timestamp":
				fs.Timestamp = parseInt64(rest)
			}

		default:
			// Unknown key (includes "importedattributefields[...]" emitted
			// only in the RAM format): silently ignored for forward
			// compatibility.
		}
	}

	for i := 0; i < len(indexByIdx); i++ {
		if f, ok := indexByIdx[i]; ok {
			s.indexFields = append(s.indexFields, *f)
		}
	}
	for i := 0; i < len(attrByIdx); i++ {
		if f, ok := attrByIdx[i]; ok {
			s.attributeFields = append(s.attributeFields, *f)
		}
	}
	for i := 0; i < len(summaryByIdx); i++ {
		if f, ok := summaryByIdx[i]; ok {
			s.summaryFields = append(s.summaryFields, *f)
		}
	}
	for i := 0; i < len(fieldSetByIdx); i++ {
		fs, ok := fieldSetByIdx[i]
		if !ok {
			continue
		}
		var refs []FieldSetRef
		for j := 0; ; j++ {
			ref, ok := fieldSetRefByIdx[[2]int{i, j}]
			if !ok {
				break
			}
			refs = append(refs, *ref)
		}
		fs.Fields = refs
		s.fieldSets = append(s.fieldSets, *fs)
	}

	return s, true
}

// splitIndexedKey splits a key of the form "prefix123].rest" (prefix already
// stripped of its opening "[") into the numeric index and the remaining dotted
// path, e.g. splitIndexedKey("indexfield[2].name", "indexfield[") -> (2, "name", true).
func splitIndexedKey(key, prefix string) (int, string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, "", false
	}
	rest := key[len(prefix):]
	closeIdx := strings.Index(rest, "]")
	if closeIdx < 0 {
		return 0, "", false
	}
	idx, err := strconv.Atoi(rest[:closeIdx])
	if err != nil {
		return 0, "", false
	}
	tail := rest[closeIdx+1:]
	tail = strings.TrimPrefix(tail, ".")
	return idx, tail, true
}

func applyIndexFieldAttr(f *IndexField, field, value string) {
	switch field {
	case "name":
		f.Name = value
	case "datatype":
		if dt, ok := ParseDataType(value); ok {
			f.DataType = dt
		}
	case "collectiontype":
		if ct, ok := ParseCollectionType(value); ok {
			f.CollectionType = ct
		}
	case "prefix":
		f.Prefix = value == "true"
	case "phrases":
		f.Phrases = value == "true"
	case "positions":
		f.Positions = value == "true"
	case "averageelementlen":
		f.AverageElementLen = int32(parseInt64(value))
	case "timestamp":
		f.Timestamp = parseInt64(value)
	}
}

func applyAttributeFieldAttr(f *AttributeField, field, value string) {
	switch field {
	case "name":
		f.Name = value
	case "datatype":
		if dt, ok := ParseDataType(value); ok {
			f.DataType = dt
		}
	case "collectiontype":
		if ct, ok := ParseCollectionType(value); ok {
			f.CollectionType = ct
		}
	case "jsonschema":
		f.JSONSchema = decodeOneLine(value)
	case "timestamp":
		f.Timestamp = parseInt64(value)
	}
}

func applySummaryFieldAttr(f *SummaryField, field, value string) {
	switch field {
	case "name":
		f.Name = value
	case "datatype":
		if dt, ok := ParseDataType(value); ok {
			f.DataType = dt
		}
	case "timestamp":
		f.Timestamp = parseInt64(value)
	}
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Package schema implements the declarative field catalog shared read-only
// by every other subsystem: index fields, attribute fields, summary fields
// and field sets, plus the set algebra used during reconfiguration.
package schema

// DataType enumerates the basic value types a field can carry.
type DataType int

const (
	DataTypeString DataType = iota
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64
	DataTypeFloat
	DataTypeDouble
	DataTypeBooleanTree
	DataTypeTensor
	DataTypeRaw
)

func (d DataType) String() string {
	switch d {
	case DataTypeString:
		return "STRING"
	case DataTypeInt8:
		return "INT8"
	case DataTypeInt16:
		return "INT16"
	case DataTypeInt32:
		return "INT32"
	case DataTypeInt64:
		return "INT64"
	case DataTypeFloat:
		return "FLOAT"
	case DataTypeDouble:
		return "DOUBLE"
	case DataTypeBooleanTree:
		return "BOOLEANTREE"
	case DataTypeTensor:
		return "TENSOR"
	case DataTypeRaw:
		return "RAW"
	default:
		return "STRING"
	}
}

func ParseDataType(s string) (DataType, bool) {
	for dt := DataTypeString; dt <= DataTypeRaw; dt++ {
		if dt.String() == s {
			return dt, true
		}
	}
	return DataTypeString, false
}

// CollectionType enumerates how many values a field holds per document.
type CollectionType int

const (
	CollectionSingle CollectionType = iota
	CollectionArray
	CollectionWeightedSet
)

func (c CollectionType) String() string {
	switch c {
	case CollectionArray:
		return "ARRAY"
	case CollectionWeightedSet:
		return "WEIGHTEDSET"
	default:
		return "SINGLE"
	}
}

func ParseCollectionType(s string) (CollectionType, bool) {
	switch s {
	case "SINGLE":
		return CollectionSingle, true
	case "ARRAY":
		return CollectionArray, true
	case "WEIGHTEDSET":
		return CollectionWeightedSet, true
	default:
		return CollectionSingle, false
	}
}

// IndexField describes a field that participates in the inverted index.
type IndexField struct {
	Name              string
	DataType          DataType
	CollectionType    CollectionType
	Prefix            bool
	Phrases           bool
	Positions         bool
	AverageElementLen int32
	Timestamp         int64 // seconds, creation time
}

func (f IndexField) sameType(o IndexField) bool {
	return f.DataType == o.DataType && f.CollectionType == o.CollectionType
}

// AttributeField describes a field backed by an in-memory column (Attribute).
//
// JSONSchema is an optional shape hint (a JSON-schema fragment) that values
// written to the field are validated against, whatever the field's data
// type; RAW/TENSOR payloads are the typical use. The field stores it as an
// opaque string; NewValidators compiles every non-empty hint when the
// engine opens or reconfigures a schema.
type AttributeField struct {
	Name           string
	DataType       DataType
	CollectionType CollectionType
	JSONSchema     string
	Timestamp      int64
}

func (f AttributeField) sameType(o AttributeField) bool {
	return f.DataType == o.DataType && f.CollectionType == o.CollectionType
}

// SummaryField describes a field returned verbatim in document summaries.
type SummaryField struct {
	Name      string
	DataType  DataType
	Timestamp int64
}

func (f SummaryField) sameType(o SummaryField) bool {
	return f.DataType == o.DataType
}

// FieldSetRef names one constituent index field of a FieldSet.
type FieldSetRef struct {
	Name string
}

// FieldSet names a group of index fields searched together (e.g. "default").
type FieldSet struct {
	Name      string
	Fields    []FieldSetRef
	Timestamp int64
}

func (s FieldSet) fieldNames() map[string]struct{} {
	m := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Name] = struct{}{}
	}
	return m
}

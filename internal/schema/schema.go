package schema

import "fmt"

// Schema is an immutable, ordered catalog of fields. All mutators return a
// new Schema; nothing here is safe to mutate in place. A Schema is handed
// around as a read-only snapshot to every other component.
type Schema struct {
	indexFields     []IndexField
	attributeFields []AttributeField
	summaryFields   []SummaryField
	fieldSets       []FieldSet
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{}
}

func (s *Schema) clone() *Schema {
	n := &Schema{
		indexFields:     append([]IndexField(nil), s.indexFields...),
		attributeFields: append([]AttributeField(nil), s.attributeFields...),
		summaryFields:   append([]SummaryField(nil), s.summaryFields...),
		fieldSets:       append([]FieldSet(nil), s.fieldSets...),
	}
	return n
}

func (s *Schema) IndexFields() []IndexField         { return append([]IndexField(nil), s.indexFields...) }
func (s *Schema) AttributeFields() []AttributeField { return append([]AttributeField(nil), s.attributeFields...) }
func (s *Schema) SummaryFields() []SummaryField      { return append([]SummaryField(nil), s.summaryFields...) }
func (s *Schema) FieldSets() []FieldSet              { return append([]FieldSet(nil), s.fieldSets...) }

func (s *Schema) GetIndexField(name string) (IndexField, bool) {
	for _, f := range s.indexFields {
		if f.Name == name {
			return f, true
		}
	}
	return IndexField{}, false
}

func (s *Schema) GetAttributeField(name string) (AttributeField, bool) {
	for _, f := range s.attributeFields {
		if f.Name == name {
			return f, true
		}
	}
	return AttributeField{}, false
}

func (s *Schema) GetSummaryField(name string) (SummaryField, bool) {
	for _, f := range s.summaryFields {
		if f.Name == name {
			return f, true
		}
	}
	return SummaryField{}, false
}

func (s *Schema) GetFieldSet(name string) (FieldSet, bool) {
	for _, fs := range s.fieldSets {
		if fs.Name == name {
			return fs, true
		}
	}
	return FieldSet{}, false
}

// AddIndexField appends a new index field. Fails if the name collides with
// an existing index field.
func (s *Schema) AddIndexField(f IndexField) (*Schema, error) {
	if _, exists := s.GetIndexField(f.Name); exists {
		return s, fmt.Errorf("schema: index field %q already exists", f.Name)
	}
	n := s.clone()
	n.indexFields = append(n.indexFields, f)
	return n, nil
}

// AddAttributeField appends a new attribute field. Fails on name collision.
func (s *Schema) AddAttributeField(f AttributeField) (*Schema, error) {
	if _, exists := s.GetAttributeField(f.Name); exists {
		return s, fmt.Errorf("schema: attribute field %q already exists", f.Name)
	}
	n := s.clone()
	n.attributeFields = append(n.attributeFields, f)
	return n, nil
}

// AddSummaryField appends a new summary field. Fails on name collision.
func (s *Schema) AddSummaryField(f SummaryField) (*Schema, error) {
	if _, exists := s.GetSummaryField(f.Name); exists {
		return s, fmt.Errorf("schema: summary field %q already exists", f.Name)
	}
	n := s.clone()
	n.summaryFields = append(n.summaryFields, f)
	return n, nil
}

// AddFieldSet appends a new field set. Fails on name collision.
func (s *Schema) AddFieldSet(fs FieldSet) (*Schema, error) {
	if _, exists := s.GetFieldSet(fs.Name); exists {
		return s, fmt.Errorf("schema: field set %q already exists", fs.Name)
	}
	n := s.clone()
	n.fieldSets = append(n.fieldSets, fs)
	return n, nil
}

// Intersect returns entries present, with matching full type, in both a and
// b. A field set is retained only if every constituent field it names is
// also present in the resulting index-field set.
func Intersect(a, b *Schema) *Schema {
	out := New()

	for _, f := range a.indexFields {
		if g, ok := b.GetIndexField(f.Name); ok && f.sameType(g) {
			out.indexFields = append(out.indexFields, f)
		}
	}
	for _, f := range a.attributeFields {
		if g, ok := b.GetAttributeField(f.Name); ok && f.sameType(g) {
			out.attributeFields = append(out.attributeFields, f)
		}
	}
	for _, f := range a.summaryFields {
		if g, ok := b.GetSummaryField(f.Name); ok && f.sameType(g) {
			out.summaryFields = append(out.summaryFields, f)
		}
	}

	resultIndexNames := make(map[string]struct{}, len(out.indexFields))
	for _, f := range out.indexFields {
		resultIndexNames[f.Name] = struct{}{}
	}

	for _, fs := range a.fieldSets {
		gfs, ok := b.GetFieldSet(fs.Name)
		if !ok {
			continue
		}
		if !sameFieldSet(fs, gfs) {
			continue
		}
		allPresent := true
		for _, ref := range fs.Fields {
			if _, ok := resultIndexNames[ref.Name]; !ok {
				allPresent = false
				break
			}
		}
		if allPresent {
			out.fieldSets = append(out.fieldSets, fs)
		}
	}
	return out
}

func sameFieldSet(a, b FieldSet) bool {
	an, bn := a.fieldNames(), b.fieldNames()
	if len(an) != len(bn) {
		return false
	}
	for n := range an {
		if _, ok := bn[n]; !ok {
			return false
		}
	}
	return true
}

// Union returns entries from a followed by entries from b not already
// named in a. Ties (same name present in both) resolve to the a side.
func Union(a, b *Schema) *Schema {
	out := a.clone()

	for _, f := range b.indexFields {
		if _, exists := out.GetIndexField(f.Name); !exists {
			out.indexFields = append(out.indexFields, f)
		}
	}
	for _, f := range b.attributeFields {
		if _, exists := out.GetAttributeField(f.Name); !exists {
			out.attributeFields = append(out.attributeFields, f)
		}
	}
	for _, f := range b.summaryFields {
		if _, exists := out.GetSummaryField(f.Name); !exists {
			out.summaryFields = append(out.summaryFields, f)
		}
	}
	for _, fs := range b.fieldSets {
		if _, exists := out.GetFieldSet(fs.Name); !exists {
			out.fieldSets = append(out.fieldSets, fs)
		}
	}
	return out
}

// SetDifference returns entries in a whose name is absent from b.
func SetDifference(a, b *Schema) *Schema {
	out := New()
	for _, f := range a.indexFields {
		if _, exists := b.GetIndexField(f.Name); !exists {
			out.indexFields = append(out.indexFields, f)
		}
	}
	for _, f := range a.attributeFields {
		if _, exists := b.GetAttributeField(f.Name); !exists {
			out.attributeFields = append(out.attributeFields, f)
		}
	}
	for _, f := range a.summaryFields {
		if _, exists := b.GetSummaryField(f.Name); !exists {
			out.summaryFields = append(out.summaryFields, f)
		}
	}
	for _, fs := range a.fieldSets {
		if _, exists := b.GetFieldSet(fs.Name); !exists {
			out.fieldSets = append(out.fieldSets, fs)
		}
	}
	return out
}

// GetOldFields returns the entries whose timestamp predates t, used to
// compute which fields must be wiped from history after a field removal.
func (s *Schema) GetOldFields(t int64) *Schema {
	out := New()
	for _, f := range s.indexFields {
		if f.Timestamp < t {
			out.indexFields = append(out.indexFields, f)
		}
	}
	for _, f := range s.attributeFields {
		if f.Timestamp < t {
			out.attributeFields = append(out.attributeFields, f)
		}
	}
	for _, f := range s.summaryFields {
		if f.Timestamp < t {
			out.summaryFields = append(out.summaryFields, f)
		}
	}
	for _, fs := range s.fieldSets {
		if fs.Timestamp < t {
			out.fieldSets = append(out.fieldSets, fs)
		}
	}
	return out
}

// Equal reports whether two schemas contain the same fields, in the same
// order, with the same attributes. Used by the schema round-trip test.
func Equal(a, b *Schema) bool {
	if len(a.indexFields) != len(b.indexFields) ||
		len(a.attributeFields) != len(b.attributeFields) ||
		len(a.summaryFields) != len(b.summaryFields) ||
		len(a.fieldSets) != len(b.fieldSets) {
		return false
	}
	for i := range a.indexFields {
		if a.indexFields[i] != b.indexFields[i] {
			return false
		}
	}
	for i := range a.attributeFields {
		if a.attributeFields[i] != b.attributeFields[i] {
			return false
		}
	}
	for i := range a.summaryFields {
		if a.summaryFields[i] != b.summaryFields[i] {
			return false
		}
	}
	for i := range a.fieldSets {
		af, bf := a.fieldSets[i], b.fieldSets[i]
		if af.Name != bf.Name || af.Timestamp != bf.Timestamp || len(af.Fields) != len(bf.Fields) {
			return false
		}
		for j := range af.Fields {
			if af.Fields[j] != bf.Fields[j] {
				return false
			}
		}
	}
	return true
}

package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Validators holds the compiled JSON-schema shape hints declared by a
// schema's attribute fields. A shape hint constrains the payload of RAW and
// TENSOR fields, whose values are opaque to the typed attribute variants;
// fields without a hint validate trivially.
type Validators struct {
	byField map[string]*gojsonschema.Schema
}

// NewValidators compiles every attribute field's JSONSchema fragment. A
// fragment that fails to compile fails the whole schema: a half-validating
// feed is worse than a rejected reconfigure.
func NewValidators(s *Schema) (*Validators, error) {
	v := &Validators{byField: make(map[string]*gojsonschema.Schema)}
	for _, f := range s.AttributeFields() {
		if f.JSONSchema == "" {
			continue
		}
		loader := gojsonschema.NewStringLoader(f.JSONSchema)
		compiled, err := gojsonschema.NewSchema(loader)
		if err != nil {
			return nil, fmt.Errorf("field %s: invalid json schema: %w", f.Name, err)
		}
		v.byField[f.Name] = compiled
	}
	return v, nil
}

// Has reports whether field carries a shape hint.
func (v *Validators) Has(field string) bool {
	_, ok := v.byField[field]
	return ok
}

// Validate checks value against field's shape hint, if any. A field with no
// hint always validates.
func (v *Validators) Validate(field string, value interface{}) error {
	compiled, ok := v.byField[field]
	if !ok {
		return nil
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return fmt.Errorf("field %s: validate: %w", field, err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("field %s: %s", field, errs[0].String())
		}
		return fmt.Errorf("field %s: value does not match declared shape", field)
	}
	return nil
}

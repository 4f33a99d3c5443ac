package attribute

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

// Factory constructs Attribute instances from schema field declarations.
// The only process-wide state this engine needs is this factory
// registry; it is passed explicitly into AttributeManager rather than kept
// as a package-level global.
type Factory struct{}

// NewFactory returns the default attribute factory.
func NewFactory() *Factory { return &Factory{} }

// Create builds a fresh, empty attribute for the given field declaration.
func (f *Factory) Create(field schema.AttributeField) (Attribute, error) {
	switch field.DataType {
	case schema.DataTypeInt8:
		return NewNumericAttributeOf[int8](field.Name, field.DataType, field.CollectionType), nil
	case schema.DataTypeInt16:
		return NewNumericAttributeOf[int16](field.Name, field.DataType, field.CollectionType), nil
	case schema.DataTypeInt32:
		return NewNumericAttributeOf[int32](field.Name, field.DataType, field.CollectionType), nil
	case schema.DataTypeInt64:
		return NewNumericAttributeOf[int64](field.Name, field.DataType, field.CollectionType), nil
	case schema.DataTypeFloat:
		return NewNumericAttributeOf[float32](field.Name, field.DataType, field.CollectionType), nil
	case schema.DataTypeDouble:
		return NewNumericAttributeOf[float64](field.Name, field.DataType, field.CollectionType), nil
	case schema.DataTypeString:
		return NewStringAttribute(field.Name, field.CollectionType), nil
	case schema.DataTypeBooleanTree:
		return NewPredicateAttribute(field.Name), nil
	case schema.DataTypeTensor:
		return NewTensorAttribute(field.Name), nil
	default:
		return nil, fmt.Errorf("attribute: no factory for data type %s", field.DataType)
	}
}

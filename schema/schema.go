// Package schema defines collection schemas: typed field definitions with
// exactly one primary key, and row validation against them.
package schema

import (
	"fmt"

	"github.com/hupe1980/vecdb/model"
)

// FieldType defines the declared data type of a field.
type FieldType uint8

const (
	FieldTypeBool FieldType = iota
	FieldTypeInt64
	FieldTypeDouble
	FieldTypeVarChar
	FieldTypeFloatVector
	FieldTypeBinaryVector
)

// String returns the string representation of the FieldType.
func (t FieldType) String() string {
	switch t {
	case FieldTypeBool:
		return "Bool"
	case FieldTypeInt64:
		return "Int64"
	case FieldTypeDouble:
		return "Double"
	case FieldTypeVarChar:
		return "VarChar"
	case FieldTypeFloatVector:
		return "FloatVector"
	case FieldTypeBinaryVector:
		return "BinaryVector"
	default:
		return "Unknown"
	}
}

// IsVector reports whether the type holds vector data.
func (t FieldType) IsVector() bool {
	return t == FieldTypeFloatVector || t == FieldTypeBinaryVector
}

// Kind returns the model.Kind a value of this type must carry.
func (t FieldType) Kind() model.Kind {
	switch t {
	case FieldTypeBool:
		return model.KindBool
	case FieldTypeInt64:
		return model.KindInt64
	case FieldTypeDouble:
		return model.KindDouble
	case FieldTypeVarChar:
		return model.KindVarChar
	case FieldTypeFloatVector:
		return model.KindFloatVector
	case FieldTypeBinaryVector:
		return model.KindBinaryVector
	default:
		return model.KindNull
	}
}

// FieldDef describes a single field of a collection schema.
type FieldDef struct {
	Name string
	Type FieldType

	// MaxLength bounds VarChar values (bytes). Required for VarChar.
	MaxLength int

	// Dim is the vector dimensionality. Required for vector fields.
	// For BinaryVector it counts bits and must be a multiple of 8.
	Dim int

	// IsPrimary marks the primary key field. Exactly one field per schema.
	IsPrimary bool
}

// Error is returned for invalid field definitions.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: field %q: %s", e.Field, e.Reason)
}

// ValidationError is returned when a row violates the schema.
type ValidationError struct {
	Field  string
	Reason string
	Value  string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation: field %q: %s (value %s)", e.Field, e.Reason, e.Value)
}

// Schema is an ordered, validated sequence of field definitions.
type Schema struct {
	fields  []FieldDef
	byName  map[string]int
	primary int
}

// New validates the field definitions and builds a Schema.
func New(fields ...FieldDef) (*Schema, error) {
	if len(fields) == 0 {
		return nil, &Error{Reason: "no fields defined"}
	}

	s := &Schema{
		fields:  make([]FieldDef, len(fields)),
		byName:  make(map[string]int, len(fields)),
		primary: -1,
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		if f.Name == "" {
			return nil, &Error{Reason: "empty field name"}
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, &Error{Field: f.Name, Reason: "duplicate field name"}
		}
		s.byName[f.Name] = i

		switch f.Type {
		case FieldTypeVarChar:
			if f.MaxLength <= 0 {
				return nil, &Error{Field: f.Name, Reason: "VarChar requires max length > 0"}
			}
		case FieldTypeFloatVector:
			if f.Dim <= 0 {
				return nil, &Error{Field: f.Name, Reason: fmt.Sprintf("invalid vector dim %d", f.Dim)}
			}
		case FieldTypeBinaryVector:
			if f.Dim <= 0 {
				return nil, &Error{Field: f.Name, Reason: fmt.Sprintf("invalid vector dim %d", f.Dim)}
			}
			if f.Dim%8 != 0 {
				return nil, &Error{Field: f.Name, Reason: fmt.Sprintf("binary vector dim %d must be a multiple of 8", f.Dim)}
			}
		}

		if f.IsPrimary {
			if s.primary >= 0 {
				return nil, &Error{Field: f.Name, Reason: "more than one primary key"}
			}
			if f.Type != FieldTypeInt64 && f.Type != FieldTypeVarChar {
				return nil, &Error{Field: f.Name, Reason: fmt.Sprintf("primary key must be Int64 or VarChar, got %s", f.Type)}
			}
			s.primary = i
		}
	}

	if s.primary < 0 {
		return nil, &Error{Reason: "no primary key defined"}
	}

	return s, nil
}

// Fields returns the ordered field definitions.
func (s *Schema) Fields() []FieldDef {
	out := make([]FieldDef, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field definition by name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldDef{}, false
	}
	return s.fields[i], true
}

// PrimaryField returns the primary key field definition.
func (s *Schema) PrimaryField() FieldDef {
	return s.fields[s.primary]
}

// ValidateRow checks that the row carries every field with the declared
// type, vector lengths match the declared dim, and VarChar values respect
// their max length.
func (s *Schema) ValidateRow(row model.Row) error {
	for _, f := range s.fields {
		v, ok := row[f.Name]
		if !ok {
			return &ValidationError{Field: f.Name, Reason: "missing field"}
		}
		if v.Kind != f.Type.Kind() {
			return &ValidationError{
				Field:  f.Name,
				Reason: fmt.Sprintf("expected %s, got %s", f.Type, v.Kind),
			}
		}
		switch f.Type {
		case FieldTypeVarChar:
			if len(v.S) > f.MaxLength {
				return &ValidationError{
					Field:  f.Name,
					Reason: fmt.Sprintf("length %d exceeds max %d", len(v.S), f.MaxLength),
				}
			}
		case FieldTypeFloatVector:
			if len(v.FV) != f.Dim {
				return &ValidationError{
					Field:  f.Name,
					Reason: fmt.Sprintf("dim %d does not match declared %d", len(v.FV), f.Dim),
				}
			}
		case FieldTypeBinaryVector:
			if len(v.BV)*8 != f.Dim {
				return &ValidationError{
					Field:  f.Name,
					Reason: fmt.Sprintf("dim %d does not match declared %d", len(v.BV)*8, f.Dim),
				}
			}
		}
	}
	for name := range row {
		if _, ok := s.byName[name]; !ok {
			return &ValidationError{Field: name, Reason: "not defined in schema"}
		}
	}
	return nil
}

// PrimaryKeyOf extracts the primary key from a validated row.
func (s *Schema) PrimaryKeyOf(row model.Row) (model.PrimaryKey, error) {
	f := s.PrimaryField()
	v, ok := row[f.Name]
	if !ok {
		return model.PrimaryKey{}, &ValidationError{Field: f.Name, Reason: "missing primary key"}
	}
	switch v.Kind {
	case model.KindInt64:
		return model.IntKey(v.I64), nil
	case model.KindVarChar:
		return model.StringKey(v.S), nil
	default:
		return model.PrimaryKey{}, &ValidationError{
			Field:  f.Name,
			Reason: fmt.Sprintf("primary key has kind %s", v.Kind),
		}
	}
}

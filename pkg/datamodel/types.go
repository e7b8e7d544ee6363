// SPDX-License-Identifier: Apache-2.0

// Package datamodel holds the declarative datamodel representation and the
// calculator that applies a sequence of datamodel steps to it.
package datamodel

// Arity is the cardinality of a field.
type Arity string

const (
	ArityRequired Arity = "required"
	ArityOptional Arity = "optional"
	ArityList     Arity = "list"
)

// OnDelete is the referential action taken when a relation's parent row is
// removed.
type OnDelete string

const (
	OnDeleteNone     OnDelete = "None"
	OnDeleteCascade  OnDelete = "Cascade"
	OnDeleteSetNull  OnDelete = "SetNull"
)

// ScalarType enumerates the base scalar types a field may have.
type ScalarType string

const (
	ScalarString   ScalarType = "String"
	ScalarInt      ScalarType = "Int"
	ScalarFloat    ScalarType = "Float"
	ScalarBoolean  ScalarType = "Boolean"
	ScalarDateTime ScalarType = "DateTime"
	ScalarJSON     ScalarType = "Json"
	ScalarBytes    ScalarType = "Bytes"
)

// FieldType is a tagged union over a scalar base type, a reference to a
// declared enum, or a relation to another model.
type FieldType struct {
	Scalar   ScalarType `json:"scalar,omitempty"`
	EnumName string     `json:"enumName,omitempty"`
	Relation *Relation  `json:"relation,omitempty"`
}

// IsScalar reports whether the field type carries a scalar base type.
func (t FieldType) IsScalar() bool { return t.Scalar != "" }

// IsEnum reports whether the field type references a declared enum.
func (t FieldType) IsEnum() bool { return t.EnumName != "" }

// IsRelation reports whether the field type is a relation to another model.
func (t FieldType) IsRelation() bool { return t.Relation != nil }

// Relation describes a field that points at another model.
type Relation struct {
	// ReferencedModel is the name of the model this relation points at.
	ReferencedModel string `json:"referencedModel"`

	// ReferencedFields are the field names on ReferencedModel this relation
	// resolves against. Empty for the "back" side of a 1-n/m-n relation.
	ReferencedFields []string `json:"referencedFields,omitempty"`

	// Fields are the local field names carrying the foreign key, if this
	// side owns it.
	Fields []string `json:"fields,omitempty"`

	// Name is the explicit relation name; empty means synthesized from the
	// two model names.
	Name string `json:"name,omitempty"`

	OnDelete OnDelete `json:"onDelete,omitempty"`
}

// Default is a field's default value: either a literal JSON value or a
// function-call expression such as autoincrement(), cuid(), uuid(), now().
type Default struct {
	Literal  *string `json:"literal,omitempty"`
	Function string  `json:"function,omitempty"`
}

// Field is a single field of a Model.
type Field struct {
	Name       string     `json:"name"`
	DBName     string     `json:"dbName,omitempty"`
	Arity      Arity      `json:"arity"`
	Type       FieldType  `json:"type"`
	Default    *Default   `json:"default,omitempty"`
	IsUnique   bool       `json:"isUnique,omitempty"`
	IsID       bool       `json:"isId,omitempty"`
	IsGenerated bool      `json:"isGenerated,omitempty"`
	IsUpdatedAt bool      `json:"isUpdatedAt,omitempty"`
	Documentation string  `json:"documentation,omitempty"`
}

// ColumnName returns the physical column/field name to use on the wire,
// preferring the DBName override.
func (f *Field) ColumnName() string {
	if f.DBName != "" {
		return f.DBName
	}
	return f.Name
}

// IndexKind distinguishes a plain index from a unique constraint index.
type IndexKind string

const (
	IndexKindNormal IndexKind = "normal"
	IndexKindUnique IndexKind = "unique"
)

// ModelIndex is a `@@index`/`@@unique` declaration at the model level.
type ModelIndex struct {
	Name   string    `json:"name,omitempty"`
	Kind   IndexKind `json:"kind"`
	Fields []string  `json:"fields"`
}

// Model is one entity in the datamodel, corresponding to one table unless
// Embedded is set.
type Model struct {
	Name          string       `json:"name"`
	DBName        string       `json:"dbName,omitempty"`
	Embedded      bool         `json:"isEmbedded,omitempty"`
	Generated     bool         `json:"isGenerated,omitempty"`
	Documentation string       `json:"documentation,omitempty"`
	IDFields      []string     `json:"idFields,omitempty"`
	Fields        []*Field     `json:"fields"`
	Indexes       []*ModelIndex `json:"indexes,omitempty"`
}

// TableName returns the physical table name, preferring the DBName override.
func (m *Model) TableName() string {
	if m.DBName != "" {
		return m.DBName
	}
	return m.Name
}

// FieldByName returns the field with the given name, or nil.
func (m *Model) FieldByName(name string) *Field {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// PrimaryKeyFields returns the model's primary-key field names: the
// explicit `@@id` list if set, otherwise the single field marked IsID.
func (m *Model) PrimaryKeyFields() []string {
	if len(m.IDFields) > 0 {
		return m.IDFields
	}
	for _, f := range m.Fields {
		if f.IsID {
			return []string{f.Name}
		}
	}
	return nil
}

// EnumValue is one member of an Enum.
type EnumValue struct {
	Name   string `json:"name"`
	DBName string `json:"dbName,omitempty"`
}

// Enum is a declared enumeration type.
type Enum struct {
	Name          string       `json:"name"`
	DBName        string       `json:"dbName,omitempty"`
	Values        []*EnumValue `json:"values"`
	Documentation string       `json:"documentation,omitempty"`
}

// Datamodel is the abstract declarative schema: an ordered list of models
// and enums.
type Datamodel struct {
	Models []*Model `json:"models"`
	Enums  []*Enum  `json:"enums"`
}

// New returns an empty datamodel.
func New() *Datamodel {
	return &Datamodel{}
}

// ModelByName returns the model with the given name, or nil.
func (d *Datamodel) ModelByName(name string) *Model {
	for _, m := range d.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// EnumByName returns the enum with the given name, or nil.
func (d *Datamodel) EnumByName(name string) *Enum {
	for _, e := range d.Enums {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Clone returns a deep copy of the datamodel, used as the calculator's
// working copy so the caller's base datamodel is never mutated in place.
func (d *Datamodel) Clone() *Datamodel {
	out := &Datamodel{
		Models: make([]*Model, len(d.Models)),
		Enums:  make([]*Enum, len(d.Enums)),
	}
	for i, m := range d.Models {
		clone := *m
		clone.Fields = make([]*Field, len(m.Fields))
		for j, f := range m.Fields {
			fc := *f
			clone.Fields[j] = &fc
		}
		clone.Indexes = make([]*ModelIndex, len(m.Indexes))
		for j, ix := range m.Indexes {
			ic := *ix
			clone.Indexes[j] = &ic
		}
		out.Models[i] = &clone
	}
	for i, e := range d.Enums {
		clone := *e
		clone.Values = make([]*EnumValue, len(e.Values))
		for j, v := range e.Values {
			vc := *v
			clone.Values[j] = &vc
		}
		out.Enums[i] = &clone
	}
	return out
}

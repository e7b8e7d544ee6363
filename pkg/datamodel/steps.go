// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// StepName identifies the concrete type of a MigrationStep for the purposes
// of the tagged-variant wire encoding.
type StepName string

const (
	StepNameCreateModel StepName = "createModel"
	StepNameUpdateModel StepName = "updateModel"
	StepNameDeleteModel StepName = "deleteModel"
	StepNameCreateField StepName = "createField"
	StepNameUpdateField StepName = "updateField"
	StepNameDeleteField StepName = "deleteField"
	StepNameCreateEnum  StepName = "createEnum"
	StepNameUpdateEnum  StepName = "updateEnum"
	StepNameDeleteEnum  StepName = "deleteEnum"
	StepNameCreateIndex StepName = "createIndex"
	StepNameUpdateIndex StepName = "updateIndex"
	StepNameDeleteIndex StepName = "deleteIndex"
)

// MigrationStep is one declarative edit to a Datamodel.
type MigrationStep interface {
	// Apply mutates dm in place to reflect this step, or returns an
	// InvariantViolation-family error if dm does not satisfy the step's
	// preconditions.
	Apply(dm *Datamodel) error
}

// MigrationSteps is an ordered list of MigrationStep, with tagged-variant
// JSON encoding: each element serializes as a single-key object keyed by
// its StepName.
type MigrationSteps []MigrationStep

type (
	CreateModel struct {
		Model         string   `json:"model"`
		DBName        string   `json:"dbName,omitempty"`
		Embedded      bool     `json:"embedded,omitempty"`
		Documentation string   `json:"documentation,omitempty"`
		IDFields      []string `json:"idFields,omitempty"`
	}

	UpdateModel struct {
		Model             string    `json:"model"`
		NewName           *string   `json:"newName,omitempty"`
		NewDBName         *string   `json:"newDbName,omitempty"`
		NewEmbedded       *bool     `json:"newEmbedded,omitempty"`
		NewDocumentation  *string   `json:"newDocumentation,omitempty"`
		NewIDFields       *[]string `json:"newIdFields,omitempty"`
	}

	DeleteModel struct {
		Model string `json:"model"`
	}

	CreateField struct {
		Model string `json:"model"`
		Field *Field `json:"field"`
	}

	UpdateField struct {
		Model            string     `json:"model"`
		Field            string     `json:"field"`
		NewName          *string    `json:"newName,omitempty"`
		NewDBName        *string    `json:"newDbName,omitempty"`
		NewArity         *Arity     `json:"newArity,omitempty"`
		NewType          *FieldType `json:"newType,omitempty"`
		NewDefault       *Default   `json:"newDefault,omitempty"`
		NewIsUnique      *bool      `json:"newIsUnique,omitempty"`
		NewDocumentation *string    `json:"newDocumentation,omitempty"`
	}

	DeleteField struct {
		Model string `json:"model"`
		Field string `json:"field"`
	}

	CreateEnum struct {
		Enum          string       `json:"enum"`
		DBName        string       `json:"dbName,omitempty"`
		Values        []*EnumValue `json:"values"`
		Documentation string       `json:"documentation,omitempty"`
	}

	UpdateEnum struct {
		Enum         string       `json:"enum"`
		NewName      *string      `json:"newName,omitempty"`
		NewDBName    *string      `json:"newDbName,omitempty"`
		AddValues    []*EnumValue `json:"addValues,omitempty"`
		RemoveValues []string     `json:"removeValues,omitempty"`
	}

	DeleteEnum struct {
		Enum string `json:"enum"`
	}

	CreateIndex struct {
		Model string      `json:"model"`
		Index *ModelIndex `json:"index"`
	}

	UpdateIndex struct {
		Model     string    `json:"model"`
		Index     string    `json:"index"`
		NewName   *string   `json:"newName,omitempty"`
		NewFields *[]string `json:"newFields,omitempty"`
	}

	DeleteIndex struct {
		Model string `json:"model"`
		Index string `json:"index"`
	}
)

func (s *CreateModel) Apply(dm *Datamodel) error {
	if dm.ModelByName(s.Model) != nil {
		return ModelAlreadyExistsError{Name: s.Model}
	}
	dm.Models = append(dm.Models, &Model{
		Name:          s.Model,
		DBName:        s.DBName,
		Embedded:      s.Embedded,
		Documentation: s.Documentation,
		IDFields:      s.IDFields,
	})
	return nil
}

func (s *UpdateModel) Apply(dm *Datamodel) error {
	m := dm.ModelByName(s.Model)
	if m == nil {
		return ModelDoesNotExistError{Name: s.Model}
	}
	if s.NewName != nil {
		if *s.NewName != m.Name && dm.ModelByName(*s.NewName) != nil {
			return ModelAlreadyExistsError{Name: *s.NewName}
		}
		m.Name = *s.NewName
	}
	if s.NewDBName != nil {
		m.DBName = *s.NewDBName
	}
	if s.NewEmbedded != nil {
		m.Embedded = *s.NewEmbedded
	}
	if s.NewDocumentation != nil {
		m.Documentation = *s.NewDocumentation
	}
	if s.NewIDFields != nil {
		m.IDFields = *s.NewIDFields
	}
	return nil
}

func (s *DeleteModel) Apply(dm *Datamodel) error {
	idx := slices.IndexFunc(dm.Models, func(m *Model) bool { return m.Name == s.Model })
	if idx == -1 {
		return ModelDoesNotExistError{Name: s.Model}
	}
	dm.Models = slices.Delete(dm.Models, idx, idx+1)
	return nil
}

func (s *CreateField) Apply(dm *Datamodel) error {
	m := dm.ModelByName(s.Model)
	if m == nil {
		return ModelDoesNotExistError{Name: s.Model}
	}
	if m.FieldByName(s.Field.Name) != nil {
		return FieldAlreadyExistsError{Model: s.Model, Name: s.Field.Name}
	}
	if s.Field.Type.IsEnum() && dm.EnumByName(s.Field.Type.EnumName) == nil {
		return UnknownFieldTypeReferenceError{Model: s.Model, Field: s.Field.Name, Reference: s.Field.Type.EnumName}
	}
	if rel := s.Field.Type.Relation; rel != nil && dm.ModelByName(rel.ReferencedModel) == nil {
		return UnknownFieldTypeReferenceError{Model: s.Model, Field: s.Field.Name, Reference: rel.ReferencedModel}
	}
	field := *s.Field
	m.Fields = append(m.Fields, &field)
	return nil
}

func (s *UpdateField) Apply(dm *Datamodel) error {
	m := dm.ModelByName(s.Model)
	if m == nil {
		return ModelDoesNotExistError{Name: s.Model}
	}
	f := m.FieldByName(s.Field)
	if f == nil {
		return FieldDoesNotExistError{Model: s.Model, Name: s.Field}
	}
	if s.NewName != nil {
		if *s.NewName != f.Name && m.FieldByName(*s.NewName) != nil {
			return FieldAlreadyExistsError{Model: s.Model, Name: *s.NewName}
		}
		f.Name = *s.NewName
	}
	if s.NewDBName != nil {
		f.DBName = *s.NewDBName
	}
	if s.NewArity != nil {
		f.Arity = *s.NewArity
	}
	if s.NewType != nil {
		f.Type = *s.NewType
	}
	if s.NewDefault != nil {
		f.Default = s.NewDefault
	}
	if s.NewIsUnique != nil {
		f.IsUnique = *s.NewIsUnique
	}
	if s.NewDocumentation != nil {
		f.Documentation = *s.NewDocumentation
	}
	return nil
}

func (s *DeleteField) Apply(dm *Datamodel) error {
	m := dm.ModelByName(s.Model)
	if m == nil {
		return ModelDoesNotExistError{Name: s.Model}
	}
	idx := slices.IndexFunc(m.Fields, func(f *Field) bool { return f.Name == s.Field })
	if idx == -1 {
		return FieldDoesNotExistError{Model: s.Model, Name: s.Field}
	}
	m.Fields = slices.Delete(m.Fields, idx, idx+1)
	return nil
}

func (s *CreateEnum) Apply(dm *Datamodel) error {
	if dm.EnumByName(s.Enum) != nil {
		return EnumAlreadyExistsError{Name: s.Enum}
	}
	dm.Enums = append(dm.Enums, &Enum{
		Name:          s.Enum,
		DBName:        s.DBName,
		Values:        s.Values,
		Documentation: s.Documentation,
	})
	return nil
}

func (s *UpdateEnum) Apply(dm *Datamodel) error {
	e := dm.EnumByName(s.Enum)
	if e == nil {
		return EnumDoesNotExistError{Name: s.Enum}
	}
	if s.NewName != nil {
		if *s.NewName != e.Name && dm.EnumByName(*s.NewName) != nil {
			return EnumAlreadyExistsError{Name: *s.NewName}
		}
		e.Name = *s.NewName
	}
	if s.NewDBName != nil {
		e.DBName = *s.NewDBName
	}
	for _, v := range s.AddValues {
		if slices.ContainsFunc(e.Values, func(ev *EnumValue) bool { return ev.Name == v.Name }) {
			return EnumValueAlreadyExistsError{Enum: s.Enum, Value: v.Name}
		}
		e.Values = append(e.Values, v)
	}
	for _, name := range s.RemoveValues {
		idx := slices.IndexFunc(e.Values, func(ev *EnumValue) bool { return ev.Name == name })
		if idx == -1 {
			return EnumValueDoesNotExistError{Enum: s.Enum, Value: name}
		}
		e.Values = slices.Delete(e.Values, idx, idx+1)
	}
	return nil
}

func (s *DeleteEnum) Apply(dm *Datamodel) error {
	idx := slices.IndexFunc(dm.Enums, func(e *Enum) bool { return e.Name == s.Enum })
	if idx == -1 {
		return EnumDoesNotExistError{Name: s.Enum}
	}
	dm.Enums = slices.Delete(dm.Enums, idx, idx+1)
	return nil
}

func (s *CreateIndex) Apply(dm *Datamodel) error {
	m := dm.ModelByName(s.Model)
	if m == nil {
		return ModelDoesNotExistError{Name: s.Model}
	}
	name := indexName(m, s.Index)
	if slices.ContainsFunc(m.Indexes, func(ix *ModelIndex) bool { return indexName(m, ix) == name }) {
		return IndexAlreadyExistsError{Model: s.Model, Name: name}
	}
	m.Indexes = append(m.Indexes, s.Index)
	return nil
}

func (s *UpdateIndex) Apply(dm *Datamodel) error {
	m := dm.ModelByName(s.Model)
	if m == nil {
		return ModelDoesNotExistError{Name: s.Model}
	}
	i := slices.IndexFunc(m.Indexes, func(ix *ModelIndex) bool { return indexName(m, ix) == s.Index })
	if i == -1 {
		return IndexDoesNotExistError{Model: s.Model, Name: s.Index}
	}
	ix := m.Indexes[i]
	if s.NewName != nil {
		ix.Name = *s.NewName
	}
	if s.NewFields != nil {
		ix.Fields = *s.NewFields
	}
	return nil
}

func (s *DeleteIndex) Apply(dm *Datamodel) error {
	m := dm.ModelByName(s.Model)
	if m == nil {
		return ModelDoesNotExistError{Name: s.Model}
	}
	i := slices.IndexFunc(m.Indexes, func(ix *ModelIndex) bool { return indexName(m, ix) == s.Index })
	if i == -1 {
		return IndexDoesNotExistError{Model: s.Model, Name: s.Index}
	}
	m.Indexes = slices.Delete(m.Indexes, i, i+1)
	return nil
}

// indexName returns an index's explicit name, or its default
// "{Table}.{field1}_{field2}_..." name when none was given.
func indexName(m *Model, ix *ModelIndex) string {
	if ix.Name != "" {
		return ix.Name
	}
	return fmt.Sprintf("%s.%s", m.TableName(), strings.Join(ix.Fields, "_"))
}

// StepNameOf returns the tagged-variant name for a MigrationStep.
func StepNameOf(s MigrationStep) StepName {
	switch s.(type) {
	case *CreateModel:
		return StepNameCreateModel
	case *UpdateModel:
		return StepNameUpdateModel
	case *DeleteModel:
		return StepNameDeleteModel
	case *CreateField:
		return StepNameCreateField
	case *UpdateField:
		return StepNameUpdateField
	case *DeleteField:
		return StepNameDeleteField
	case *CreateEnum:
		return StepNameCreateEnum
	case *UpdateEnum:
		return StepNameUpdateEnum
	case *DeleteEnum:
		return StepNameDeleteEnum
	case *CreateIndex:
		return StepNameCreateIndex
	case *UpdateIndex:
		return StepNameUpdateIndex
	case *DeleteIndex:
		return StepNameDeleteIndex
	}
	panic(fmt.Errorf("unknown migration step for %T", s))
}

func stepFromName(name StepName) (MigrationStep, error) {
	switch name {
	case StepNameCreateModel:
		return &CreateModel{}, nil
	case StepNameUpdateModel:
		return &UpdateModel{}, nil
	case StepNameDeleteModel:
		return &DeleteModel{}, nil
	case StepNameCreateField:
		return &CreateField{}, nil
	case StepNameUpdateField:
		return &UpdateField{}, nil
	case StepNameDeleteField:
		return &DeleteField{}, nil
	case StepNameCreateEnum:
		return &CreateEnum{}, nil
	case StepNameUpdateEnum:
		return &UpdateEnum{}, nil
	case StepNameDeleteEnum:
		return &DeleteEnum{}, nil
	case StepNameCreateIndex:
		return &CreateIndex{}, nil
	case StepNameUpdateIndex:
		return &UpdateIndex{}, nil
	case StepNameDeleteIndex:
		return &DeleteIndex{}, nil
	}
	return nil, fmt.Errorf("unknown migration step type: %v", name)
}

// UnmarshalJSON deserializes a list of migration steps from a JSON array of
// single-key tagged objects, e.g. `[{"createModel": {...}}, ...]`.
func (v *MigrationSteps) UnmarshalJSON(data []byte) error {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if len(raw) == 0 {
		*v = MigrationSteps{}
		return nil
	}

	steps := make([]MigrationStep, len(raw))
	for i, obj := range raw {
		if len(obj) != 1 {
			return fmt.Errorf("multiple keys in migration step object at index %d: %v",
				i, strings.Join(slices.Collect(maps.Keys(obj)), ", "))
		}
		var name StepName
		var body json.RawMessage
		for k, b := range obj {
			name = StepName(k)
			body = b
		}

		step, err := stepFromName(name)
		if err != nil {
			return err
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(step); err != nil {
			return fmt.Errorf("decode migration step [%v]: %w", name, err)
		}

		steps[i] = step
	}

	*v = steps
	return nil
}

// MarshalJSON serializes a list of migration steps into a JSON array of
// single-key tagged objects.
func (v MigrationSteps) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte(`[]`), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('[')

	enc := json.NewEncoder(&buf)
	for i, s := range v {
		if i != 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"`)
		buf.WriteString(string(StepNameOf(s)))
		buf.WriteString(`":`)
		if err := enc.Encode(s); err != nil {
			return nil, fmt.Errorf("unable to encode migration step [%v]: %w", i, err)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
